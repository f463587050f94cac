package services

import (
	"context"
	stderrors "errors"
	"game-relay/contract"
	"game-relay/domain"
	"game-relay/domain/event"
	"game-relay/errors"
	"game-relay/observability"
	"game-relay/runtime"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

type GroupOptions struct {
	Mode domain.InviteMode
	// KickRequiresMembership restricts kick-user to connected members of the group.
	KickRequiresMembership bool
}

// GroupService mutates groups, memberships and invitations.
//
// Every mutation of a group runs under that group's lock and follows the
// same order: persist, then update the routing index, then notify. A failed
// write returns before the routing index is touched.
type GroupService struct {
	store      contract.IStore
	registry   *runtime.Registry
	notifier   *Notifier
	censor     contract.ICensor
	options    GroupOptions
	groupLocks *runtime.KeyedMutex
	emitter
}

func NewGroupService(store contract.IStore, registry *runtime.Registry, notifier *Notifier,
	censor contract.ICensor, options GroupOptions, log *slog.Logger, metrics *observability.Metrics) *GroupService {
	if options.Mode == "" {
		options.Mode = domain.InviteRequired
	}
	return &GroupService{
		store:      store,
		registry:   registry,
		notifier:   notifier,
		censor:     censor,
		options:    options,
		groupLocks: runtime.NewKeyedMutex(),
		emitter:    emitter{log: log, metrics: metrics},
	}
}

// Bootstrap routes a freshly admitted session into every group the user is
// a persisted member of. Calling it twice is harmless.
func (s *GroupService) Bootstrap(ctx context.Context, session *runtime.Session) error {
	groupIDs, err := s.store.GroupsOfUser(ctx, session.UserID)
	if err != nil {
		return persistence("list groups of user", err)
	}
	for _, groupID := range groupIDs {
		if err = s.routeIfMember(ctx, groupID, session.UserID); err != nil {
			return err
		}
	}
	s.log.Debug("Session bootstrapped", "user_id", session.UserID, "groups", len(groupIDs))
	return nil
}

// routeIfMember re-reads the membership under the group lock so a concurrent
// removal cannot be undone by a stale read.
func (s *GroupService) routeIfMember(ctx context.Context, groupID, userID string) error {
	unlock := s.groupLocks.Lock(groupID)
	defer unlock()

	isMember, err := s.store.IsMember(ctx, groupID, userID)
	if err != nil {
		return persistence("check membership", err)
	}
	if isMember {
		s.registry.Route(groupID, userID)
	}
	return nil
}

func (s *GroupService) AddMember(ctx context.Context, userID, groupID string) error {
	unlock := s.groupLocks.Lock(groupID)
	defer unlock()
	return s.addMemberLocked(ctx, userID, groupID)
}

func (s *GroupService) addMemberLocked(ctx context.Context, userID, groupID string) error {
	membership := domain.Membership{GroupID: groupID, UserID: userID, JoinedAt: time.Now().UTC()}
	if err := s.store.AddMember(ctx, membership); err != nil {
		return persistence("add member", err)
	}
	return s.joined(ctx, userID, groupID)
}

// joined routes a freshly persisted member and tells the group about it.
func (s *GroupService) joined(ctx context.Context, userID, groupID string) error {
	session, online := s.registry.Lookup(userID)
	name := userID
	if online {
		s.registry.Route(groupID, userID)
		name = session.Name
	} else if user, err := s.store.GetUser(ctx, userID); err == nil {
		name = user.Name
	}

	s.fanout(s.registry.GroupSessions(groupID), event.GroupMemberJoined, event.MemberPayload{
		GroupID: groupID,
		UserID:  userID,
		Name:    name,
	})
	s.log.Info("Member joined group", "group_id", groupID, "user_id", userID, "online", online)

	if !online {
		return nil
	}
	if err := s.notifier.SendGroupList(ctx, session); err != nil {
		return err
	}
	return s.notifier.SendInvitations(ctx, session)
}

// RemoveMember deletes the membership. Users without a routing entry (offline,
// or never routed) are not notified: the row is gone and nothing else is needed.
func (s *GroupService) RemoveMember(ctx context.Context, groupID, userID string) error {
	unlock := s.groupLocks.Lock(groupID)
	defer unlock()

	if err := s.store.RemoveMember(ctx, groupID, userID); err != nil {
		return persistence("remove member", err)
	}

	session, online := s.registry.Lookup(userID)
	if !online || !s.registry.Unroute(groupID, userID) {
		s.log.Debug("Member removed while not routed", "group_id", groupID, "user_id", userID)
		return nil
	}

	s.fanout(s.registry.GroupSessions(groupID), event.GroupMemberLeft, event.MemberPayload{
		GroupID: groupID,
		UserID:  userID,
		Name:    session.Name,
	})
	s.emit(session, event.GroupLeft, event.GroupLeftPayload{GroupID: groupID})
	s.log.Info("Member left group", "group_id", groupID, "user_id", userID)
	return nil
}

// CreateGroup persists a new group under a random id together with its
// creator's membership, then announces the creator as the first member.
func (s *GroupService) CreateGroup(ctx context.Context, ownerID, title, iconURL string) (string, error) {
	group := domain.Group{
		ID:        uuid.NewString(),
		Title:     title,
		IconURL:   iconURL,
		OwnerID:   ownerID,
		CreatedAt: time.Now().UTC(),
	}

	unlock := s.groupLocks.Lock(group.ID)
	defer unlock()

	if err := s.store.CreateGroup(ctx, group); err != nil {
		return "", persistence("create group", err)
	}
	if err := s.joined(ctx, ownerID, group.ID); err != nil {
		return group.ID, err
	}
	if session, online := s.registry.Lookup(ownerID); online {
		s.emit(session, event.GroupCreated, s.groupInfo(group.ID, group.Title, group.IconURL))
	}
	s.log.Info("Group created", "group_id", group.ID, "owner_id", ownerID)
	return group.ID, nil
}

// UpdateGroup changes the title and icon. Only a connected member may do it.
func (s *GroupService) UpdateGroup(ctx context.Context, actorID, groupID, title, iconURL string) error {
	unlock := s.groupLocks.Lock(groupID)
	defer unlock()

	if !s.registry.IsRouted(groupID, actorID) {
		return errors.ErrNotMember
	}
	if err := s.store.UpdateGroup(ctx, groupID, title, iconURL); err != nil {
		if stderrors.Is(err, errors.ErrGroupNotFound) {
			return err
		}
		return persistence("update group", err)
	}

	s.fanout(s.registry.GroupSessions(groupID), event.UpdateGroup, s.groupInfo(groupID, title, iconURL))
	return nil
}

// Invite offers membership of groupID to targetID, or adds it straight away
// in direct-add mode. The inviter must be a connected member.
func (s *GroupService) Invite(ctx context.Context, inviterID, targetID, groupID string) error {
	unlock := s.groupLocks.Lock(groupID)
	defer unlock()

	if !s.registry.IsRouted(groupID, inviterID) {
		return errors.ErrNotMember
	}
	isMember, err := s.store.IsMember(ctx, groupID, targetID)
	if err != nil {
		return persistence("check membership", err)
	}
	if isMember {
		s.log.Debug("Invitation target is already a member", "group_id", groupID, "user_id", targetID)
		return nil
	}

	if s.options.Mode == domain.DirectAdd {
		return s.addMemberLocked(ctx, targetID, groupID)
	}

	invitation := domain.Invitation{
		UserID:    targetID,
		GroupID:   groupID,
		InviterID: inviterID,
		CreatedAt: time.Now().UTC(),
	}
	if err = s.store.AddInvitation(ctx, invitation); err != nil {
		return persistence("add invitation", err)
	}
	s.log.Info("Invitation created", "group_id", groupID, "user_id", targetID, "inviter_id", inviterID)

	target, online := s.registry.Lookup(targetID)
	if !online {
		return nil
	}
	group, err := s.store.GetGroup(ctx, groupID)
	if err != nil {
		return persistence("get group", err)
	}
	s.emit(target, event.GroupInvited, event.InvitationInfo{
		GroupID:   group.ID,
		Title:     s.censor.Censor(group.Title),
		IconURL:   group.IconURL,
		InviterID: inviterID,
	})
	return s.notifier.SendInvitations(ctx, target)
}

// Accept consumes the invitation and joins the group.
func (s *GroupService) Accept(ctx context.Context, userID, groupID string) error {
	unlock := s.groupLocks.Lock(groupID)
	defer unlock()

	found, err := s.store.ConsumeInvitation(ctx, userID, groupID)
	if err != nil {
		return persistence("consume invitation", err)
	}
	if !found {
		return errors.ErrNoSuchInvitation
	}
	return s.addMemberLocked(ctx, userID, groupID)
}

// Decline consumes the invitation without joining.
func (s *GroupService) Decline(ctx context.Context, userID, groupID string) error {
	unlock := s.groupLocks.Lock(groupID)
	defer unlock()

	found, err := s.store.ConsumeInvitation(ctx, userID, groupID)
	if err != nil {
		return persistence("consume invitation", err)
	}
	if !found {
		return errors.ErrNoSuchInvitation
	}
	if session, online := s.registry.Lookup(userID); online {
		return s.notifier.SendInvitations(ctx, session)
	}
	return nil
}

func (s *GroupService) Leave(ctx context.Context, groupID, userID string) error {
	return s.RemoveMember(ctx, groupID, userID)
}

// Kick removes kickedID from groupID on behalf of actorID. Unless
// KickRequiresMembership is set, any connected user may kick anyone.
func (s *GroupService) Kick(ctx context.Context, actorID, groupID, kickedID string) error {
	if s.options.KickRequiresMembership && !s.registry.IsRouted(groupID, actorID) {
		return errors.ErrNotMember
	}
	s.log.Info("Kicking member", "group_id", groupID, "user_id", kickedID, "actor_id", actorID)
	return s.RemoveMember(ctx, groupID, kickedID)
}

func (s *GroupService) groupInfo(groupID, title, iconURL string) event.GroupInfo {
	return event.GroupInfo{GroupID: groupID, Title: s.censor.Censor(title), IconURL: iconURL}
}
