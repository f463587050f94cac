package services

import (
	"context"
	stderrors "errors"
	"game-relay/contract"
	"game-relay/domain/event"
	"game-relay/errors"
	"game-relay/observability"
	"game-relay/runtime"
	"log/slog"
	"sort"

	"github.com/samber/lo"
)

// Notifier pushes snapshots of persisted state to a single session.
type Notifier struct {
	store    contract.IStore
	registry *runtime.Registry
	censor   contract.ICensor
	emitter
}

func NewNotifier(store contract.IStore, registry *runtime.Registry, censor contract.ICensor,
	log *slog.Logger, metrics *observability.Metrics) *Notifier {
	return &Notifier{
		store:    store,
		registry: registry,
		censor:   censor,
		emitter:  emitter{log: log, metrics: metrics},
	}
}

// SendGroupList pushes every group the user holds a membership in.
func (n *Notifier) SendGroupList(ctx context.Context, session *runtime.Session) error {
	groupIDs, err := n.store.GroupsOfUser(ctx, session.UserID)
	if err != nil {
		return persistence("list groups of user", err)
	}

	groups := make([]event.GroupInfo, 0, len(groupIDs))
	for _, groupID := range groupIDs {
		group, err := n.store.GetGroup(ctx, groupID)
		if stderrors.Is(err, errors.ErrGroupNotFound) {
			n.log.Warn("Membership references a missing group", "user_id", session.UserID, "group_id", groupID)
			continue
		}
		if err != nil {
			return persistence("get group", err)
		}
		groups = append(groups, event.GroupInfo{
			GroupID: group.ID,
			Title:   n.censor.Censor(group.Title),
			IconURL: group.IconURL,
		})
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].GroupID < groups[j].GroupID })

	n.emit(session, event.GroupList, event.GroupListPayload{Groups: groups})
	return nil
}

// SendGroupMembers pushes the persisted member list of groupID with each
// member's presence. Only connected members of the group may ask for it.
func (n *Notifier) SendGroupMembers(ctx context.Context, session *runtime.Session, groupID string) error {
	if !n.registry.IsRouted(groupID, session.UserID) {
		return errors.ErrNotMember
	}
	userIDs, err := n.store.MembersOfGroup(ctx, groupID)
	if err != nil {
		return persistence("list members of group", err)
	}

	users := make([]event.GroupMember, 0, len(userIDs))
	for _, userID := range userIDs {
		if member, online := n.registry.Lookup(userID); online {
			users = append(users, event.GroupMember{UserID: userID, Name: member.Name, Online: true})
			continue
		}
		name, err := n.displayName(ctx, userID)
		if err != nil {
			return err
		}
		users = append(users, event.GroupMember{UserID: userID, Name: name})
	}

	n.emit(session, event.GroupUserList, event.GroupUserListPayload{GroupID: groupID, Users: users})
	return nil
}

// SendInvitations pushes the invitations still pending for the user.
func (n *Notifier) SendInvitations(ctx context.Context, session *runtime.Session) error {
	invitations, err := n.store.InvitationsOfUser(ctx, session.UserID)
	if err != nil {
		return persistence("list invitations of user", err)
	}

	infos := make([]event.InvitationInfo, 0, len(invitations))
	for _, invitation := range invitations {
		group, err := n.store.GetGroup(ctx, invitation.GroupID)
		if stderrors.Is(err, errors.ErrGroupNotFound) {
			continue
		}
		if err != nil {
			return persistence("get group", err)
		}
		infos = append(infos, event.InvitationInfo{
			GroupID:   group.ID,
			Title:     n.censor.Censor(group.Title),
			IconURL:   group.IconURL,
			InviterID: invitation.InviterID,
		})
	}

	n.emit(session, event.GroupInvitationList, event.InvitationListPayload{Invitations: infos})
	return nil
}

// displayName resolves an offline user's name from the users collection,
// falling back to the id for users never seen by the ticket endpoint.
func (n *Notifier) displayName(ctx context.Context, userID string) (string, error) {
	user, err := n.store.GetUser(ctx, userID)
	if stderrors.Is(err, errors.ErrUserNotFound) {
		return userID, nil
	}
	if err != nil {
		return "", persistence("get user", err)
	}
	return lo.Ternary(user.Name != "", user.Name, userID), nil
}
