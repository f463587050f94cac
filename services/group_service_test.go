package services

import (
	"context"
	"fmt"
	"game-relay/domain"
	"game-relay/domain/event"
	"game-relay/errors"
	"game-relay/mocks"
	"game-relay/runtime"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestGroupService_CreateGroup_Creator_Joins(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newFixture(t, GroupOptions{})
	_, alice := f.connect(t, "alice", "Alice")

	// When A creates group G
	groupID, err := f.groups.CreateGroup(ctx, "alice", "Party", "x")
	req.NoError(err)

	// Then A is immediately a member of G
	req.True(f.registry.IsRouted(groupID, "alice"))
	isMember, err := f.store.IsMember(ctx, groupID, "alice")
	req.NoError(err)
	req.True(isMember)

	// And A's client heard about it
	created, ok := alice.last(event.GroupCreated)
	req.True(ok)
	req.Equal(event.GroupInfo{GroupID: groupID, Title: "Party", IconURL: "x"}, created)
	req.Equal(1, alice.count(event.GroupMemberJoined))
	list, ok := alice.last(event.GroupList)
	req.True(ok)
	req.Equal([]event.GroupInfo{{GroupID: groupID, Title: "Party", IconURL: "x"}}, list.(event.GroupListPayload).Groups)
	req.Equal(1, alice.count(event.GroupInvitationList))

	group, err := f.store.GetGroup(ctx, groupID)
	req.NoError(err)
	req.Equal("alice", group.OwnerID)
	f.requireRoutingConsistent(t, groupID)
}

func TestGroupService_UpdateGroup(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newFixture(t, GroupOptions{})
	f.connect(t, "alice", "Alice")
	_, bob := f.connect(t, "bob", "Bob")

	groupID, err := f.groups.CreateGroup(ctx, "alice", "Party", "x")
	req.NoError(err)

	// When non-member B updates G
	err = f.groups.UpdateGroup(ctx, "bob", groupID, "Hijacked", "y")

	// Then it is refused and the title is unchanged
	req.ErrorIs(err, errors.ErrNotMember)
	group, err := f.store.GetGroup(ctx, groupID)
	req.NoError(err)
	req.Equal("Party", group.Title)
	req.Zero(bob.count(event.UpdateGroup))

	// When B joins and updates it
	req.NoError(f.groups.AddMember(ctx, "bob", groupID))
	req.NoError(f.groups.UpdateGroup(ctx, "bob", groupID, "Raid", "y"))

	group, err = f.store.GetGroup(ctx, groupID)
	req.NoError(err)
	req.Equal("Raid", group.Title)
	updated, ok := bob.last(event.UpdateGroup)
	req.True(ok)
	req.Equal(event.GroupInfo{GroupID: groupID, Title: "Raid", IconURL: "y"}, updated)
}

func TestGroupService_UpdateGroup_Title_Is_Censored_On_Delivery_Only(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newFixture(t, GroupOptions{})
	_, alice := f.connect(t, "alice", "Alice")

	groupID, err := f.groups.CreateGroup(ctx, "alice", "Party", "x")
	req.NoError(err)
	req.NoError(f.groups.UpdateGroup(ctx, "alice", groupID, "badger club", "x"))

	updated, _ := alice.last(event.UpdateGroup)
	req.Equal("****** club", updated.(event.GroupInfo).Title)
	group, err := f.store.GetGroup(ctx, groupID)
	req.NoError(err)
	req.Equal("badger club", group.Title)
}

func TestGroupService_AddMember_Is_Idempotent(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newFixture(t, GroupOptions{})
	f.connect(t, "alice", "Alice")
	f.connect(t, "bob", "Bob")
	groupID, err := f.groups.CreateGroup(ctx, "alice", "Party", "x")
	req.NoError(err)

	// When B is added twice in sequence
	req.NoError(f.groups.AddMember(ctx, "bob", groupID))
	req.NoError(f.groups.AddMember(ctx, "bob", groupID))

	// Then one persisted row and one routing entry exist for B
	members, err := f.store.MembersOfGroup(ctx, groupID)
	req.NoError(err)
	req.ElementsMatch([]string{"alice", "bob"}, members)
	req.Len(f.registry.GroupSessions(groupID), 2)
	f.requireRoutingConsistent(t, groupID)
}

func TestGroupService_AddMember_Offline_User(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newFixture(t, GroupOptions{})
	_, alice := f.connect(t, "alice", "Alice")
	groupID, err := f.groups.CreateGroup(ctx, "alice", "Party", "x")
	req.NoError(err)
	alice.reset()

	// When an offline user is added
	req.NoError(f.groups.AddMember(ctx, "ghost", groupID))

	// Then the row is persisted but nothing is routed for it
	isMember, err := f.store.IsMember(ctx, groupID, "ghost")
	req.NoError(err)
	req.True(isMember)
	req.False(f.registry.IsRouted(groupID, "ghost"))

	// And connected members are told
	joined, ok := alice.last(event.GroupMemberJoined)
	req.True(ok)
	req.Equal(event.MemberPayload{GroupID: groupID, UserID: "ghost", Name: "ghost"}, joined)

	// When the user connects later, bootstrap routes it
	f.connect(t, "ghost", "Ghost")
	req.True(f.registry.IsRouted(groupID, "ghost"))
	f.requireRoutingConsistent(t, groupID)
}

func TestGroupService_Invite_Then_Accept(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newFixture(t, GroupOptions{Mode: domain.InviteRequired})
	_, alice := f.connect(t, "alice", "Alice")
	_, bob := f.connect(t, "bob", "Bob")
	groupID, err := f.groups.CreateGroup(ctx, "alice", "Party", "x")
	req.NoError(err)

	// When A invites B
	req.NoError(f.groups.Invite(ctx, "alice", "bob", groupID))

	// Then B is notified but not a member yet
	invited, ok := bob.last(event.GroupInvited)
	req.True(ok)
	req.Equal(event.InvitationInfo{GroupID: groupID, Title: "Party", IconURL: "x", InviterID: "alice"}, invited)
	list, _ := bob.last(event.GroupInvitationList)
	req.Len(list.(event.InvitationListPayload).Invitations, 1)
	req.False(f.registry.IsRouted(groupID, "bob"))

	// When B accepts
	alice.reset()
	req.NoError(f.groups.Accept(ctx, "bob", groupID))

	// Then B is routed and no invitation remains
	req.True(f.registry.IsRouted(groupID, "bob"))
	invitations, err := f.store.InvitationsOfUser(ctx, "bob")
	req.NoError(err)
	req.Empty(invitations)
	joined, ok := alice.last(event.GroupMemberJoined)
	req.True(ok)
	req.Equal(event.MemberPayload{GroupID: groupID, UserID: "bob", Name: "Bob"}, joined)
	req.Equal(1, bob.count(event.GroupMemberJoined))
	f.requireRoutingConsistent(t, groupID)

	// And accepting again is refused
	req.ErrorIs(f.groups.Accept(ctx, "bob", groupID), errors.ErrNoSuchInvitation)
}

func TestGroupService_Invite_Then_Decline(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newFixture(t, GroupOptions{})
	f.connect(t, "alice", "Alice")
	_, bob := f.connect(t, "bob", "Bob")
	groupID, err := f.groups.CreateGroup(ctx, "alice", "Party", "x")
	req.NoError(err)
	req.NoError(f.groups.Invite(ctx, "alice", "bob", groupID))
	bob.reset()

	// When B declines
	req.NoError(f.groups.Decline(ctx, "bob", groupID))

	// Then membership is unchanged and no invitation remains
	req.False(f.registry.IsRouted(groupID, "bob"))
	isMember, err := f.store.IsMember(ctx, groupID, "bob")
	req.NoError(err)
	req.False(isMember)
	invitations, err := f.store.InvitationsOfUser(ctx, "bob")
	req.NoError(err)
	req.Empty(invitations)

	// And B's client gets its refreshed invitation list
	list, ok := bob.last(event.GroupInvitationList)
	req.True(ok)
	req.Empty(list.(event.InvitationListPayload).Invitations)

	req.ErrorIs(f.groups.Decline(ctx, "bob", groupID), errors.ErrNoSuchInvitation)
}

func TestGroupService_Invite_Requires_Membership(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newFixture(t, GroupOptions{})
	f.connect(t, "alice", "Alice")
	f.connect(t, "mallory", "Mallory")
	groupID, err := f.groups.CreateGroup(ctx, "alice", "Party", "x")
	req.NoError(err)

	req.ErrorIs(f.groups.Invite(ctx, "mallory", "bob", groupID), errors.ErrNotMember)
	invitations, err := f.store.InvitationsOfUser(ctx, "bob")
	req.NoError(err)
	req.Empty(invitations)
}

func TestGroupService_Invite_Offline_Target(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newFixture(t, GroupOptions{})
	f.connect(t, "alice", "Alice")
	groupID, err := f.groups.CreateGroup(ctx, "alice", "Party", "x")
	req.NoError(err)

	req.NoError(f.groups.Invite(ctx, "alice", "bob", groupID))

	// When B connects later, the invitation is still there to accept
	f.connect(t, "bob", "Bob")
	req.NoError(f.groups.Accept(ctx, "bob", groupID))
	req.True(f.registry.IsRouted(groupID, "bob"))
}

func TestGroupService_Invite_Existing_Member_Is_Noop(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newFixture(t, GroupOptions{})
	f.connect(t, "alice", "Alice")
	_, bob := f.connect(t, "bob", "Bob")
	groupID, err := f.groups.CreateGroup(ctx, "alice", "Party", "x")
	req.NoError(err)
	req.NoError(f.groups.AddMember(ctx, "bob", groupID))

	req.NoError(f.groups.Invite(ctx, "alice", "bob", groupID))

	req.Zero(bob.count(event.GroupInvited))
	invitations, err := f.store.InvitationsOfUser(ctx, "bob")
	req.NoError(err)
	req.Empty(invitations)
}

func TestGroupService_Invite_DirectAdd(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newFixture(t, GroupOptions{Mode: domain.DirectAdd})
	f.connect(t, "alice", "Alice")
	_, bob := f.connect(t, "bob", "Bob")
	groupID, err := f.groups.CreateGroup(ctx, "alice", "Party", "x")
	req.NoError(err)

	// When A invites B in direct-add mode
	req.NoError(f.groups.Invite(ctx, "alice", "bob", groupID))

	// Then B joins right away and no invitation row is written
	req.True(f.registry.IsRouted(groupID, "bob"))
	req.Zero(bob.count(event.GroupInvited))
	invitations, err := f.store.InvitationsOfUser(ctx, "bob")
	req.NoError(err)
	req.Empty(invitations)
	f.requireRoutingConsistent(t, groupID)
}

func TestGroupService_Leave(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newFixture(t, GroupOptions{})
	_, alice := f.connect(t, "alice", "Alice")
	_, carol := f.connect(t, "carol", "Carol")
	groupID, err := f.groups.CreateGroup(ctx, "alice", "Party", "x")
	req.NoError(err)
	req.NoError(f.groups.AddMember(ctx, "carol", groupID))
	alice.reset()
	carol.reset()

	// When C leaves
	req.NoError(f.groups.Leave(ctx, groupID, "carol"))

	// Then A hears about it, C is told it left, and C is no longer routed
	left, ok := alice.last(event.GroupMemberLeft)
	req.True(ok)
	req.Equal(event.MemberPayload{GroupID: groupID, UserID: "carol", Name: "Carol"}, left)
	req.Zero(carol.count(event.GroupMemberLeft))
	gone, ok := carol.last(event.GroupLeft)
	req.True(ok)
	req.Equal(event.GroupLeftPayload{GroupID: groupID}, gone)
	req.False(f.registry.IsRouted(groupID, "carol"))
	isMember, err := f.store.IsMember(ctx, groupID, "carol")
	req.NoError(err)
	req.False(isMember)
	f.requireRoutingConsistent(t, groupID)
}

func TestGroupService_RemoveMember_Offline_User_Is_Silent(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newFixture(t, GroupOptions{})
	_, alice := f.connect(t, "alice", "Alice")
	groupID, err := f.groups.CreateGroup(ctx, "alice", "Party", "x")
	req.NoError(err)
	req.NoError(f.groups.AddMember(ctx, "ghost", groupID))
	alice.reset()

	req.NoError(f.groups.RemoveMember(ctx, groupID, "ghost"))

	isMember, err := f.store.IsMember(ctx, groupID, "ghost")
	req.NoError(err)
	req.False(isMember)
	req.True(alice.empty())
}

func TestGroupService_Kick(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newFixture(t, GroupOptions{})
	f.connect(t, "alice", "Alice")
	_, bob := f.connect(t, "bob", "Bob")
	f.connect(t, "mallory", "Mallory")
	groupID, err := f.groups.CreateGroup(ctx, "alice", "Party", "x")
	req.NoError(err)
	req.NoError(f.groups.AddMember(ctx, "bob", groupID))

	// When an outsider kicks B, it goes through: no actor check by default
	req.NoError(f.groups.Kick(ctx, "mallory", groupID, "bob"))
	req.False(f.registry.IsRouted(groupID, "bob"))
	req.Equal(1, bob.count(event.GroupLeft))
}

func TestGroupService_Kick_Requires_Membership_When_Enabled(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newFixture(t, GroupOptions{KickRequiresMembership: true})
	f.connect(t, "alice", "Alice")
	f.connect(t, "bob", "Bob")
	f.connect(t, "mallory", "Mallory")
	groupID, err := f.groups.CreateGroup(ctx, "alice", "Party", "x")
	req.NoError(err)
	req.NoError(f.groups.AddMember(ctx, "bob", groupID))

	req.ErrorIs(f.groups.Kick(ctx, "mallory", groupID, "bob"), errors.ErrNotMember)
	req.True(f.registry.IsRouted(groupID, "bob"))

	req.NoError(f.groups.Kick(ctx, "alice", groupID, "bob"))
	req.False(f.registry.IsRouted(groupID, "bob"))
}

func TestGroupService_Bootstrap_After_Reconnection(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newFixture(t, GroupOptions{})
	f.connect(t, "alice", "Alice")
	_, oldBob := f.connect(t, "bob", "Bob")
	groupID, err := f.groups.CreateGroup(ctx, "alice", "Party", "x")
	req.NoError(err)
	req.NoError(f.groups.AddMember(ctx, "bob", groupID))

	// When B reconnects
	current, newBob := f.connect(t, "bob", "Bob")

	// Then the old transport is closed and group traffic reaches the new one
	req.True(oldBob.isClosed())
	alice, _ := f.registry.Lookup("alice")
	req.NoError(f.router.Group(alice, groupID, "hello"))
	req.Equal(1, newBob.count(event.Group))
	req.Zero(oldBob.count(event.Group))

	sessions := f.registry.GroupSessions(groupID)
	req.Len(sessions, 2)
	req.Contains(sessions, current)
	f.requireRoutingConsistent(t, groupID)
}

func TestGroupService_Concurrent_Join_Leave_Keeps_Index_Consistent(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newFixture(t, GroupOptions{})
	f.connect(t, "alice", "Alice")
	groupID, err := f.groups.CreateGroup(ctx, "alice", "Party", "x")
	req.NoError(err)

	userIDs := make([]string, 10)
	for i := range userIDs {
		userIDs[i] = fmt.Sprintf("user-%d", i)
		f.connect(t, userIDs[i], fmt.Sprintf("User %d", i))
	}

	done := make(chan struct{})
	for _, userID := range userIDs {
		go func(userID string) {
			defer func() { done <- struct{}{} }()
			for j := 0; j < 5; j++ {
				_ = f.groups.AddMember(ctx, userID, groupID)
				_ = f.groups.Leave(ctx, groupID, userID)
			}
			_ = f.groups.AddMember(ctx, userID, groupID)
		}(userID)
	}
	for range userIDs {
		<-done
	}

	req.Len(f.registry.GroupSessions(groupID), len(userIDs)+1)
	f.requireRoutingConsistent(t, groupID)
}

func TestGroupService_Persistence_Failure_Leaves_Routing_Untouched(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	store := mocks.NewMockIStore(ctrl)
	censor := mocks.NewMockICensor(ctrl)
	censor.EXPECT().Censor(gomock.Any()).DoAndReturn(func(s string) string { return s }).AnyTimes()

	log := slog.Default()
	tickets := runtime.NewTicketStore()
	registry := runtime.NewRegistry(tickets, log, nil)
	notifier := NewNotifier(store, registry, censor, log, nil)
	groups := NewGroupService(store, registry, notifier, censor, GroupOptions{}, log, nil)

	tickets.Issue(domain.PendingTicket{UserID: "bob", Name: "Bob", ConnectionKey: "k"})
	bob := &recorder{}
	_, err := registry.Admit("bob", "k", bob)
	req.NoError(err)
	groupID := uuid.NewString()

	// Given the store rejects the membership write
	store.EXPECT().
		AddMember(gomock.Any(), gomock.Any()).
		Return(fmt.Errorf("disk full")).
		Times(1)

	// When B is added
	err = groups.AddMember(ctx, "bob", groupID)

	// Then the error is a persistence failure and nothing was routed or sent
	req.ErrorIs(err, errors.ErrPersistence)
	req.False(registry.IsRouted(groupID, "bob"))
	req.True(bob.empty())
}

func TestGroupService_Accept_Store_Failure(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	store := mocks.NewMockIStore(ctrl)
	censor := mocks.NewMockICensor(ctrl)
	log := slog.Default()
	registry := runtime.NewRegistry(runtime.NewTicketStore(), log, nil)
	groups := NewGroupService(store, registry, NewNotifier(store, registry, censor, log, nil), censor, GroupOptions{}, log, nil)

	store.EXPECT().
		ConsumeInvitation(gomock.Any(), "bob", gomock.Any()).
		Return(false, fmt.Errorf("conflict")).
		Times(1)
	store.EXPECT().AddMember(gomock.Any(), gomock.Any()).Times(0)

	err := groups.Accept(context.Background(), "bob", uuid.NewString())
	req.ErrorIs(err, errors.ErrPersistence)
}

func TestGroupService_Invite_Rejects_Separator_In_User_Id(t *testing.T) {
	for _, mode := range []domain.InviteMode{domain.InviteRequired, domain.DirectAdd} {
		t.Run(string(mode), func(t *testing.T) {
			req := require.New(t)
			ctx := context.Background()
			f := newFixture(t, GroupOptions{Mode: mode})
			f.connect(t, "alice", "Alice")
			f.connect(t, "bob", "Bob")
			groupID, err := f.groups.CreateGroup(ctx, "alice", "Party", "x")
			req.NoError(err)

			// When A invites an id extending B's
			err = f.groups.Invite(ctx, "alice", "bob:junk", groupID)

			// Then nothing lands under B's keys
			req.ErrorIs(err, errors.ErrInvalidPayload)
			req.NotErrorIs(err, errors.ErrPersistence)
			invitations, err := f.store.InvitationsOfUser(ctx, "bob")
			req.NoError(err)
			req.Empty(invitations)
			members, err := f.store.MembersOfGroup(ctx, groupID)
			req.NoError(err)
			req.Equal([]string{"alice"}, members)
			groups, err := f.store.GroupsOfUser(ctx, "bob")
			req.NoError(err)
			req.Empty(groups)
		})
	}
}

func TestGroupService_CreateGroup_Store_Failure(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	store := mocks.NewMockIStore(ctrl)
	censor := mocks.NewMockICensor(ctrl)
	log := slog.Default()
	tickets := runtime.NewTicketStore()
	registry := runtime.NewRegistry(tickets, log, nil)
	groups := NewGroupService(store, registry, NewNotifier(store, registry, censor, log, nil), censor, GroupOptions{}, log, nil)

	tickets.Issue(domain.PendingTicket{UserID: "alice", Name: "Alice", ConnectionKey: "k"})
	alice := &recorder{}
	_, err := registry.Admit("alice", "k", alice)
	req.NoError(err)

	// Given the store rejects the group and owner write
	store.EXPECT().
		CreateGroup(gomock.Any(), gomock.Any()).
		Return(fmt.Errorf("disk full")).
		Times(1)
	store.EXPECT().AddMember(gomock.Any(), gomock.Any()).Times(0)

	// When A creates a group
	groupID, err := groups.CreateGroup(context.Background(), "alice", "Party", "x")

	// Then nothing was routed or sent
	req.ErrorIs(err, errors.ErrPersistence)
	req.Empty(groupID)
	req.Empty(registry.GroupsOf("alice"))
	req.True(alice.empty())
}
