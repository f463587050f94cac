//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"context"
	"game-relay/domain"
)

// Transport is the outbound half of a client connection.
// Emit must not block on a slow peer.
type Transport interface {
	Emit(event string, payload any) error
	Close() error
}

// ICensor rewrites text before it is delivered. It must be pure and idempotent.
type ICensor interface {
	Censor(text string) string
}

// IStore is the persisted side of users, groups, memberships and invitations.
// Membership and invitation writes have delete-then-insert semantics.
type IStore interface {
	SaveUser(ctx context.Context, user domain.User) error
	GetUser(ctx context.Context, userID string) (domain.User, error)

	// CreateGroup also makes group.OwnerID a member, atomically.
	CreateGroup(ctx context.Context, group domain.Group) error
	UpdateGroup(ctx context.Context, groupID, title, iconURL string) error
	GetGroup(ctx context.Context, groupID string) (domain.Group, error)

	AddMember(ctx context.Context, membership domain.Membership) error
	RemoveMember(ctx context.Context, groupID, userID string) error
	IsMember(ctx context.Context, groupID, userID string) (bool, error)
	GroupsOfUser(ctx context.Context, userID string) ([]string, error)
	MembersOfGroup(ctx context.Context, groupID string) ([]string, error)

	AddInvitation(ctx context.Context, invitation domain.Invitation) error
	// ConsumeInvitation deletes the invitation and reports whether it existed.
	ConsumeInvitation(ctx context.Context, userID, groupID string) (bool, error)
	InvitationsOfUser(ctx context.Context, userID string) ([]domain.Invitation, error)
}
