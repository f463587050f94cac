package repositories

import (
	"context"
	"fmt"
	"game-relay/codec"
	"game-relay/domain"
	"game-relay/errors"
	"log/slog"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/samber/lo"
)

// Store persists users, groups, memberships and invitations in BadgerDB.
//
// Key layout:
//
//	user:{user_id}                        -> userRow
//	group:{group_id}                      -> groupRow
//	member:{group_id}:{user_id}           -> membershipRow
//	idx:user-groups:{user_id}:{group_id}  -> (empty)
//	invite:{user_id}:{group_id}           -> invitationRow
//
// Ids never contain ':' (rejected at ticket issuance and again here), so
// prefix scans on either side are unambiguous.
type Store struct {
	db  *badger.DB
	log *slog.Logger
}

func NewStore(db *badger.DB, log *slog.Logger) Store {
	return Store{db: db, log: log}
}

type userRow struct {
	ID         string `cbor:"id"`
	Name       string `cbor:"name"`
	LastSeenAt int64  `cbor:"last_seen_at"`
}

type groupRow struct {
	ID        string `cbor:"id"`
	Title     string `cbor:"title"`
	IconURL   string `cbor:"icon_url"`
	OwnerID   string `cbor:"owner_id"`
	CreatedAt int64  `cbor:"created_at"`
}

type membershipRow struct {
	GroupID  string `cbor:"group_id"`
	UserID   string `cbor:"user_id"`
	JoinedAt int64  `cbor:"joined_at"`
}

type invitationRow struct {
	UserID    string `cbor:"user_id"`
	GroupID   string `cbor:"group_id"`
	InviterID string `cbor:"inviter_id"`
	CreatedAt int64  `cbor:"created_at"`
}

const keySeparator = ":"

// checkIDs refuses ids that would make one key a prefix of another owner's
// keys, such as "bob:x" under the prefix scans of "bob".
func checkIDs(ids ...string) error {
	for _, id := range ids {
		if id == "" || strings.Contains(id, keySeparator) {
			return fmt.Errorf("%w: id %q", errors.ErrInvalidPayload, id)
		}
	}
	return nil
}

func userKey(userID string) []byte { return []byte("user:" + userID) }

func groupKey(groupID string) []byte { return []byte("group:" + groupID) }

func memberPrefix(groupID string) string { return "member:" + groupID + ":" }

func memberKey(groupID, userID string) []byte { return []byte(memberPrefix(groupID) + userID) }

func userGroupsPrefix(userID string) string { return "idx:user-groups:" + userID + ":" }

func userGroupKey(userID, groupID string) []byte {
	return []byte(userGroupsPrefix(userID) + groupID)
}

func invitePrefix(userID string) string { return "invite:" + userID + ":" }

func inviteKey(userID, groupID string) []byte { return []byte(invitePrefix(userID) + groupID) }

func (s Store) SaveUser(ctx context.Context, user domain.User) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := checkIDs(user.ID); err != nil {
		return err
	}
	bytes, err := codec.Marshal(userRow{ID: user.ID, Name: user.Name, LastSeenAt: user.LastSeenAt.UnixNano()})
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(userKey(user.ID), bytes)
	})
}

func (s Store) GetUser(ctx context.Context, userID string) (domain.User, error) {
	if err := ctx.Err(); err != nil {
		return domain.User{}, err
	}
	var row userRow
	err := s.db.View(func(txn *badger.Txn) error {
		return get(txn, userKey(userID), &row)
	})
	if err == badger.ErrKeyNotFound {
		return domain.User{}, errors.ErrUserNotFound
	}
	if err != nil {
		return domain.User{}, err
	}
	return domain.User{ID: row.ID, Name: row.Name, LastSeenAt: time.Unix(0, row.LastSeenAt).UTC()}, nil
}

// CreateGroup writes the group and its owner's membership in one
// transaction: a group never exists without its first member.
func (s Store) CreateGroup(ctx context.Context, group domain.Group) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := checkIDs(group.ID, group.OwnerID); err != nil {
		return err
	}
	groupBytes, err := codec.Marshal(fromGroup(group))
	if err != nil {
		return err
	}
	memberBytes, err := codec.Marshal(membershipRow{
		GroupID:  group.ID,
		UserID:   group.OwnerID,
		JoinedAt: group.CreatedAt.UnixNano(),
	})
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(groupKey(group.ID), groupBytes); err != nil {
			return err
		}
		if err := txn.Set(memberKey(group.ID, group.OwnerID), memberBytes); err != nil {
			return err
		}
		return txn.Set(userGroupKey(group.OwnerID, group.ID), nil)
	})
}

// UpdateGroup rewrites the title and icon of an existing group in a single transaction.
func (s Store) UpdateGroup(ctx context.Context, groupID, title, iconURL string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := s.db.Update(func(txn *badger.Txn) error {
		var row groupRow
		if err := get(txn, groupKey(groupID), &row); err != nil {
			return err
		}
		row.Title = title
		row.IconURL = iconURL
		bytes, err := codec.Marshal(row)
		if err != nil {
			return err
		}
		return txn.Set(groupKey(groupID), bytes)
	})
	if err == badger.ErrKeyNotFound {
		return errors.ErrGroupNotFound
	}
	return err
}

func (s Store) GetGroup(ctx context.Context, groupID string) (domain.Group, error) {
	if err := ctx.Err(); err != nil {
		return domain.Group{}, err
	}
	var row groupRow
	err := s.db.View(func(txn *badger.Txn) error {
		return get(txn, groupKey(groupID), &row)
	})
	if err == badger.ErrKeyNotFound {
		return domain.Group{}, errors.ErrGroupNotFound
	}
	if err != nil {
		return domain.Group{}, err
	}
	return toGroup(row), nil
}

// AddMember clears any previous row for the pair before inserting, so a
// retried call leaves exactly one membership behind.
func (s Store) AddMember(ctx context.Context, membership domain.Membership) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := checkIDs(membership.GroupID, membership.UserID); err != nil {
		return err
	}
	bytes, err := codec.Marshal(membershipRow{
		GroupID:  membership.GroupID,
		UserID:   membership.UserID,
		JoinedAt: membership.JoinedAt.UnixNano(),
	})
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		mKey := memberKey(membership.GroupID, membership.UserID)
		idxKey := userGroupKey(membership.UserID, membership.GroupID)
		if err := txn.Delete(mKey); err != nil {
			return err
		}
		if err := txn.Delete(idxKey); err != nil {
			return err
		}
		if err := txn.Set(mKey, bytes); err != nil {
			return err
		}
		return txn.Set(idxKey, nil)
	})
}

func (s Store) RemoveMember(ctx context.Context, groupID, userID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := checkIDs(groupID, userID); err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Delete(memberKey(groupID, userID)); err != nil {
			return err
		}
		return txn.Delete(userGroupKey(userID, groupID))
	})
}

func (s Store) IsMember(ctx context.Context, groupID, userID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if err := checkIDs(groupID, userID); err != nil {
		return false, err
	}
	err := s.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(memberKey(groupID, userID))
		return err
	})
	if err == badger.ErrKeyNotFound {
		return false, nil
	}
	return err == nil, err
}

func (s Store) GroupsOfUser(ctx context.Context, userID string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := checkIDs(userID); err != nil {
		return nil, err
	}
	return s.keySuffixes(userGroupsPrefix(userID))
}

func (s Store) MembersOfGroup(ctx context.Context, groupID string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := checkIDs(groupID); err != nil {
		return nil, err
	}
	return s.keySuffixes(memberPrefix(groupID))
}

// AddInvitation replaces any pending invitation for the same pair.
func (s Store) AddInvitation(ctx context.Context, invitation domain.Invitation) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := checkIDs(invitation.UserID, invitation.GroupID); err != nil {
		return err
	}
	bytes, err := codec.Marshal(invitationRow{
		UserID:    invitation.UserID,
		GroupID:   invitation.GroupID,
		InviterID: invitation.InviterID,
		CreatedAt: invitation.CreatedAt.UnixNano(),
	})
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		key := inviteKey(invitation.UserID, invitation.GroupID)
		if err := txn.Delete(key); err != nil {
			return err
		}
		return txn.Set(key, bytes)
	})
}

// ConsumeInvitation checks and deletes in the same transaction. Two concurrent
// consumers of one invitation conflict, and only one of them commits.
func (s Store) ConsumeInvitation(ctx context.Context, userID, groupID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if err := checkIDs(userID, groupID); err != nil {
		return false, err
	}
	found := false
	err := s.db.Update(func(txn *badger.Txn) error {
		key := inviteKey(userID, groupID)
		if _, err := txn.Get(key); err != nil {
			if err == badger.ErrKeyNotFound {
				return nil
			}
			return err
		}
		found = true
		return txn.Delete(key)
	})
	if err != nil {
		return false, err
	}
	if !found {
		s.log.Debug("No invitation to consume", "user_id", userID, "group_id", groupID)
	}
	return found, nil
}

func (s Store) InvitationsOfUser(ctx context.Context, userID string) ([]domain.Invitation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := checkIDs(userID); err != nil {
		return nil, err
	}
	var rows []invitationRow
	err := s.db.View(func(txn *badger.Txn) error {
		prefix := []byte(invitePrefix(userID))
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var row invitationRow
			err := it.Item().Value(func(val []byte) error {
				return codec.Unmarshal(val, &row)
			})
			if err != nil {
				return err
			}
			rows = append(rows, row)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return lo.Map(rows, func(row invitationRow, _ int) domain.Invitation {
		return domain.Invitation{
			UserID:    row.UserID,
			GroupID:   row.GroupID,
			InviterID: row.InviterID,
			CreatedAt: time.Unix(0, row.CreatedAt).UTC(),
		}
	}), nil
}

// keySuffixes returns what follows prefix in every matching key.
// Values are not fetched.
func (s Store) keySuffixes(prefix string) ([]string, error) {
	var suffixes []string
	err := s.db.View(func(txn *badger.Txn) error {
		options := badger.DefaultIteratorOptions
		options.PrefetchValues = false
		it := txn.NewIterator(options)
		defer it.Close()

		p := []byte(prefix)
		for it.Seek(p); it.ValidForPrefix(p); it.Next() {
			suffixes = append(suffixes, strings.TrimPrefix(string(it.Item().Key()), prefix))
		}
		return nil
	})
	return suffixes, err
}

func get(txn *badger.Txn, key []byte, v any) error {
	item, err := txn.Get(key)
	if err != nil {
		return err
	}
	return item.Value(func(val []byte) error {
		return codec.Unmarshal(val, v)
	})
}

func fromGroup(group domain.Group) groupRow {
	return groupRow{
		ID:        group.ID,
		Title:     group.Title,
		IconURL:   group.IconURL,
		OwnerID:   group.OwnerID,
		CreatedAt: group.CreatedAt.UnixNano(),
	}
}

func toGroup(row groupRow) domain.Group {
	return domain.Group{
		ID:        row.ID,
		Title:     row.Title,
		IconURL:   row.IconURL,
		OwnerID:   row.OwnerID,
		CreatedAt: time.Unix(0, row.CreatedAt).UTC(),
	}
}
