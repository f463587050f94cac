// Package domain contains core concepts of the relay.
// Groups, memberships and invitations are the durable records;
// sessions and routing live in the runtime package.
package domain

import (
	"fmt"
	"strings"
	"time"
)

type Group struct {
	ID        string
	Title     string
	IconURL   string
	OwnerID   string
	CreatedAt time.Time
}

// Membership is unique per (GroupID, UserID). Deleting it is the only way
// to leave a group.
type Membership struct {
	GroupID  string
	UserID   string
	JoinedAt time.Time
}

// Invitation is a pending offer of membership, at most one per (UserID, GroupID).
type Invitation struct {
	UserID    string
	GroupID   string
	InviterID string
	CreatedAt time.Time
}

// InviteMode selects how group-invite events are handled.
type InviteMode string

const (
	InviteRequired InviteMode = "invite"
	DirectAdd      InviteMode = "direct"
)

func ParseInviteMode(s string) (InviteMode, error) {
	switch InviteMode(strings.ToLower(strings.TrimSpace(s))) {
	case "", InviteRequired:
		return InviteRequired, nil
	case DirectAdd:
		return DirectAdd, nil
	default:
		return "", fmt.Errorf("unknown invite mode %q, expected %q or %q", s, InviteRequired, DirectAdd)
	}
}
