package domain

import "time"

// User is the persisted identity of a player, refreshed every time a ticket
// is issued for it.
type User struct {
	ID         string
	Name       string
	LastSeenAt time.Time
}
