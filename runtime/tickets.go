package runtime

import (
	"crypto/subtle"
	"game-relay/domain"
	"sync"
)

// TicketStore holds the tickets minted by the ticket endpoint until a
// handshake consumes them. Tickets do not expire.
type TicketStore struct {
	mu      sync.Mutex
	tickets map[string]domain.PendingTicket
}

func NewTicketStore() *TicketStore {
	return &TicketStore{tickets: make(map[string]domain.PendingTicket)}
}

// Issue stores the ticket, replacing any ticket still pending for the same user.
func (s *TicketStore) Issue(ticket domain.PendingTicket) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tickets[ticket.UserID] = ticket
}

// Consume returns and deletes the user's ticket when presentedKey matches it.
// A wrong key leaves the ticket in place for the legitimate client.
func (s *TicketStore) Consume(userID, presentedKey string) (domain.PendingTicket, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ticket, ok := s.tickets[userID]
	if !ok {
		return domain.PendingTicket{}, false
	}
	if subtle.ConstantTimeCompare([]byte(ticket.ConnectionKey), []byte(presentedKey)) != 1 {
		return domain.PendingTicket{}, false
	}
	delete(s.tickets, userID)
	return ticket, true
}

func (s *TicketStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tickets)
}
