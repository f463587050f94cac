package runtime

import (
	"game-relay/contract"
	"game-relay/errors"
	"game-relay/observability"
	"log/slog"
	"sync"
	"time"

	"github.com/samber/lo"
)

type Set map[string]struct{}

// Session is the live, authenticated connection of one user.
type Session struct {
	UserID      string
	Name        string
	Transport   contract.Transport
	ConnectedAt time.Time
}

func (s *Session) Emit(event string, payload any) error {
	return s.Transport.Emit(event, payload)
}

// Registry owns every Session and the routing index of groups to the users
// reachable in them.
//
// Routing entries reference users by id and are resolved through the
// sessions map at delivery time, so a reconnecting user is reachable through
// its new transport as soon as it is admitted. An entry only exists for a
// user holding a live session.
type Registry struct {
	mu           sync.RWMutex
	sessions     map[string]*Session // user id -> session
	byName       map[string]*Session // display name -> session
	groupMembers map[string]Set      // group id -> user ids
	userGroups   map[string]Set      // user id -> group ids

	tickets    *TicketStore
	admissions *KeyedMutex
	log        *slog.Logger
	metrics    *observability.Metrics
}

func NewRegistry(tickets *TicketStore, log *slog.Logger, metrics *observability.Metrics) *Registry {
	return &Registry{
		sessions:     make(map[string]*Session),
		byName:       make(map[string]*Session),
		groupMembers: make(map[string]Set),
		userGroups:   make(map[string]Set),
		tickets:      tickets,
		admissions:   NewKeyedMutex(),
		log:          log,
		metrics:      metrics,
	}
}

// Admit consumes the user's ticket and registers a new session on transport.
// A session already registered for the same user is replaced and its
// transport closed: the newest connection always wins.
// Concurrent handshakes for one user are serialized.
func (r *Registry) Admit(userID, presentedKey string, transport contract.Transport) (*Session, error) {
	unlock := r.admissions.Lock(userID)
	defer unlock()

	ticket, ok := r.tickets.Consume(userID, presentedKey)
	if !ok {
		r.metrics.Ticket("rejected")
		return nil, errors.ErrInvalidTicket
	}
	r.metrics.Ticket("accepted")

	session := &Session{
		UserID:      ticket.UserID,
		Name:        ticket.Name,
		Transport:   transport,
		ConnectedAt: time.Now().UTC(),
	}

	r.mu.Lock()
	previous := r.sessions[userID]
	r.sessions[userID] = session
	if previous != nil {
		r.unbindNameLocked(previous)
	}
	r.byName[session.Name] = session
	r.metrics.SetSessionsActive(len(r.sessions))
	r.mu.Unlock()

	if previous != nil {
		r.log.Info("Evicting previous session", "user_id", userID, "connected_at", previous.ConnectedAt)
		r.metrics.SessionEvicted()
		if err := previous.Transport.Close(); err != nil {
			r.log.Debug("Closing evicted transport failed", "user_id", userID, "error", err)
		}
	}
	return session, nil
}

// Remove unregisters session and drops its user from every routing entry.
// It does nothing when session has already been replaced by a newer one.
func (r *Registry) Remove(session *Session) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sessions[session.UserID] != session {
		return false
	}
	delete(r.sessions, session.UserID)
	r.unbindNameLocked(session)
	for groupID := range r.userGroups[session.UserID] {
		r.unrouteLocked(groupID, session.UserID)
	}
	delete(r.userGroups, session.UserID)
	r.metrics.SetSessionsActive(len(r.sessions))
	return true
}

// unbindNameLocked drops session from the name index. Display names are not
// unique: when another live session shares the name, it takes the entry over.
// session must already be gone from the sessions map.
func (r *Registry) unbindNameLocked(session *Session) {
	if r.byName[session.Name] != session {
		return
	}
	delete(r.byName, session.Name)
	for _, other := range r.sessions {
		if other.Name == session.Name {
			r.byName[other.Name] = other
			return
		}
	}
}

func (r *Registry) Lookup(userID string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[userID]
	return s, ok
}

func (r *Registry) LookupByName(name string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.byName[name]
	return s, ok
}

// Sessions returns a snapshot of every registered session.
func (r *Registry) Sessions() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return lo.Values(r.sessions)
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Route makes userID reachable in groupID. It refuses users without a live
// session so the index never references an offline user.
func (r *Registry) Route(groupID, userID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[userID]; !ok {
		return false
	}
	if _, ok := r.groupMembers[groupID]; !ok {
		r.groupMembers[groupID] = make(Set)
	}
	r.groupMembers[groupID][userID] = struct{}{}
	if _, ok := r.userGroups[userID]; !ok {
		r.userGroups[userID] = make(Set)
	}
	r.userGroups[userID][groupID] = struct{}{}
	return true
}

// Unroute reports whether userID was reachable in groupID before the call.
func (r *Registry) Unroute(groupID, userID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.unrouteLocked(groupID, userID)
}

func (r *Registry) unrouteLocked(groupID, userID string) bool {
	members, ok := r.groupMembers[groupID]
	if !ok {
		return false
	}
	if _, ok = members[userID]; !ok {
		return false
	}
	delete(members, userID)
	// If no one is left in the group, remove the entry entirely
	if len(members) == 0 {
		delete(r.groupMembers, groupID)
	}
	if groups, ok := r.userGroups[userID]; ok {
		delete(groups, groupID)
		if len(groups) == 0 {
			delete(r.userGroups, userID)
		}
	}
	return true
}

func (r *Registry) IsRouted(groupID, userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.groupMembers[groupID][userID]
	return ok
}

// GroupSessions resolves the users routed in groupID to their current sessions.
// Returns nil if the group has no connected member.
func (r *Registry) GroupSessions(groupID string) []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members, ok := r.groupMembers[groupID]
	if !ok {
		return nil
	}
	var active []*Session
	for userID := range members {
		if session, exists := r.sessions[userID]; exists {
			active = append(active, session)
		}
	}
	return active
}

// GroupsOf lists the groups userID is currently routed in.
func (r *Registry) GroupsOf(userID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return lo.Keys(r.userGroups[userID])
}
