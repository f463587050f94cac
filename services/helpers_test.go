package services

import (
	"context"
	"game-relay/domain"
	"game-relay/moderation"
	"game-relay/repositories"
	"game-relay/runtime"
	"log/slog"
	"sync"
	"testing"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

type frame struct {
	event   string
	payload any
}

// recorder is a Transport keeping every frame it was asked to send.
type recorder struct {
	mu     sync.Mutex
	frames []frame
	closed bool
}

func (r *recorder) Emit(event string, payload any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames = append(r.frames, frame{event: event, payload: payload})
	return nil
}

func (r *recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

func (r *recorder) count(event string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, f := range r.frames {
		if f.event == event {
			n++
		}
	}
	return n
}

// last returns the payload of the most recent frame named event.
func (r *recorder) last(event string) (any, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.frames) - 1; i >= 0; i-- {
		if r.frames[i].event == event {
			return r.frames[i].payload, true
		}
	}
	return nil, false
}

func (r *recorder) isClosed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

func (r *recorder) empty() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.frames) == 0
}

func (r *recorder) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames = nil
}

type fixture struct {
	store    repositories.Store
	tickets  *runtime.TicketStore
	registry *runtime.Registry
	notifier *Notifier
	groups   *GroupService
	router   *Router
}

func newFixture(t *testing.T, options GroupOptions) *fixture {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	log := slog.Default()
	censor, err := moderation.NewModerator([]string{"badger"}, '*', log)
	require.NoError(t, err)

	store := repositories.NewStore(db, log)
	tickets := runtime.NewTicketStore()
	registry := runtime.NewRegistry(tickets, log, nil)
	notifier := NewNotifier(store, registry, censor, log, nil)
	return &fixture{
		store:    store,
		tickets:  tickets,
		registry: registry,
		notifier: notifier,
		groups:   NewGroupService(store, registry, notifier, censor, options, log, nil),
		router:   NewRouter(registry, censor, log, nil),
	}
}

// connect admits a user the way the gateway does: ticket, admission, bootstrap.
func (f *fixture) connect(t *testing.T, userID, name string) (*runtime.Session, *recorder) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, f.store.SaveUser(ctx, domain.User{ID: userID, Name: name}))
	key := uuid.NewString()
	f.tickets.Issue(domain.PendingTicket{UserID: userID, Name: name, ConnectionKey: key})
	rec := &recorder{}
	session, err := f.registry.Admit(userID, key, rec)
	require.NoError(t, err)
	require.NoError(t, f.groups.Bootstrap(ctx, session))
	return session, rec
}

// requireRoutingConsistent checks that every routed user of groupID holds a
// persisted membership and a live session.
func (f *fixture) requireRoutingConsistent(t *testing.T, groupID string) {
	t.Helper()
	for _, session := range f.registry.GroupSessions(groupID) {
		live, ok := f.registry.Lookup(session.UserID)
		require.True(t, ok)
		require.Same(t, live, session)
		isMember, err := f.store.IsMember(context.Background(), groupID, session.UserID)
		require.NoError(t, err)
		require.True(t, isMember, "user %s routed without membership", session.UserID)
	}
}
