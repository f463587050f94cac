package services

import (
	stderrors "errors"
	"fmt"
	"game-relay/errors"
	"game-relay/observability"
	"game-relay/runtime"
	"log/slog"
)

// emitter pushes one payload to one or many sessions.
// Delivery is best effort: a failing transport is logged and skipped.
type emitter struct {
	log     *slog.Logger
	metrics *observability.Metrics
}

func (e emitter) emit(session *runtime.Session, event string, payload any) {
	if err := session.Emit(event, payload); err != nil {
		e.log.Warn("Failed to push event to session",
			"user_id", session.UserID,
			"event", event,
			"error", err)
		return
	}
	e.metrics.Delivered(event, 1)
}

func (e emitter) fanout(sessions []*runtime.Session, event string, payload any) {
	for _, session := range sessions {
		e.emit(session, event, payload)
	}
}

// persistence marks a store failure. Ids refused by the store are the
// caller's mistake and keep their own error.
func persistence(op string, err error) error {
	if stderrors.Is(err, errors.ErrInvalidPayload) {
		return err
	}
	return fmt.Errorf("%w: %s: %w", errors.ErrPersistence, op, err)
}
