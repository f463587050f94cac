package services

import (
	"game-relay/contract"
	"game-relay/domain/event"
	"game-relay/errors"
	"game-relay/observability"
	"game-relay/runtime"
	"log/slog"
)

// Router delivers chat messages to the sessions in scope. Every delivered
// text goes through the censor first; only the delivered copy is changed.
type Router struct {
	registry *runtime.Registry
	censor   contract.ICensor
	emitter
}

func NewRouter(registry *runtime.Registry, censor contract.ICensor, log *slog.Logger, metrics *observability.Metrics) *Router {
	return &Router{registry: registry, censor: censor, emitter: emitter{log: log, metrics: metrics}}
}

// Local sends to every connected session. The position is forwarded as is;
// filtering by distance belongs to the game server.
func (r *Router) Local(sender *runtime.Session, req event.LocalRequest) {
	r.fanout(r.registry.Sessions(), event.Local, event.LocalPayload{
		Name: sender.Name,
		Msg:  r.censor.Censor(req.Msg),
		Map:  req.Map,
		X:    req.X,
		Y:    req.Y,
		Z:    req.Z,
	})
}

func (r *Router) Global(sender *runtime.Session, msg string) {
	r.fanout(r.registry.Sessions(), event.Global, event.GlobalPayload{
		Name: sender.Name,
		Msg:  r.censor.Censor(msg),
	})
}

// Whisper delivers to the target and echoes to the sender. An offline target
// is a silent no-op: the sender gets nothing back. It reports whether the
// target was found.
func (r *Router) Whisper(sender *runtime.Session, targetName, msg string) bool {
	target, ok := r.registry.LookupByName(targetName)
	if !ok {
		r.log.Debug("Whisper target offline", "user_id", sender.UserID, "target_name", targetName)
		return false
	}
	payload := event.WhisperPayload{
		Name:       sender.Name,
		TargetName: target.Name,
		Msg:        r.censor.Censor(msg),
	}
	r.emit(target, event.Whisper, payload)
	if target != sender {
		r.emit(sender, event.Whisper, payload)
	}
	return true
}

// Group delivers to every connected member of groupID, sender included.
func (r *Router) Group(sender *runtime.Session, groupID, msg string) error {
	if !r.registry.IsRouted(groupID, sender.UserID) {
		return errors.ErrNotMember
	}
	r.fanout(r.registry.GroupSessions(groupID), event.Group, event.GroupPayload{
		GroupID: groupID,
		Name:    sender.Name,
		Msg:     r.censor.Censor(msg),
	})
	return nil
}
