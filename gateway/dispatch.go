package gateway

import (
	"context"
	"fmt"
	"game-relay/domain/event"
	"game-relay/errors"
	"game-relay/runtime"
)

var inboundEvents = map[string]struct{}{
	event.Local:               {},
	event.Global:              {},
	event.Whisper:             {},
	event.Group:               {},
	event.CreateGroup:         {},
	event.UpdateGroup:         {},
	event.GroupInvite:         {},
	event.GroupInviteAccept:   {},
	event.GroupInviteDecline:  {},
	event.LeaveGroup:          {},
	event.KickUser:            {},
	event.GroupList:           {},
	event.GroupUserList:       {},
	event.GroupInvitationList: {},
}

// metricName bounds the label values of client supplied event names.
func metricName(name string) string {
	if _, ok := inboundEvents[name]; ok {
		return name
	}
	return "unknown"
}

// dispatch runs one inbound event for session. Events are handled one at a
// time per connection, in arrival order.
func (s *Server) dispatch(ctx context.Context, session *runtime.Session, frame inFrame) error {
	switch frame.Event {
	case event.Local:
		req, err := decode[event.LocalRequest](frame.Data)
		if err != nil {
			return err
		}
		s.router.Local(session, req)
		return nil

	case event.Global:
		req, err := decode[event.GlobalRequest](frame.Data)
		if err != nil {
			return err
		}
		s.router.Global(session, req.Msg)
		return nil

	case event.Whisper:
		req, err := decode[event.WhisperRequest](frame.Data)
		if err != nil {
			return err
		}
		s.router.Whisper(session, req.TargetName, req.Msg)
		return nil

	case event.Group:
		req, err := decode[event.GroupRequest](frame.Data)
		if err != nil {
			return err
		}
		return s.router.Group(session, req.GroupID, req.Msg)

	case event.CreateGroup:
		req, err := decode[event.CreateGroupRequest](frame.Data)
		if err != nil {
			return err
		}
		_, err = s.groups.CreateGroup(ctx, session.UserID, req.Title, req.IconURL)
		return err

	case event.UpdateGroup:
		req, err := decode[event.UpdateGroupRequest](frame.Data)
		if err != nil {
			return err
		}
		return s.groups.UpdateGroup(ctx, session.UserID, req.GroupID, req.Title, req.IconURL)

	case event.GroupInvite:
		req, err := decode[event.GroupInviteRequest](frame.Data)
		if err != nil {
			return err
		}
		return s.groups.Invite(ctx, session.UserID, req.UserID, req.GroupID)

	case event.GroupInviteAccept:
		req, err := decode[event.GroupRef](frame.Data)
		if err != nil {
			return err
		}
		return s.groups.Accept(ctx, session.UserID, req.GroupID)

	case event.GroupInviteDecline:
		req, err := decode[event.GroupRef](frame.Data)
		if err != nil {
			return err
		}
		return s.groups.Decline(ctx, session.UserID, req.GroupID)

	case event.LeaveGroup:
		req, err := decode[event.GroupRef](frame.Data)
		if err != nil {
			return err
		}
		return s.groups.Leave(ctx, req.GroupID, session.UserID)

	case event.KickUser:
		req, err := decode[event.KickUserRequest](frame.Data)
		if err != nil {
			return err
		}
		return s.groups.Kick(ctx, session.UserID, req.GroupID, req.UserID)

	case event.GroupList:
		return s.notifier.SendGroupList(ctx, session)

	case event.GroupUserList:
		req, err := decode[event.GroupRef](frame.Data)
		if err != nil {
			return err
		}
		return s.notifier.SendGroupMembers(ctx, session, req.GroupID)

	case event.GroupInvitationList:
		return s.notifier.SendInvitations(ctx, session)

	default:
		return fmt.Errorf("%w: unknown event %q", errors.ErrInvalidPayload, frame.Event)
	}
}
