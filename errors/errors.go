package errors

import "fmt"

var (
	ErrInvalidTicket    = fmt.Errorf("invalid ticket")
	ErrNotMember        = fmt.Errorf("not a member of the group")
	ErrNoSuchInvitation = fmt.Errorf("no such invitation")
	ErrPersistence      = fmt.Errorf("persistence failure")
	ErrInvalidPayload   = fmt.Errorf("invalid payload")
	ErrGroupNotFound    = fmt.Errorf("group not found")
	ErrUserNotFound     = fmt.Errorf("user not found")
	ErrEmptyWords       = fmt.Errorf("no words have been found")
)
