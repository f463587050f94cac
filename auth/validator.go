package auth

import (
	"fmt"
	"game-relay/errors"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"
)

var (
	validate        = validator.New()
	errTrailingData = fmt.Errorf("trailing data after request body")
)

// TicketRequest is the body of POST /ticket. User ids end up inside storage
// keys, hence the ':' exclusion.
type TicketRequest struct {
	UserID string `json:"user_id" validate:"required,max=64,excludesall=:"`
	Name   string `json:"name" validate:"required,max=64"`
}

type TicketResponse struct {
	UserID        string `json:"user_id"`
	Name          string `json:"name"`
	ConnectionKey string `json:"connection_key"`
}

func ValidateTicket(req TicketRequest) error {
	if err := validate.Struct(req); err != nil {
		return fmt.Errorf("%w: %w", errors.ErrInvalidPayload, err)
	}
	if !isPrintable(req.UserID) || !isPrintable(req.Name) {
		return fmt.Errorf("%w: control characters are not allowed", errors.ErrInvalidPayload)
	}
	if strings.TrimSpace(req.Name) == "" {
		return fmt.Errorf("%w: blank name", errors.ErrInvalidPayload)
	}
	return nil
}

func isPrintable(s string) bool {
	for _, char := range s {
		if !unicode.IsPrint(char) {
			return false
		}
	}
	return true
}
