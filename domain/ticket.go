package domain

// PendingTicket is minted by the ticket endpoint and consumed by the first
// handshake presenting the same connection key.
type PendingTicket struct {
	UserID        string
	Name          string
	ConnectionKey string
}
