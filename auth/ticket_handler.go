package auth

import (
	"encoding/json"
	"game-relay/contract"
	"game-relay/domain"
	"game-relay/observability"
	"game-relay/runtime"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	sdkhttp "github.com/mama165/sdk-go/http"
)

const maxTicketBody = 4 << 10

// TicketHandler serves POST /ticket: a game server holding one of the secret
// keys announces a player, and gets back the connection key that player must
// present in its websocket handshake.
type TicketHandler struct {
	keys    *KeyRing
	tickets *runtime.TicketStore
	store   contract.IStore
	log     *slog.Logger
	metrics *observability.Metrics
}

func NewTicketHandler(keys *KeyRing, tickets *runtime.TicketStore, store contract.IStore,
	log *slog.Logger, metrics *observability.Metrics) *TicketHandler {
	return &TicketHandler{keys: keys, tickets: tickets, store: store, log: log, metrics: metrics}
}

func (h *TicketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	sdkhttp.JSON(h.issue)(w, r)
}

func (h *TicketHandler) issue(w http.ResponseWriter, r *http.Request) *sdkhttp.Response {
	if r.Method != http.MethodPost {
		return (&sdkhttp.Response{
			Payload:    map[string]string{"message": "method not allowed"},
			StatusCode: http.StatusMethodNotAllowed,
		}).AddHeader("Allow", http.MethodPost)
	}
	if !h.keys.Allows(bearerToken(r)) {
		h.metrics.Ticket("unauthorized")
		h.log.Warn("Ticket request with invalid secret key", "remote_addr", r.RemoteAddr)
		return sdkhttp.Unauthorized("invalid secret key")
	}

	req, err := decodeTicketRequest(w, r)
	if err != nil {
		return sdkhttp.BadRequest("malformed body")
	}
	if err = ValidateTicket(req); err != nil {
		h.log.Debug("Ticket request rejected", "error", err)
		return sdkhttp.BadRequest(err.Error())
	}

	key, err := NewConnectionKey()
	if err != nil {
		h.log.Error("Unable to mint connection key", "error", err)
		return sdkhttp.InternalError("unable to mint connection key")
	}

	user := domain.User{ID: req.UserID, Name: req.Name, LastSeenAt: time.Now().UTC()}
	if err = h.store.SaveUser(r.Context(), user); err != nil {
		h.log.Error("Unable to save user", "user_id", req.UserID, "error", err)
		return sdkhttp.InternalError("unable to save user")
	}
	h.tickets.Issue(domain.PendingTicket{UserID: req.UserID, Name: req.Name, ConnectionKey: key})
	h.metrics.Ticket("issued")
	h.log.Info("Ticket issued", "user_id", req.UserID)

	return sdkhttp.OK(TicketResponse{UserID: req.UserID, Name: req.Name, ConnectionKey: key})
}

// decodeTicketRequest reads exactly one JSON object with known fields only.
func decodeTicketRequest(w http.ResponseWriter, r *http.Request) (TicketRequest, error) {
	var req TicketRequest
	body := http.MaxBytesReader(w, r.Body, maxTicketBody)
	defer func() { _ = body.Close() }()

	decoder := json.NewDecoder(body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		return req, err
	}
	if _, err := decoder.Token(); err != io.EOF {
		return req, errTrailingData
	}
	return req, nil
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	const prefix = "Bearer "
	if len(header) < len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}
