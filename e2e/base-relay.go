package e2e

import (
	"bytes"
	"encoding/json"
	"fmt"
	"game-relay/auth"
	"game-relay/domain/event"
	"net/http"
	"testing"
	"time"

	"github.com/gookit/color"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/suite"
)

const readTimeout = 5 * time.Second

type BaseRelaySuite struct {
	suite.Suite
	Config Config
}

// Frame is one websocket message as seen by a game client.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Player is a connected game client.
type Player struct {
	suite  *BaseRelaySuite
	t      *testing.T
	UserID string
	Name   string
	ws     *websocket.Conn
}

// SetupSuite loads the environment configuration and skips when no relay is running.
func (s *BaseRelaySuite) SetupSuite() {
	var err error
	s.Config, err = LoadConfig()
	s.Require().NoError(err)
	if s.Config.RelayAddr == "" {
		s.T().Skip("RELAY_ADDR is not set")
	}
}

func (s *BaseRelaySuite) header(t *testing.T, name string) {
	header := fmt.Sprintf("  ====== %s ======", name)
	if s.Config.Colours {
		header = color.New(color.BgBlack, color.FgGreen).Render(header)
	}
	t.Log(header)
}

// Ticket asks the relay for a connection key, the way a game server does.
func (s *BaseRelaySuite) Ticket(userID, name string) auth.TicketResponse {
	t := s.T()
	s.header(t, "Ticket for "+userID)

	body, err := json.Marshal(auth.TicketRequest{UserID: userID, Name: name})
	s.Require().NoError(err)
	req, err := http.NewRequest(http.MethodPost, "http://"+s.Config.RelayAddr+"/ticket", bytes.NewReader(body))
	s.Require().NoError(err)
	req.Header.Set("Authorization", "Bearer "+s.Config.RelaySecret)
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := http.DefaultClient.Do(req)
	s.Require().NoError(err)
	defer resp.Body.Close()
	t.Logf("POST /ticket [%d] in %v", resp.StatusCode, time.Since(start))
	s.Require().Equal(http.StatusOK, resp.StatusCode)

	var ticket auth.TicketResponse
	s.Require().NoError(json.NewDecoder(resp.Body).Decode(&ticket))
	return ticket
}

// Connect issues a ticket, dials the relay, performs the handshake and
// waits for the connected frame.
func (s *BaseRelaySuite) Connect(userID, name string) *Player {
	ticket := s.Ticket(userID, name)
	t := s.T()
	s.header(t, "Connect "+userID)

	ws, _, err := websocket.DefaultDialer.Dial("ws://"+s.Config.RelayAddr+"/ws", nil)
	s.Require().NoError(err, "Failed to dial relay at "+s.Config.RelayAddr)
	t.Cleanup(func() { _ = ws.Close() })

	p := &Player{suite: s, t: t, UserID: userID, Name: name, ws: ws}
	p.Send(event.Handshake, event.HandshakeRequest{UserID: userID, ConnectionKey: ticket.ConnectionKey})
	p.Expect(event.Connected)
	return p
}

func (p *Player) Send(name string, data any) {
	raw, err := json.Marshal(data)
	p.suite.Require().NoError(err)
	frame, err := json.Marshal(Frame{Event: name, Data: raw})
	p.suite.Require().NoError(err)
	if p.suite.Config.DebugJSON {
		p.t.Logf("%s >> %s", p.UserID, frame)
	}
	p.suite.Require().NoError(p.ws.WriteMessage(websocket.TextMessage, frame))
}

// Expect reads frames until one named name arrives and decodes its data into out, if given.
func (p *Player) Expect(name string, out ...any) {
	for {
		p.suite.Require().NoError(p.ws.SetReadDeadline(time.Now().Add(readTimeout)))
		_, raw, err := p.ws.ReadMessage()
		p.suite.Require().NoError(err, "%s waiting for %s", p.UserID, name)
		if p.suite.Config.DebugJSON {
			p.t.Logf("%s << %s", p.UserID, raw)
		}

		var frame Frame
		p.suite.Require().NoError(json.Unmarshal(raw, &frame))
		if frame.Event != name {
			continue
		}
		for _, v := range out {
			p.suite.Require().NoError(json.Unmarshal(frame.Data, v))
		}
		return
	}
}
