// internal/handlers/arena_ws.go
package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/rebuttal-gg/rebuttal/internal/database"
	"github.com/rebuttal-gg/rebuttal/internal/debate"
	"github.com/rebuttal-gg/rebuttal/internal/middleware"
	"github.com/rebuttal-gg/rebuttal/internal/models"
	"github.com/rebuttal-gg/rebuttal/internal/rating"
)

// ArenaMessage is the envelope for every client intent on the arena socket.
// Only the fields relevant to the message's type are expected to be set.
type ArenaMessage struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId,omitempty"`
	Code      string `json:"code,omitempty"`
	Category  string `json:"category,omitempty"`
	Pace      string `json:"pace,omitempty"`
	Stance    string `json:"stance,omitempty"`
	Handle    string `json:"handle,omitempty"`
	Content   string `json:"content,omitempty"`
	Elapsed   int    `json:"elapsed,omitempty"`
	Forfeit   bool   `json:"forfeit,omitempty"`
}

// connProfile is what the socket knows about its user for ticket building.
// Authenticated connections carry their account's handle, rating, and
// cosmetics; anonymous ones get guest defaults.
type connProfile struct {
	Handle        string
	Rating        int
	Icon          string
	Banner        string
	Authenticated bool
}

// ArenaWSHandler upgrades /arena/ws connections and runs the read pump
// until the client goes away.
func ArenaWSHandler(logger *logrus.Logger, srv *DebateServer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		remoteAddr := r.RemoteAddr

		c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			Subprotocols:   []string{"arena"},
			OriginPatterns: []string{"*"}, // Adjust in production
		})
		if err != nil {
			logger.Warnf("websocket accept error: %v", err)
			return
		}
		defer c.Close(websocket.StatusInternalError, "handler finished")

		if c.Subprotocol() != "arena" {
			c.Close(BadSubprotocolError, "client must speak the arena subprotocol")
			return
		}

		profile := resolveProfile(r)

		ctx, cancel := context.WithCancel(r.Context())
		conn := &ArenaConn{
			ID:      uuid.New(),
			Cancel:  cancel,
			OutChan: make(chan debate.Event, 32),
		}
		srv.Register(conn)
		middleware.LogWebSocketConnect(logger, remoteAddr, conn.ID.String())

		go arenaWritePump(ctx, c, conn, logger)
		readErr := arenaReadPump(ctx, c, srv, conn, profile, logger)

		cancel()
		srv.HandleDisconnect(conn.ID)
		middleware.LogWebSocketDisconnect(logger, remoteAddr, conn.ID.String(), readErr)
	}
}

// resolveProfile derives the connection's user profile from the auth cookie,
// falling back to guest defaults when absent or invalid.
func resolveProfile(r *http.Request) connProfile {
	guest := connProfile{
		Handle: "Guest",
		Rating: rating.StartingElo,
		Icon:   models.DefaultIcon,
		Banner: models.DefaultBanner,
	}
	user, err := database.UserFromRequest(r)
	if err != nil {
		return guest
	}
	return connProfile{
		Handle:        user.Handle,
		Rating:        user.Elo,
		Icon:          user.Icon,
		Banner:        user.Banner,
		Authenticated: true,
	}
}

// arenaReadPump decodes and dispatches client intents until the socket
// errors or the context is cancelled. The returned error is for logging;
// normal closure returns nil.
func arenaReadPump(ctx context.Context, c *websocket.Conn, srv *DebateServer, conn *ArenaConn, profile connProfile, logger *logrus.Logger) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		typ, data, err := c.Read(ctx)
		if err != nil {
			closeStatus := websocket.CloseStatus(err)
			if closeStatus == websocket.StatusNormalClosure || closeStatus == websocket.StatusGoingAway {
				return nil
			}
			if strings.Contains(err.Error(), "context canceled") {
				return nil
			}
			return err
		}
		if typ != websocket.MessageText {
			logger.Warnf("conn %s sent non-text message type %d, ignoring", conn.ID, typ)
			continue
		}

		var msg ArenaMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			conn.SendError("invalid JSON")
			continue
		}
		dispatchArenaMessage(srv, conn, profile, msg, logger)
	}
}

// dispatchArenaMessage validates one intent and routes it to the lifecycle
// controller. Validation failures answer the sender only; nothing here
// touches session or pool state directly.
func dispatchArenaMessage(srv *DebateServer, conn *ArenaConn, profile connProfile, msg ArenaMessage, logger *logrus.Logger) {
	switch msg.Type {
	case "join_queue":
		t, err := ticketFromMessage(conn.ID, profile, msg)
		if err != nil {
			conn.SendError(err.Error())
			return
		}
		if t.Category == debate.CategoryRanked && !profile.Authenticated {
			conn.SendError("ranked play requires an account")
			return
		}
		srv.JoinQueue(t)

	case "leave_queue":
		category, err := debate.ParseCategory(msg.Category)
		if err != nil {
			conn.SendError(err.Error())
			return
		}
		pace, err := debate.ParsePace(msg.Pace)
		if err != nil {
			conn.SendError(err.Error())
			return
		}
		srv.LeaveQueue(conn.ID, category, pace)

	case "create_lobby":
		t, err := lobbyTicketFromMessage(conn.ID, profile, msg)
		if err != nil {
			conn.SendError(err.Error())
			return
		}
		srv.CreateLobby(t)

	case "cancel_lobby":
		if msg.Code == "" {
			conn.SendError("missing lobby code")
			return
		}
		srv.CancelLobby(conn.ID, msg.Code)

	case "join_lobby":
		if msg.Code == "" {
			conn.SendError("missing lobby code")
			return
		}
		t, err := lobbyTicketFromMessage(conn.ID, profile, msg)
		if err != nil {
			conn.SendError(err.Error())
			return
		}
		srv.JoinLobby(t, msg.Code)

	case "submit_argument":
		sessionID, err := uuid.Parse(msg.SessionID)
		if err != nil {
			conn.SendError("invalid session id")
			return
		}
		srv.SubmitTurn(conn.ID, sessionID, msg.Content, msg.Elapsed)

	case "timeout_turn":
		sessionID, err := uuid.Parse(msg.SessionID)
		if err != nil {
			conn.SendError("invalid session id")
			return
		}
		srv.TimeoutTurn(conn.ID, sessionID)

	case "end_session":
		sessionID, err := uuid.Parse(msg.SessionID)
		if err != nil {
			conn.SendError("invalid session id")
			return
		}
		srv.EndSession(conn.ID, sessionID, msg.Forfeit)

	default:
		logger.Warnf("conn %s sent unknown message type %q", conn.ID, msg.Type)
		conn.SendError("unknown message type: " + msg.Type)
	}
}

// ticketFromMessage builds a full matchmaking ticket for the open pool.
func ticketFromMessage(connID uuid.UUID, profile connProfile, msg ArenaMessage) (*debate.Ticket, error) {
	stance, err := debate.ParseStance(msg.Stance)
	if err != nil {
		return nil, err
	}
	pace, err := debate.ParsePace(msg.Pace)
	if err != nil {
		return nil, err
	}
	category, err := debate.ParseCategory(msg.Category)
	if err != nil {
		return nil, err
	}
	return &debate.Ticket{
		ConnID:   connID,
		Handle:   handleFor(profile, msg),
		Stance:   stance,
		Category: category,
		Pace:     pace,
		Rating:   profile.Rating,
		Icon:     profile.Icon,
		Banner:   profile.Banner,
	}, nil
}

// lobbyTicketFromMessage builds a ticket for private lobby flows. Lobbies
// carry no category; private sessions are always practice.
func lobbyTicketFromMessage(connID uuid.UUID, profile connProfile, msg ArenaMessage) (*debate.Ticket, error) {
	stance, err := debate.ParseStance(msg.Stance)
	if err != nil {
		return nil, err
	}
	pace, err := debate.ParsePace(msg.Pace)
	if err != nil {
		return nil, err
	}
	return &debate.Ticket{
		ConnID:   connID,
		Handle:   handleFor(profile, msg),
		Stance:   stance,
		Category: debate.CategoryPractice,
		Pace:     pace,
		Rating:   profile.Rating,
		Icon:     profile.Icon,
		Banner:   profile.Banner,
	}, nil
}

// handleFor picks the display handle: the account's when authenticated,
// otherwise whatever the guest asked for, defaulting to the profile's.
func handleFor(profile connProfile, msg ArenaMessage) string {
	if profile.Authenticated || msg.Handle == "" {
		return profile.Handle
	}
	return msg.Handle
}

// arenaWritePump drains the connection's outbound channel onto the socket
// and keeps it alive with periodic pings.
func arenaWritePump(ctx context.Context, c *websocket.Conn, conn *ArenaConn, logger *logrus.Logger) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	defer c.Close(websocket.StatusGoingAway, "write pump stopping")

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-conn.OutChan:
			if !ok {
				return
			}
			data, err := json.Marshal(ev)
			if err != nil {
				logger.Warnf("conn %s: failed to marshal %s event: %v", conn.ID, ev.Type, err)
				continue
			}
			writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err = c.Write(writeCtx, websocket.MessageText, data)
			cancel()
			if err != nil {
				logger.Warnf("conn %s: write failed: %v", conn.ID, err)
				return
			}
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
			err := c.Ping(pingCtx)
			cancel()
			if err != nil {
				logger.Warnf("conn %s: ping failed, assuming disconnect: %v", conn.ID, err)
				return
			}
		}
	}
}
