// internal/handlers/room_ws.go
package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/jason-s-yu/sudokuduel/internal/apperr"
	"github.com/jason-s-yu/sudokuduel/internal/game"
	"github.com/jason-s-yu/sudokuduel/internal/middleware"
	"github.com/jason-s-yu/sudokuduel/internal/models"
	"github.com/julienschmidt/httprouter"
	"github.com/sirupsen/logrus"
)

const wsWriteTimeout = 5 * time.Second

// wsInbound is a client message on the room feed.
type wsInbound struct {
	Type               string `json:"type"`
	Position           int    `json:"position"`
	ExpectedMoveNumber int    `json:"expectedMoveNumber"`
}

type wsOutbound struct {
	Type    string            `json:"type"`
	Room    *roomView         `json:"room,omitempty"`
	Event   *models.RoomEvent `json:"event,omitempty"`
	Result  *moveResponse     `json:"result,omitempty"`
	Error   string            `json:"error,omitempty"`
	Message string            `json:"message,omitempty"`
}

// RoomWSHandler streams room changes to a seated player and accepts moves.
// Clients must speak the "room" subprotocol.
func (s *APIServer) RoomWSHandler(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	code := ps.ByName("code")
	remoteAddr := r.RemoteAddr

	c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		Subprotocols:   []string{"room"},
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		s.logger.Warnf("websocket accept error: %v", err)
		return
	}
	defer c.Close(websocket.StatusInternalError, "handler finished")

	if c.Subprotocol() != "room" {
		c.Close(BadSubprotocolError, "client must speak the room subprotocol")
		return
	}
	id, err := authenticate(s.Issuer, r)
	if err != nil {
		c.Close(InvalidAuthTokenError, "authentication failed")
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	room, err := s.Rooms.Room(ctx, code)
	if err != nil {
		c.Close(InvalidRoomCodeError, "room does not exist")
		return
	}
	if !room.HasPlayer(id.UID) {
		c.Close(NotInRoomError, "you are not a player in this room")
		return
	}

	events, unsubscribe, err := s.Feed.Subscribe(ctx, code)
	if err != nil {
		s.logger.WithError(err).WithField("room", code).Error("subscribe to room feed")
		c.Close(websocket.StatusInternalError, "feed unavailable")
		return
	}
	defer unsubscribe()

	middleware.LogWebSocketConnect(s.logger, remoteAddr, r.URL.Path)

	view := viewRoom(room)
	s.send(ctx, c, wsOutbound{Type: "room_state", Room: &view})

	go s.forwardEvents(ctx, c, code, events)

	err = s.readRoomMessages(ctx, c, code, id)
	middleware.LogWebSocketDisconnect(s.logger, remoteAddr, r.URL.Path, err)
	if err == nil {
		c.Close(websocket.StatusNormalClosure, "")
	}
}

// forwardEvents pushes every room event together with a fresh snapshot.
func (s *APIServer) forwardEvents(ctx context.Context, c *websocket.Conn, code string, events <-chan models.RoomEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			msg := wsOutbound{Type: string(ev.Type), Event: &ev}
			if room, err := s.Rooms.Room(ctx, code); err == nil {
				view := viewRoom(room)
				msg.Room = &view
			}
			s.send(ctx, c, msg)
		}
	}
}

// readRoomMessages blocks until the client goes away. A normal close
// returns nil.
func (s *APIServer) readRoomMessages(ctx context.Context, c *websocket.Conn, code string, id models.Identity) error {
	for {
		var in wsInbound
		if err := wsjson.Read(ctx, c, &in); err != nil {
			status := websocket.CloseStatus(err)
			if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway || errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}

		switch in.Type {
		case "move":
			res, err := s.Machine.ApplyMove(ctx, game.MoveRequest{
				RoomCode:           code,
				PlayerID:           id.UID,
				Position:           in.Position,
				ExpectedMoveNumber: in.ExpectedMoveNumber,
			})
			if err != nil {
				s.sendError(ctx, c, err)
				continue
			}
			out := moveResponseFor(res)
			s.send(ctx, c, wsOutbound{Type: "move_result", Result: &out})
		case "ping":
			s.send(ctx, c, wsOutbound{Type: "pong"})
		default:
			s.sendError(ctx, c, apperr.ErrInvalidArgument)
		}
	}
}

func (s *APIServer) send(ctx context.Context, c *websocket.Conn, msg wsOutbound) {
	writeCtx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()
	if err := wsjson.Write(writeCtx, c, msg); err != nil {
		status := websocket.CloseStatus(err)
		if status != websocket.StatusNormalClosure && status != websocket.StatusGoingAway && ctx.Err() == nil {
			s.logger.WithFields(logrus.Fields{"type": msg.Type}).Warnf("websocket write failed: %v", err)
		}
	}
}

func (s *APIServer) sendError(ctx context.Context, c *websocket.Conn, err error) {
	code := apperr.CodeOf(err)
	if code == "" {
		code = "internal"
	}
	s.send(ctx, c, wsOutbound{Type: "error", Error: code, Message: err.Error()})
}
