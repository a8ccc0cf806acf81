package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/DoyleJ11/train-seat-backend/internal/broadcast"
	"github.com/DoyleJ11/train-seat-backend/internal/coordinator"
	"github.com/DoyleJ11/train-seat-backend/internal/types"
)

const (
	outboxSize   = 32
	writeTimeout = 3 * time.Second
)

func Handler(c *coordinator.Coordinator, originPatterns []string, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			OriginPatterns: originPatterns,
		})
		if err != nil {
			log.Debug("websocket accept failed", zap.Error(err))
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "bye")

		out := make(chan broadcast.Update, outboxSize)
		clientID := uuid.NewString()
		clog := log.With(zap.String("client_id", clientID))

		if !c.Send(coordinator.Join{ClientID: clientID, Outbox: out}) {
			conn.Close(websocket.StatusGoingAway, "shutting down")
			return
		}
		defer c.Send(coordinator.Leave{ClientID: clientID})

		// Writer goroutine
		writeCtx, writeCancel := context.WithCancel(r.Context())
		defer writeCancel()
		go func() {
			for u := range out {
				payload, err := json.Marshal(toServerMessage(u))
				if err != nil {
					clog.Error("encode update", zap.Error(err))
					continue
				}
				ctx, cancel := context.WithTimeout(writeCtx, writeTimeout)
				err = conn.Write(ctx, websocket.MessageText, payload)
				cancel()
				if err != nil {
					clog.Debug("write failed", zap.Error(err))
					conn.CloseNow()
					return
				}
			}
			// Outbox closed: we were dropped for being slow, or the server is
			// stopping. Either way the client has to reconnect for a fresh init.
			conn.Close(websocket.StatusTryAgainLater, "resync required")
		}()

		// Reader loop
		for {
			_, data, err := conn.Read(r.Context())
			if err != nil {
				// Treat clean close/going-away as normal:
				switch websocket.CloseStatus(err) {
				case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				default:
					if !errors.Is(err, context.Canceled) {
						clog.Debug("read ended", zap.Error(err))
					}
				}
				return
			}

			var cm types.ClientMessage
			if err := json.Unmarshal(data, &cm); err != nil {
				writeError(r.Context(), conn, "bad json")
				continue
			}

			intent, ok := toIntent(cm)
			if !ok {
				writeError(r.Context(), conn, "unknown type")
				continue
			}

			if !c.Send(coordinator.FromClient{ClientID: clientID, Intent: intent}) {
				return
			}
		}
	}
}

func toIntent(m types.ClientMessage) (coordinator.Intent, bool) {
	in := coordinator.Intent{CoachNumber: m.CoachNumber, SeatNumber: m.SeatNumber}
	switch m.Type {
	case types.MsgLockSeat:
		in.Action = coordinator.ActionLock
	case types.MsgConfirmSeat:
		in.Action = coordinator.ActionConfirm
	case types.MsgUnlockSeat:
		in.Action = coordinator.ActionUnlock
	default:
		return coordinator.Intent{}, false
	}
	return in, true
}

func toServerMessage(u broadcast.Update) types.ServerMessage {
	switch {
	case u.Snapshot != nil:
		return types.ServerMessage{Type: types.MsgInit, Version: u.Version, Train: u.Snapshot}
	case u.Change != nil:
		return types.ServerMessage{
			Type:        types.MsgUpdateSeat,
			Version:     u.Version,
			CoachNumber: u.Change.CoachNumber,
			SeatNumber:  u.Change.SeatNumber,
			Status:      u.Change.Status,
		}
	default:
		msg := types.ServerMessage{Type: types.MsgError, Version: u.Version}
		if u.Err != nil {
			msg.Error = u.Err.Error()
		}
		return msg
	}
}

func writeError(ctx context.Context, conn *websocket.Conn, reason string) {
	payload, _ := json.Marshal(types.ServerMessage{Type: types.MsgError, Error: reason})
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	_ = conn.Write(ctx, websocket.MessageText, payload)
}
