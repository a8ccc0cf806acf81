// Command seatwatch connects to the seat server as a read-only observer and
// logs every seat change, reconnecting whenever its view falls behind.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"

	"github.com/DoyleJ11/train-seat-backend/internal/logger"
	"github.com/DoyleJ11/train-seat-backend/internal/types"
	"github.com/DoyleJ11/train-seat-backend/internal/view"
)

func main() {
	url := flag.String("url", "ws://localhost:3000/ws", "seat server websocket URL")
	env := flag.String("env", "dev", "log format: dev or prod")
	flag.Parse()

	lg, err := logger.New(*env)
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = lg.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	backoff := time.Second
	for ctx.Err() == nil {
		err := watch(ctx, *url, lg)
		if ctx.Err() != nil {
			return
		}
		lg.Warn("disconnected; reconnecting", zap.Error(err), zap.Duration("backoff", backoff))
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		if backoff < 30*time.Second {
			backoff *= 2
		}
	}
}

// watch runs one connection. Any error means the local view can no longer be
// trusted and a new connection (and init snapshot) is needed.
func watch(ctx context.Context, url string, lg *zap.Logger) error {
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return err
	}
	defer conn.CloseNow()

	v := view.New()
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}

		var msg types.ServerMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			return err
		}
		if err := v.Apply(msg); err != nil {
			if errors.Is(err, view.ErrServer) {
				lg.Warn("server error", zap.String("error", msg.Error))
				continue
			}
			return err
		}

		switch msg.Type {
		case types.MsgInit:
			booked, _ := v.Summary(0)
			lg.Info("synced",
				zap.String("train", msg.Train.TrainNumber),
				zap.Int("version", v.Version()),
				zap.Int("coaches", len(msg.Train.Coaches)),
				zap.Int("booked", len(booked)))
		case types.MsgUpdateSeat:
			lg.Info("seat",
				zap.Int("coach", msg.CoachNumber),
				zap.Int("seat", msg.SeatNumber),
				zap.String("status", string(msg.Status)),
				zap.Int("version", v.Version()))
		}
	}
}
