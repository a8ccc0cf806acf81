package ws

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/DoyleJ11/train-seat-backend/internal/coordinator"
	"github.com/DoyleJ11/train-seat-backend/internal/inventory"
	"github.com/DoyleJ11/train-seat-backend/internal/types"
	"github.com/DoyleJ11/train-seat-backend/internal/view"
)

func newServer(t *testing.T) (*httptest.Server, *inventory.Inventory) {
	t.Helper()
	inv, err := inventory.New(2, 4, inventory.TrainMeta{TrainNumber: "12345"})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	c := coordinator.New(ctx, inv, coordinator.Options{})
	srv := httptest.NewServer(Handler(c, nil, zap.NewNop()))
	t.Cleanup(func() {
		srv.Close()
		cancel()
		<-c.Done()
	})
	return srv, inv
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.CloseNow() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, payload string) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, conn.Write(ctx, websocket.MessageText, []byte(payload)))
}

func recv(t *testing.T, conn *websocket.Conn, within time.Duration) types.ServerMessage {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), within)
	defer cancel()
	_, data, err := conn.Read(ctx)
	require.NoError(t, err)
	var msg types.ServerMessage
	require.NoError(t, json.Unmarshal(data, &msg))
	return msg
}

func TestHandler_InitThenBroadcastToAll(t *testing.T) {
	srv, _ := newServer(t)
	a := dial(t, srv)
	b := dial(t, srv)

	initA := recv(t, a, time.Second)
	require.Equal(t, types.MsgInit, initA.Type)
	require.NotNil(t, initA.Train)
	assert.Len(t, initA.Train.Coaches, 2)
	assert.Equal(t, types.MsgInit, recv(t, b, time.Second).Type)

	send(t, a, `{"type":"lockSeat","coachNumber":2,"seatNumber":3}`)

	for _, conn := range []*websocket.Conn{a, b} {
		msg := recv(t, conn, time.Second)
		assert.Equal(t, types.ServerMessage{
			Type:        types.MsgUpdateSeat,
			Version:     1,
			CoachNumber: 2,
			SeatNumber:  3,
			Status:      inventory.StatusLocked,
		}, msg)
	}
}

func TestHandler_ViewProjectionMatchesServer(t *testing.T) {
	srv, inv := newServer(t)
	conn := dial(t, srv)

	v := view.New()
	require.NoError(t, v.Apply(recv(t, conn, time.Second)))

	send(t, conn, `{"type":"lockSeat","coachNumber":1,"seatNumber":1}`)
	send(t, conn, `{"type":"confirmSeat","coachNumber":1,"seatNumber":1}`)
	send(t, conn, `{"type":"unlockSeat","coachNumber":1,"seatNumber":1}`) // booked: ignored
	send(t, conn, `{"type":"lockSeat","coachNumber":1,"seatNumber":2}`)
	for range 3 {
		require.NoError(t, v.Apply(recv(t, conn, time.Second)))
	}

	snap := inv.Snapshot()
	for _, c := range snap.Coaches {
		for _, s := range c.Seats {
			got, ok := v.Status(c.CoachNumber, s.SeatNumber)
			require.True(t, ok)
			assert.Equal(t, s.Status, got, "seat %d/%d", c.CoachNumber, s.SeatNumber)
		}
	}
	assert.Equal(t, 3, v.Version())
}

func TestHandler_ErrorsOnlyToSender(t *testing.T) {
	srv, _ := newServer(t)
	a := dial(t, srv)
	b := dial(t, srv)
	recv(t, a, time.Second)
	recv(t, b, time.Second)

	send(t, a, `{"type":"lockSeat","coachNumber":9,"seatNumber":1}`)
	msg := recv(t, a, time.Second)
	assert.Equal(t, types.MsgError, msg.Type)
	assert.Contains(t, msg.Error, "seat not found")

	send(t, a, `not json`)
	assert.Equal(t, types.ServerMessage{Type: types.MsgError, Error: "bad json"}, recv(t, a, time.Second))

	send(t, a, `{"type":"stealSeat","coachNumber":1,"seatNumber":1}`)
	assert.Equal(t, types.ServerMessage{Type: types.MsgError, Error: "unknown type"}, recv(t, a, time.Second))

	// b saw none of it: its next message is the next committed change
	send(t, a, `{"type":"lockSeat","coachNumber":1,"seatNumber":4}`)
	next := recv(t, b, time.Second)
	assert.Equal(t, types.MsgUpdateSeat, next.Type)
	assert.Equal(t, 1, next.Version)
}

func TestToIntent(t *testing.T) {
	cases := []struct {
		in     types.ClientMessage
		want   coordinator.Action
		wantOK bool
	}{
		{in: types.ClientMessage{Type: "lockSeat", CoachNumber: 1, SeatNumber: 2}, want: coordinator.ActionLock, wantOK: true},
		{in: types.ClientMessage{Type: "confirmSeat", CoachNumber: 1, SeatNumber: 2}, want: coordinator.ActionConfirm, wantOK: true},
		{in: types.ClientMessage{Type: "unlockSeat", CoachNumber: 1, SeatNumber: 2}, want: coordinator.ActionUnlock, wantOK: true},
		{in: types.ClientMessage{Type: "bookSeat"}},
	}

	for _, tc := range cases {
		t.Run(tc.in.Type, func(t *testing.T) {
			got, ok := toIntent(tc.in)
			assert.Equal(t, tc.wantOK, ok)
			if ok {
				assert.Equal(t, coordinator.Intent{CoachNumber: 1, SeatNumber: 2, Action: tc.want}, got)
			}
		})
	}
}
