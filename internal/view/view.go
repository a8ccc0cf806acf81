// Package view keeps a client's copy of the seat map. The copy is only ever
// a projection of the last authoritative messages from the server: an init
// replaces it wholesale and each updateSeat overwrites one seat.
package view

import (
	"errors"
	"fmt"

	"github.com/DoyleJ11/train-seat-backend/internal/inventory"
	"github.com/DoyleJ11/train-seat-backend/internal/types"
)

var ErrNotLoaded = errors.New("no init received yet")

// ErrStale means an update was skipped; the client must reconnect for a
// fresh snapshot.
var ErrStale = errors.New("missed an update")

var ErrServer = errors.New("server error")

var ErrUnknownMessage = errors.New("unknown message type")

type View struct {
	version int
	train   *inventory.Train
}

func New() *View { return &View{} }

func (v *View) Version() int { return v.version }

func (v *View) Loaded() bool { return v.train != nil }

// Apply folds one server message into the view.
func (v *View) Apply(msg types.ServerMessage) error {
	switch msg.Type {
	case types.MsgInit:
		if msg.Train == nil {
			return fmt.Errorf("%w: init without train", ErrUnknownMessage)
		}
		v.train = clone(*msg.Train)
		v.version = msg.Version
		return nil

	case types.MsgUpdateSeat:
		if v.train == nil {
			return ErrNotLoaded
		}
		if msg.Version <= v.version {
			return nil // duplicate delivery
		}
		if msg.Version != v.version+1 {
			return fmt.Errorf("%w: have version %d, got %d", ErrStale, v.version, msg.Version)
		}
		seat, ok := v.seat(msg.CoachNumber, msg.SeatNumber)
		if !ok {
			return fmt.Errorf("%w: update for unknown seat %d/%d", ErrStale, msg.CoachNumber, msg.SeatNumber)
		}
		seat.Status = msg.Status
		v.version = msg.Version
		return nil

	case types.MsgError:
		return fmt.Errorf("%w: %s", ErrServer, msg.Error)

	default:
		return fmt.Errorf("%w: %q", ErrUnknownMessage, msg.Type)
	}
}

func (v *View) Status(coachNumber, seatNumber int) (inventory.Status, bool) {
	seat, ok := v.seat(coachNumber, seatNumber)
	if !ok {
		return "", false
	}
	return seat.Status, true
}

func (v *View) Summary(unitPrice int) (booked []inventory.SeatRef, total int) {
	if v.train == nil {
		return nil, 0
	}
	booked = inventory.BookedSeats(*v.train)
	return booked, len(booked) * unitPrice
}

func (v *View) seat(coachNumber, seatNumber int) (*inventory.Seat, bool) {
	if v.train == nil {
		return nil, false
	}
	for ci := range v.train.Coaches {
		c := &v.train.Coaches[ci]
		if c.CoachNumber != coachNumber {
			continue
		}
		for si := range c.Seats {
			if c.Seats[si].SeatNumber == seatNumber {
				return &c.Seats[si], true
			}
		}
	}
	return nil, false
}

func clone(t inventory.Train) *inventory.Train {
	out := inventory.Train{TrainMeta: t.TrainMeta, Coaches: make([]inventory.Coach, len(t.Coaches))}
	for i, c := range t.Coaches {
		out.Coaches[i] = inventory.Coach{CoachNumber: c.CoachNumber, Seats: append([]inventory.Seat(nil), c.Seats...)}
	}
	return &out
}
