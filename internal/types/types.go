package types

import "github.com/DoyleJ11/train-seat-backend/internal/inventory"

// Client -> server message types.
const (
	MsgLockSeat    = "lockSeat"
	MsgConfirmSeat = "confirmSeat"
	MsgUnlockSeat  = "unlockSeat"
)

// Server -> client message types.
const (
	MsgInit       = "init"
	MsgUpdateSeat = "updateSeat"
	MsgError      = "error"
)

type ClientMessage struct {
	Type        string `json:"type"`
	CoachNumber int    `json:"coachNumber"`
	SeatNumber  int    `json:"seatNumber"`
}

type ServerMessage struct {
	Type        string           `json:"type"` // "init" | "updateSeat" | "error"
	Version     int              `json:"version"`
	Train       *inventory.Train `json:"train,omitempty"`
	CoachNumber int              `json:"coachNumber,omitempty"`
	SeatNumber  int              `json:"seatNumber,omitempty"`
	Status      inventory.Status `json:"status,omitempty"`
	Error       string           `json:"error,omitempty"`
}
