package inventory

import (
	"errors"
	"fmt"
	"sync"
)

var ErrNotFound = errors.New("seat not found")
var ErrIllegalTransition = errors.New("illegal transition")
var ErrInvalidLayout = errors.New("invalid train layout")

type Status string

const (
	StatusVacant Status = "vacant"
	StatusLocked Status = "locked"
	StatusBooked Status = "booked"
)

type Seat struct {
	SeatNumber int    `json:"seatNumber"`
	Status     Status `json:"status"`
}

type Coach struct {
	CoachNumber int    `json:"coachNumber"`
	Seats       []Seat `json:"seats"`
}

// TrainMeta is the static part of a train; it never changes after startup.
type TrainMeta struct {
	TrainNumber   string `json:"trainNumber"`
	DepartureTime string `json:"departureTime"`
	ArrivalTime   string `json:"arrivalTime"`
}

type Train struct {
	TrainMeta
	Coaches []Coach `json:"coaches"`
}

// SeatRef identifies a seat without its status.
type SeatRef struct {
	CoachNumber int `json:"coachNumber"`
	SeatNumber  int `json:"seatNumber"`
}

func (r SeatRef) String() string {
	return fmt.Sprintf("%d/%d", r.CoachNumber, r.SeatNumber)
}

// Change is a committed transition as observers see it.
type Change struct {
	SeatRef
	Status Status `json:"status"`
}

type Stats struct {
	Vacant int
	Locked int
	Booked int
}

// Inventory is the authoritative seat table. All status changes go through
// TryTransition; every method is safe for concurrent use.
type Inventory struct {
	mu    sync.RWMutex
	train Train
}

func New(coachCount, seatsPerCoach int, meta TrainMeta) (*Inventory, error) {
	if coachCount <= 0 || seatsPerCoach <= 0 {
		return nil, fmt.Errorf("%w: %d coaches x %d seats", ErrInvalidLayout, coachCount, seatsPerCoach)
	}

	coaches := make([]Coach, coachCount)
	for i := range coaches {
		seats := make([]Seat, seatsPerCoach)
		for j := range seats {
			seats[j] = Seat{SeatNumber: j + 1, Status: StatusVacant}
		}
		coaches[i] = Coach{CoachNumber: i + 1, Seats: seats}
	}

	return &Inventory{train: Train{TrainMeta: meta, Coaches: coaches}}, nil
}

// TryTransition moves a seat from `from` to `to` if and only if its current
// status is `from`. A false result with a nil error means someone else got
// there first and nothing was changed.
func (inv *Inventory) TryTransition(coachNumber, seatNumber int, from, to Status) (bool, error) {
	if !legal(from, to) {
		return false, fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, from, to)
	}

	inv.mu.Lock()
	defer inv.mu.Unlock()

	seat, err := inv.locate(coachNumber, seatNumber)
	if err != nil {
		return false, err
	}
	if seat.Status != from {
		return false, nil
	}
	seat.Status = to
	return true, nil
}

func (inv *Inventory) Status(coachNumber, seatNumber int) (Status, error) {
	inv.mu.RLock()
	defer inv.mu.RUnlock()

	seat, err := inv.locate(coachNumber, seatNumber)
	if err != nil {
		return "", err
	}
	return seat.Status, nil
}

// Snapshot returns a deep copy of the train; later transitions do not affect it.
func (inv *Inventory) Snapshot() Train {
	inv.mu.RLock()
	defer inv.mu.RUnlock()

	out := Train{TrainMeta: inv.train.TrainMeta, Coaches: make([]Coach, len(inv.train.Coaches))}
	for i, c := range inv.train.Coaches {
		seats := make([]Seat, len(c.Seats))
		copy(seats, c.Seats)
		out.Coaches[i] = Coach{CoachNumber: c.CoachNumber, Seats: seats}
	}
	return out
}

func (inv *Inventory) BookedSeats() []SeatRef {
	inv.mu.RLock()
	defer inv.mu.RUnlock()
	return BookedSeats(inv.train)
}

func (inv *Inventory) Stats() Stats {
	inv.mu.RLock()
	defer inv.mu.RUnlock()

	var s Stats
	for _, c := range inv.train.Coaches {
		for _, seat := range c.Seats {
			switch seat.Status {
			case StatusVacant:
				s.Vacant++
			case StatusLocked:
				s.Locked++
			case StatusBooked:
				s.Booked++
			}
		}
	}
	return s
}

// BookedSeats lists the booked seats of t in coach-then-seat order.
func BookedSeats(t Train) []SeatRef {
	booked := []SeatRef{}
	for _, c := range t.Coaches {
		for _, seat := range c.Seats {
			if seat.Status == StatusBooked {
				booked = append(booked, SeatRef{CoachNumber: c.CoachNumber, SeatNumber: seat.SeatNumber})
			}
		}
	}
	return booked
}

// Coach and seat numbers are 1-based and dense, so lookup is plain indexing.
func (inv *Inventory) locate(coachNumber, seatNumber int) (*Seat, error) {
	if coachNumber < 1 || coachNumber > len(inv.train.Coaches) {
		return nil, fmt.Errorf("%w: coach %d", ErrNotFound, coachNumber)
	}
	seats := inv.train.Coaches[coachNumber-1].Seats
	if seatNumber < 1 || seatNumber > len(seats) {
		return nil, fmt.Errorf("%w: seat %d in coach %d", ErrNotFound, seatNumber, coachNumber)
	}
	return &seats[seatNumber-1], nil
}

func legal(from, to Status) bool {
	switch {
	case from == StatusVacant && to == StatusLocked:
		return true
	case from == StatusLocked && to == StatusBooked:
		return true
	case from == StatusLocked && to == StatusVacant:
		return true
	default:
		return false
	}
}
