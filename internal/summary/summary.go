package summary

import "github.com/DoyleJ11/train-seat-backend/internal/inventory"

type Summary struct {
	TrainNumber   string              `json:"trainNumber"`
	DepartureTime string              `json:"departureTime"`
	ArrivalTime   string              `json:"arrivalTime"`
	TotalAmount   int                 `json:"totalAmount"`
	BookedSeats   []inventory.SeatRef `json:"bookedSeats"`
}

// Summarize reads only the given snapshot, so the count and the seat list
// always agree.
func Summarize(t inventory.Train, unitPrice int) Summary {
	booked := inventory.BookedSeats(t)
	return Summary{
		TrainNumber:   t.TrainNumber,
		DepartureTime: t.DepartureTime,
		ArrivalTime:   t.ArrivalTime,
		TotalAmount:   len(booked) * unitPrice,
		BookedSeats:   booked,
	}
}
