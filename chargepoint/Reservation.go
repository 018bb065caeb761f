package chargepoint

import (
	"sync"
	"time"
)

type Reservation struct {
	ReservationID int
	ConnectorID   int // protocol connector id, 0 reserves any connector
	ExpiryDate    time.Time
	IdTag         string
	ParentIdTag   string
}

// ValidFor reports whether the reservation holds idTag on connector at now.
func (r Reservation) ValidFor(idTag string, connector int, now time.Time) bool {
	if r.IdTag != idTag || !now.Before(r.ExpiryDate) {
		return false
	}

	return r.ConnectorID == 0 || r.ConnectorID == connector
}

type Reservations struct {
	mu    sync.Mutex
	items []Reservation
}

func NewReservations() *Reservations {
	return &Reservations{}
}

// Add stores the reservation unless it is already expired at now.
// A reservation with the same id replaces the previous one.
func (r *Reservations) Add(reservation Reservation, now time.Time) bool {
	if !now.Before(reservation.ExpiryDate) {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for i := range r.items {
		if r.items[i].ReservationID == reservation.ReservationID {
			r.items[i] = reservation
			return true
		}
	}
	r.items = append(r.items, reservation)

	return true
}

func (r *Reservations) Cancel(reservationID int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := range r.items {
		if r.items[i].ReservationID == reservationID {
			r.items = append(r.items[:i], r.items[i+1:]...)
			return true
		}
	}

	return false
}

// Find returns the first reservation valid for idTag on connector at now.
func (r *Reservations) Find(idTag string, connector int, now time.Time) (Reservation, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, reservation := range r.items {
		if reservation.ValidFor(idTag, connector, now) {
			return reservation, true
		}
	}

	return Reservation{}, false
}

// Reserved reports whether connector holds an unexpired reservation other than reservationID.
func (r *Reservations) Reserved(connector, reservationID int, now time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, reservation := range r.items {
		if reservation.ReservationID != reservationID && reservation.ConnectorID == connector && now.Before(reservation.ExpiryDate) {
			return true
		}
	}

	return false
}

func (r *Reservations) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.items)
}
