package orders

import (
	"github.com/ariefcatur/go-shop-orders/internal/apperr"
	"time"
)

type Status string

const (
	StatusValidating Status = "validating order"
	StatusSent       Status = "order sent"
	StatusReceived   Status = "order received"
	StatusCanceled   Status = "canceled"
)

// Statuses lists every status in lifecycle order. Canceled comes last but is
// never reached by Advance.
var Statuses = []Status{StatusValidating, StatusSent, StatusReceived, StatusCanceled}

var validNext = map[Status]map[Status]bool{
	StatusValidating: {StatusSent: true, StatusCanceled: true},
	StatusSent:       {StatusReceived: true, StatusCanceled: true},
	StatusReceived:   {},
	StatusCanceled:   {},
}

var forward = map[Status]Status{
	StatusValidating: StatusSent,
	StatusSent:       StatusReceived,
}

func CanTransition(from, to Status) bool {
	return validNext[from][to]
}

func (s Status) Valid() bool {
	_, ok := validNext[s]
	return ok
}

func (s Status) Terminal() bool {
	return s == StatusReceived || s == StatusCanceled
}

// Advance returns the status that follows s.
func Advance(s Status) (Status, error) {
	switch s {
	case StatusCanceled:
		return "", apperr.InvalidTransition("Cannot update status. Order is canceled.")
	case StatusReceived:
		return "", apperr.InvalidTransition("Cannot update status. Order already in the final status %q.", StatusReceived)
	}
	next, ok := forward[s]
	if !ok {
		return "", apperr.InvalidTransition("Invalid order status %q", s)
	}
	return next, nil
}

// VerifyOwnership fails unless o exists and belongs to userID.
func VerifyOwnership(o *Order, userID string) error {
	if o == nil {
		return apperr.Unauthorized("Invalid order")
	}
	if o.User.ID != userID {
		return apperr.Unauthorized("Invalid order.")
	}
	return nil
}

// EndDateFor returns now for the terminal statuses and nil otherwise.
func EndDateFor(s Status, now time.Time) *time.Time {
	if !s.Terminal() {
		return nil
	}
	t := now.UTC()
	return &t
}
