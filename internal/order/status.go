package order

import "strings"

// Status is the fulfillment state of an order. Transitions only move
// forward; cancellation is terminal and possible until delivery.
type Status string

const (
	StatusSubmitted Status = "SUBMITTED"
	StatusPaid      Status = "PAID"
	StatusDelivered Status = "DELIVERED"
	StatusCanceled  Status = "CANCELED"
)

// ParseStatus normalises a user-supplied status string.
func ParseStatus(value string) (Status, bool) {
	switch Status(strings.ToUpper(strings.TrimSpace(value))) {
	case StatusSubmitted:
		return StatusSubmitted, true
	case StatusPaid:
		return StatusPaid, true
	case StatusDelivered:
		return StatusDelivered, true
	case StatusCanceled:
		return StatusCanceled, true
	}
	return "", false
}

// Rank orders the forward states; canceled sits outside the progression.
func Rank(s Status) int {
	switch s {
	case StatusSubmitted:
		return 0
	case StatusPaid:
		return 1
	case StatusDelivered:
		return 2
	case StatusCanceled:
		return -1
	default:
		return -2
	}
}

// CanTransition reports whether an admin move from one status to another is
// legal. Forward moves must strictly increase rank; cancel is allowed from
// any state that is not already terminal.
func CanTransition(from, to Status) bool {
	if from == to {
		return false
	}
	if to == StatusCanceled {
		return from != StatusDelivered && from != StatusCanceled
	}
	if from == StatusCanceled {
		return false
	}
	return Rank(to) > Rank(from)
}
