// Package orders models the order fulfillment lifecycle and guards status
// transitions.
package orders

import "fmt"

// Status is an order's position in the fulfillment lifecycle.
type Status string

const (
	StatusPending    Status = "pending"
	StatusConfirmed  Status = "confirmed"
	StatusProcessing Status = "processing"
	StatusPacked     Status = "packed"
	StatusShipped    Status = "shipped"
	StatusDelivered  Status = "delivered"

	// Terminal states, reachable from any non-terminal state.
	StatusCancelled Status = "cancelled"
	StatusRefunded  Status = "refunded"
)

// progression assigns each forward state an increasing rank. Terminal states
// are deliberately absent.
var progression = map[Status]int{
	StatusPending:    0,
	StatusConfirmed:  1,
	StatusProcessing: 2,
	StatusPacked:     3,
	StatusShipped:    4,
	StatusDelivered:  5,
}

// All lists every status in lifecycle order, terminals last.
func All() []Status {
	return []Status{
		StatusPending,
		StatusConfirmed,
		StatusProcessing,
		StatusPacked,
		StatusShipped,
		StatusDelivered,
		StatusCancelled,
		StatusRefunded,
	}
}

// Parse validates a raw status string.
func Parse(raw string) (Status, error) {
	s := Status(raw)
	if !s.Valid() {
		return "", fmt.Errorf("unknown order status %q", raw)
	}
	return s, nil
}

// Valid reports whether the status is a known value.
func (s Status) Valid() bool {
	if _, ok := progression[s]; ok {
		return true
	}
	return s == StatusCancelled || s == StatusRefunded
}

// IsTerminal reports whether the status absorbs all further transitions.
func (s Status) IsTerminal() bool {
	return s == StatusCancelled || s == StatusRefunded
}

// Rank returns the progression rank of a forward status, or -1 for terminal
// or unknown statuses.
func (s Status) Rank() int {
	if rank, ok := progression[s]; ok {
		return rank
	}
	return -1
}

// CanTransition decides whether moving from current to next is legal.
// Nothing leaves a terminal state; cancel/refund are always legal from
// non-terminal states; forward moves must strictly increase rank.
func CanTransition(current, next Status) bool {
	if !current.Valid() || !next.Valid() {
		return false
	}
	if current.IsTerminal() {
		return false
	}
	if next.IsTerminal() {
		return true
	}
	return next.Rank() > current.Rank()
}

// AvailableTransitions enumerates the statuses legally reachable from
// current, in lifecycle order.
func AvailableTransitions(current Status) []Status {
	var out []Status
	for _, next := range All() {
		if CanTransition(current, next) {
			out = append(out, next)
		}
	}
	return out
}
