package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	// HoldWindow is how long after creation a customer may put the order on hold.
	HoldWindow = 5 * time.Second
	// CustomerCancelWindow is how long after creation a customer may cancel.
	CustomerCancelWindow = 2 * time.Minute
)

var (
	ErrValidation        = errors.New("validation failed")
	ErrWindowExpired     = errors.New("window expired")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrAlreadyTerminal   = errors.New("order is already delivered or cancelled")
	ErrReasonRequired    = errors.New("cancellation reason is required")
	ErrInvalidStatus     = errors.New("unknown order status")
)

var validNext = map[OrderStatus]map[OrderStatus]bool{
	StatusPreparing:      {StatusReady: true, StatusOnHold: true, StatusCancelled: true},
	StatusOnHold:         {StatusPreparing: true, StatusCancelled: true},
	StatusReady:          {StatusOutForDelivery: true, StatusDelivered: true, StatusCancelled: true},
	StatusOutForDelivery: {StatusDelivered: true, StatusCancelled: true},
	StatusDelivered:      {},
	StatusCancelled:      {},
}

// progress orders the forward path so external status feeds can skip steps.
var progress = map[OrderStatus]int{
	StatusPreparing:      0,
	StatusReady:          1,
	StatusOutForDelivery: 2,
	StatusDelivered:      3,
}

// ParseStatus accepts only the fixed status vocabulary.
func ParseStatus(value string) (OrderStatus, error) {
	status := OrderStatus(value)
	if _, ok := validNext[status]; !ok {
		return "", fmt.Errorf("%w: %q", ErrInvalidStatus, value)
	}
	return status, nil
}

// IsTerminal reports whether no transition leaves s.
func (s OrderStatus) IsTerminal() bool {
	return s == StatusDelivered || s == StatusCancelled
}

// CanTransition reports whether from -> to is allowed for an order of the given type.
// Pickup orders never go out for delivery.
func CanTransition(from, to OrderStatus, orderType OrderType) bool {
	if to == StatusOutForDelivery && orderType == OrderTypePickup {
		return false
	}
	return validNext[from][to]
}

// CanAdvance reports whether an external progress update may move the order
// from -> to. Only strictly forward moves along the fulfilment path count.
func CanAdvance(from, to OrderStatus) bool {
	fromRank, okFrom := progress[from]
	toRank, okTo := progress[to]
	return okFrom && okTo && toRank > fromRank
}

// CheckHold validates Preparing -> On Hold at now.
func (o Order) CheckHold(now time.Time) error {
	if o.Age(now) > HoldWindow {
		return ErrWindowExpired
	}
	if o.Status != StatusPreparing {
		return fmt.Errorf("%w: cannot hold order in status %s", ErrInvalidTransition, o.Status)
	}
	return nil
}

// CheckResume validates On Hold -> Preparing. Resuming an order that is
// already Preparing is a no-op and reported as ok=false with no error.
func (o Order) CheckResume() (ok bool, err error) {
	switch o.Status {
	case StatusOnHold:
		return true, nil
	case StatusPreparing:
		return false, nil
	default:
		return false, fmt.Errorf("%w: cannot resume order in status %s", ErrInvalidTransition, o.Status)
	}
}

// CanCustomerCancel reports whether a customer cancel would be accepted at now.
func (o Order) CanCustomerCancel(now time.Time) bool {
	return o.Status == StatusPreparing && o.Age(now) <= CustomerCancelWindow
}

// CancelTimeRemaining is the time left in the customer cancel window, never negative.
func (o Order) CancelTimeRemaining(now time.Time) time.Duration {
	if o.Status != StatusPreparing {
		return 0
	}
	remaining := CustomerCancelWindow - o.Age(now)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// CheckCustomerCancel validates a customer cancel at now. Both a wrong status
// and an elapsed window report ErrWindowExpired.
func (o Order) CheckCustomerCancel(now time.Time) error {
	if !o.CanCustomerCancel(now) {
		return ErrWindowExpired
	}
	return nil
}

// CheckMerchantCancel validates a merchant cancel with the given reason.
func (o Order) CheckMerchantCancel(reason string) error {
	if o.IsTerminal() {
		return ErrAlreadyTerminal
	}
	if strings.TrimSpace(reason) == "" {
		return ErrReasonRequired
	}
	return nil
}

// CheckStatusUpdate validates a dashboard-driven status change. Cancellation
// goes through CheckMerchantCancel so that a reason and refund are recorded.
func (o Order) CheckStatusUpdate(to OrderStatus) error {
	if o.IsTerminal() {
		return ErrAlreadyTerminal
	}
	if to == StatusCancelled {
		return fmt.Errorf("%w: use merchant cancel to cancel an order", ErrInvalidTransition)
	}
	if !CanTransition(o.Status, to, o.OrderType) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, o.Status, to)
	}
	return nil
}
