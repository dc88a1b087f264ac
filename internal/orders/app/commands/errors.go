package commands

import "errors"

var (
	// ErrCheckoutInProgress means another checkout holds the claim for the
	// order id and has not persisted the order yet.
	ErrCheckoutInProgress = errors.New("checkout already in progress for this order")
	// ErrPaymentRequired means no completed payment backs the order.
	ErrPaymentRequired = errors.New("payment has not been completed")
	// ErrPaymentDeclined means the provider reports the payment as failed.
	ErrPaymentDeclined = errors.New("payment was declined")
	// ErrPOSRejected wraps a POS failure that aborts checkout.
	ErrPOSRejected = errors.New("point of sale rejected the order")
	// ErrNotDispatchable means the order cannot be handed to a courier.
	ErrNotDispatchable = errors.New("order cannot be dispatched")
)
