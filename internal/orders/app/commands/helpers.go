package commands

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dejobratic/nooks/internal/orders/domain"
	"github.com/dejobratic/nooks/internal/orders/ports"
)

func requireOrderID(id string) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("%w: order id is required", domain.ErrValidation)
	}
	return nil
}

// reconcileConflict re-reads an order after a conditional update lost a race
// and reports the error the caller would have seen had it read the new state.
func reconcileConflict(ctx context.Context, repo ports.OrderRepository, id string, err error) error {
	if !errors.Is(err, ports.ErrConflict) {
		return err
	}
	current, getErr := repo.GetByID(ctx, id)
	if getErr != nil {
		return getErr
	}
	if current.IsTerminal() {
		return domain.ErrAlreadyTerminal
	}
	return fmt.Errorf("%w: order is now %s", domain.ErrInvalidTransition, current.Status)
}
