package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/dejobratic/nooks/internal/orders/domain"
	"github.com/dejobratic/nooks/internal/orders/ports"
)

// CheckEligibilityCommand asks whether a branch delivers to an address.
type CheckEligibilityCommand struct {
	BranchID string
	Address  domain.Address
}

func (c CheckEligibilityCommand) Validate() error {
	if strings.TrimSpace(c.BranchID) == "" {
		return fmt.Errorf("%w: branchId is required", domain.ErrValidation)
	}
	return nil
}

type CheckEligibilityCommandHandler struct {
	branches ports.BranchDirectory
}

func NewCheckEligibilityCommandHandler(branches ports.BranchDirectory) *CheckEligibilityCommandHandler {
	return &CheckEligibilityCommandHandler{branches: branches}
}

// Handle returns nil when the branch can serve the address and an error
// wrapping delivery.ErrNotDeliverable when it cannot.
func (h *CheckEligibilityCommandHandler) Handle(ctx context.Context, cmd CheckEligibilityCommand) error {
	if err := cmd.Validate(); err != nil {
		return err
	}
	branch, err := h.branches.Lookup(cmd.BranchID)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}
	return checkDeliverable(branch, &cmd.Address)
}
