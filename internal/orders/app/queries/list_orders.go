package queries

import (
	"context"
	"fmt"

	"github.com/dejobratic/nooks/internal/orders/domain"
	"github.com/dejobratic/nooks/internal/orders/ports"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// ListOrdersQuery filters orders for the merchant dashboard. Status, when
// set, must be one of the fixed status names.
type ListOrdersQuery struct {
	Status     string
	CustomerID string
	BranchID   string
	Page       int
	PageSize   int
}

type ListOrdersQueryHandler struct {
	repo ports.OrderRepository
}

func NewListOrdersQueryHandler(repo ports.OrderRepository) *ListOrdersQueryHandler {
	return &ListOrdersQueryHandler{repo: repo}
}

// Handle lists orders newest first.
func (h *ListOrdersQueryHandler) Handle(ctx context.Context, query ListOrdersQuery) ([]domain.Order, error) {
	filter, err := query.filter()
	if err != nil {
		return nil, err
	}
	return h.repo.List(ctx, filter)
}

func (q ListOrdersQuery) filter() (ports.ListFilter, error) {
	filter := ports.ListFilter{
		CustomerID: q.CustomerID,
		BranchID:   q.BranchID,
		Page:       q.Page,
		PageSize:   q.PageSize,
	}
	if q.Status != "" {
		status, err := domain.ParseStatus(q.Status)
		if err != nil {
			return ports.ListFilter{}, err
		}
		filter.Status = &status
	}
	if filter.Page < 0 {
		return ports.ListFilter{}, fmt.Errorf("%w: page must not be negative", domain.ErrValidation)
	}
	if filter.Page == 0 {
		filter.Page = 1
	}
	switch {
	case filter.PageSize <= 0:
		filter.PageSize = DefaultPageSize
	case filter.PageSize > MaxPageSize:
		filter.PageSize = MaxPageSize
	}
	return filter, nil
}
