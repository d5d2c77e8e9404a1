package shipping

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
)

// Service moves logistics records along pending → shipped → delivered.
type Service struct {
	repo Repository
	now  func() time.Time
}

// NewService creates a Service backed by repo.
func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// Open creates the pending record for a new order.
func (s *Service) Open(ctx context.Context, orderID int64) (*Logistics, error) {
	l := &Logistics{OrderID: orderID, Status: StatusPending}
	if err := s.repo.Create(ctx, l); err != nil {
		return nil, errors.Wrapf(err, "open logistics for order %d", orderID)
	}
	return l, nil
}

// Ship records carrier details and stamps ShippedAt. Only pending records
// can be shipped.
func (s *Service) Ship(ctx context.Context, orderID int64, company, tracking string) (*Logistics, error) {
	company, tracking = strings.TrimSpace(company), strings.TrimSpace(tracking)
	if company == "" || tracking == "" {
		return nil, ErrMissingTracking
	}
	if err := s.repo.UpdateShippingInfo(ctx, orderID, company, tracking, s.now()); err != nil {
		return nil, errors.Wrapf(err, "ship order %d", orderID)
	}
	return s.repo.FindByOrderID(ctx, orderID)
}

// Deliver stamps DeliveredAt. Only shipped records can be delivered.
func (s *Service) Deliver(ctx context.Context, orderID int64) (*Logistics, error) {
	if err := s.repo.UpdateDeliveryInfo(ctx, orderID, s.now()); err != nil {
		return nil, errors.Wrapf(err, "deliver order %d", orderID)
	}
	return s.repo.FindByOrderID(ctx, orderID)
}

// Get returns the record of an order.
func (s *Service) Get(ctx context.Context, orderID int64) (*Logistics, error) {
	return s.repo.FindByOrderID(ctx, orderID)
}

// Remove deletes the record of an order. Only the order cascade calls it.
func (s *Service) Remove(ctx context.Context, orderID int64) error {
	return s.repo.DeleteByOrderID(ctx, orderID)
}
