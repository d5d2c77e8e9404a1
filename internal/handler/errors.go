package handler

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/shopdesk/internal/domain/finance"
	"github.com/xenking/shopdesk/internal/domain/inventory"
	"github.com/xenking/shopdesk/internal/domain/order"
	"github.com/xenking/shopdesk/internal/domain/product"
	"github.com/xenking/shopdesk/internal/domain/shipping"
	"github.com/xenking/shopdesk/pkg/httpmiddleware"
)

// badRequest is a malformed request that never reached the domain.
type badRequest struct {
	msg string
}

func (e *badRequest) Error() string { return e.msg }

func invalid(msg string) error { return &badRequest{msg: msg} }

// errNoOrder is returned when a read finds no order.
var errNoOrder = errors.New("order not found")

// statusOf maps domain errors to HTTP status codes. Order engine errors are
// mapped by category, ledger sentinels individually.
func statusOf(err error) int {
	var br *badRequest
	switch {
	case errors.As(err, &br):
		return http.StatusBadRequest
	case errors.Is(err, order.ErrValidation),
		errors.Is(err, product.ErrInvalidQuantity),
		errors.Is(err, inventory.ErrZeroAdjustment),
		errors.Is(err, finance.ErrInvalidAmount),
		errors.Is(err, shipping.ErrMissingTracking):
		return http.StatusBadRequest
	case errors.Is(err, order.ErrNotFound),
		errors.Is(err, errNoOrder),
		errors.Is(err, product.ErrNotFound),
		errors.Is(err, finance.ErrNotFound),
		errors.Is(err, shipping.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, order.ErrConflict),
		errors.Is(err, product.ErrInsufficientStock),
		errors.Is(err, finance.ErrAlreadyPosted),
		errors.Is(err, shipping.ErrInvalidState),
		errors.Is(err, shipping.ErrAlreadyExists):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// writeErr logs server errors and writes the error body. Internal details
// are not exposed for 500s.
func writeErr(w http.ResponseWriter, r *http.Request, err error) {
	code := statusOf(err)
	msg := err.Error()
	if code == http.StatusInternalServerError {
		zctx.From(r.Context()).Error("Request failed", zap.Error(err))
		msg = "internal server error"
	}
	httpmiddleware.WriteError(w, code, msg)
}
