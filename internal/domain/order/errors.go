package order

import (
	"fmt"

	"github.com/go-faster/errors"
)

// Error categories. Every error returned by Service matches exactly one of
// them through errors.Is.
var (
	ErrValidation  = errors.New("validation failed")
	ErrConflict    = errors.New("conflict")
	ErrNotFound    = errors.New("not found")
	ErrPersistence = errors.New("persistence failure")
)

// Sentinel errors for order validation and concurrent modification.
var (
	ErrNilOrder         = &Error{Kind: ErrValidation, Msg: "order required"}
	ErrEmptyItems       = &Error{Kind: ErrValidation, Msg: "items required"}
	ErrInvalidStatus    = &Error{Kind: ErrValidation, Msg: "unknown order status"}
	ErrInitialStatus    = &Error{Kind: ErrValidation, Msg: "order can only be created pending payment or paid"}
	ErrTotalMismatch    = &Error{Kind: ErrValidation, Msg: "total amount does not match item subtotals"}
	ErrSubtotalMismatch = &Error{Kind: ErrValidation, Msg: "item subtotal does not match price times quantity"}
	ErrInvalidID        = &Error{Kind: ErrValidation, Msg: "id must be positive"}
	ErrEmptyPatch       = &Error{Kind: ErrValidation, Msg: "nothing to update"}
	ErrStatusChanged    = &Error{Kind: ErrConflict, Msg: "order status changed concurrently"}
)

// Refund validation errors.
var (
	ErrInvalidRefund      = &Error{Kind: ErrValidation, Msg: "refund amount must be positive"}
	ErrRefundExceedsTotal = &Error{Kind: ErrValidation, Msg: "refunds would exceed order total"}
)

// Error is a categorized engine error. Kind is one of the category
// sentinels; Err, when set, is the underlying cause.
type Error struct {
	Kind error
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Msg + ": " + e.Err.Error()
	}
	return e.Msg
}

func (e *Error) Is(target error) bool { return target == e.Kind }

func (e *Error) Unwrap() error { return e.Err }

// NotFoundError indicates a missing order.
type NotFoundError struct {
	OrderID int64
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("order %d not found", e.OrderID)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// ProductNotFoundError indicates a requested product does not exist.
type ProductNotFoundError struct {
	ProductID int64
}

func (e *ProductNotFoundError) Error() string {
	return fmt.Sprintf("product %d not found", e.ProductID)
}

func (e *ProductNotFoundError) Is(target error) bool { return target == ErrNotFound }

// InvalidQuantityError indicates a line item has a non-positive quantity.
type InvalidQuantityError struct {
	ProductID int64
}

func (e *InvalidQuantityError) Error() string {
	return fmt.Sprintf("quantity must be greater than 0 for product %d", e.ProductID)
}

func (e *InvalidQuantityError) Is(target error) bool { return target == ErrValidation }

// InsufficientStockError indicates a product cannot cover an ordered quantity.
// Available is -1 when the shortage was detected by the conditional
// decrement rather than the pre-check.
type InsufficientStockError struct {
	ProductID int64
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	if e.Available < 0 {
		return fmt.Sprintf("insufficient stock for product %d: requested %d", e.ProductID, e.Requested)
	}
	return fmt.Sprintf("insufficient stock for product %d: requested %d, available %d",
		e.ProductID, e.Requested, e.Available)
}

func (e *InsufficientStockError) Is(target error) bool { return target == ErrConflict }

// StatusError indicates an operation that the order's current status forbids.
type StatusError struct {
	OrderID int64
	Status  Status
	Op      string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("cannot %s order %d in status %s", e.Op, e.OrderID, e.Status)
}

func (e *StatusError) Is(target error) bool { return target == ErrConflict }

// TransitionError indicates a status change missing from the transition table.
type TransitionError struct {
	OrderID int64
	From    Status
	To      Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("order %d: transition %s -> %s not allowed", e.OrderID, e.From, e.To)
}

func (e *TransitionError) Is(target error) bool { return target == ErrConflict }

func persistence(op string, err error) error {
	return &Error{Kind: ErrPersistence, Msg: op, Err: err}
}

// kind returns the category sentinel err belongs to.
func kind(err error) error {
	for _, k := range []error{ErrValidation, ErrConflict, ErrNotFound, ErrPersistence} {
		if errors.Is(err, k) {
			return k
		}
	}
	return ErrPersistence
}
