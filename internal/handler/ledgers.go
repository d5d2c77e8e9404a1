package handler

import (
	"context"
	"net/http"

	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/shopdesk/internal/domain/inventory"
	"github.com/xenking/shopdesk/internal/domain/shipping"
)

func (h *Handler) inventoryHistory(w http.ResponseWriter, r *http.Request) error {
	id, err := pathID(r)
	if err != nil {
		return err
	}
	ctx := r.Context()
	entries, err := h.stock.History(ctx, id)
	if err != nil {
		return err
	}
	totals, err := h.stock.Totals(ctx, id)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("product_id", func(e *jx.Encoder) { e.Int64(id) })
			e.Field("purchased", func(e *jx.Encoder) { e.Int(totals.Purchased) })
			e.Field("sold", func(e *jx.Encoder) { e.Int(totals.Sold) })
			e.Field("entries", func(e *jx.Encoder) {
				e.Arr(func(e *jx.Encoder) {
					for _, le := range entries {
						encodeLogEntry(e, le)
					}
				})
			})
		})
	})
}

func (h *Handler) lowStock(w http.ResponseWriter, r *http.Request) error {
	threshold, err := queryInt(r, "threshold", h.lowStockThreshold)
	if err != nil {
		return err
	}
	levels, err := h.stock.LowStock(r.Context(), threshold)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.Arr(func(e *jx.Encoder) {
			for _, l := range levels {
				e.Obj(func(e *jx.Encoder) {
					e.Field("product_id", func(e *jx.Encoder) { e.Int64(l.ProductID) })
					e.Field("name", func(e *jx.Encoder) { e.Str(l.Name) })
					e.Field("stock", func(e *jx.Encoder) { e.Int(l.Stock) })
				})
			}
		})
	})
}

// readStockMovement reads a purchase, adjustment or stocktake body. field
// names its integer member.
func readStockMovement(r *http.Request, field string) (n int, note string, err error) {
	var set bool
	err = readObject(r, func(d *jx.Decoder, key string) error {
		switch key {
		case field:
			var err error
			n, err = d.Int()
			set = true
			return err
		case "note":
			var err error
			note, err = d.Str()
			return err
		default:
			return d.Skip()
		}
	})
	if err == nil && !set {
		err = invalid(field + " required")
	}
	return n, note, err
}

type stockOp func(ctx context.Context, productID int64, n int, note string) (inventory.LogEntry, error)

// moveStock runs op in a transaction so the stock write and its ledger
// entry land together.
func (h *Handler) moveStock(w http.ResponseWriter, r *http.Request, field string, op stockOp) error {
	id, err := pathID(r)
	if err != nil {
		return err
	}
	n, note, err := readStockMovement(r, field)
	if err != nil {
		return err
	}

	var entry inventory.LogEntry
	if err := h.tx.InTx(r.Context(), func(ctx context.Context) error {
		entry, err = op(ctx, id, n, note)
		return err
	}); err != nil {
		return err
	}
	return writeJSON(w, http.StatusCreated, func(e *jx.Encoder) { encodeLogEntry(e, entry) })
}

func (h *Handler) purchase(w http.ResponseWriter, r *http.Request) error {
	return h.moveStock(w, r, "quantity", h.stock.Purchase)
}

func (h *Handler) adjust(w http.ResponseWriter, r *http.Request) error {
	return h.moveStock(w, r, "delta", h.stock.Adjust)
}

func (h *Handler) stocktake(w http.ResponseWriter, r *http.Request) error {
	return h.moveStock(w, r, "counted", h.stock.Stocktake)
}

func (h *Handler) financeSummary(w http.ResponseWriter, r *http.Request) error {
	s, err := h.finance.Summary(r.Context())
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("total_income", func(e *jx.Encoder) { encodeMoney(e, s.TotalIncome) })
			e.Field("total_refund", func(e *jx.Encoder) { encodeMoney(e, s.TotalRefund) })
			e.Field("net", func(e *jx.Encoder) { encodeMoney(e, s.Net()) })
		})
	})
}

func (h *Handler) postIncome(w http.ResponseWriter, r *http.Request) error {
	id, err := pathID(r)
	if err != nil {
		return err
	}
	if err := h.finance.Post(r.Context(), id); err != nil {
		return err
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

func (h *Handler) refundOrder(w http.ResponseWriter, r *http.Request) error {
	id, err := pathID(r)
	if err != nil {
		return err
	}
	var (
		amount decimal.Decimal
		set    bool
	)
	err = readObject(r, func(d *jx.Decoder, key string) error {
		if key != "amount" {
			return d.Skip()
		}
		var err error
		amount, err = decodeDecimal(d)
		set = err == nil
		return err
	})
	if err != nil {
		return err
	}
	if !set {
		return invalid("amount required")
	}

	in, err := h.orders.RefundOrder(r.Context(), id, amount)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusCreated, func(e *jx.Encoder) { encodeIncome(e, *in) })
}

// shipOrder records carrier details. The order must be paid or shipped.
func (h *Handler) shipOrder(w http.ResponseWriter, r *http.Request) error {
	id, err := pathID(r)
	if err != nil {
		return err
	}
	var company, tracking string
	err = readObject(r, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "express_company":
			company, err = d.Str()
		case "tracking_number":
			tracking, err = d.Str()
		default:
			err = d.Skip()
		}
		return err
	})
	if err != nil {
		return err
	}
	l, err := h.shipping.ShipOrder(r.Context(), id, company, tracking)
	return writeLogistics(w, l, err)
}

// deliverOrder marks the shipment delivered. The order must be paid, shipped
// or completed.
func (h *Handler) deliverOrder(w http.ResponseWriter, r *http.Request) error {
	id, err := pathID(r)
	if err != nil {
		return err
	}
	l, err := h.shipping.DeliverOrder(r.Context(), id)
	return writeLogistics(w, l, err)
}

func writeLogistics(w http.ResponseWriter, l *shipping.Logistics, err error) error {
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeLogistics(e, l) })
}
