package handler

import (
	"io"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/shopdesk/internal/domain/finance"
	"github.com/xenking/shopdesk/internal/domain/inventory"
	"github.com/xenking/shopdesk/internal/domain/order"
	"github.com/xenking/shopdesk/internal/domain/product"
	"github.com/xenking/shopdesk/internal/domain/shipping"
)

const maxBodySize = 1 << 20

func writeJSON(w http.ResponseWriter, code int, fn func(e *jx.Encoder)) error {
	var e jx.Encoder
	fn(&e)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, err := w.Write(e.Bytes())
	return err
}

// readObject decodes a JSON object body, calling fn for every field.
func readObject(r *http.Request, fn func(d *jx.Decoder, key string) error) error {
	data, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		return invalid("read body: " + err.Error())
	}
	if err := jx.DecodeBytes(data).ObjBytes(func(d *jx.Decoder, key []byte) error {
		return fn(d, string(key))
	}); err != nil {
		var br *badRequest
		if errors.As(err, &br) {
			return br
		}
		return invalid("malformed json: " + err.Error())
	}
	return nil
}

func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, invalid("id must be a positive integer")
	}
	return id, nil
}

// queryInt returns the named query parameter, or def when it is absent.
func queryInt(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, invalid(name + " must be an integer")
	}
	return v, nil
}

// decodeDecimal accepts both JSON numbers and numeric strings.
func decodeDecimal(d *jx.Decoder) (decimal.Decimal, error) {
	var raw string
	switch d.Next() {
	case jx.String:
		s, err := d.Str()
		if err != nil {
			return decimal.Zero, err
		}
		raw = s
	case jx.Number:
		n, err := d.Num()
		if err != nil {
			return decimal.Zero, err
		}
		raw = string(n)
	default:
		return decimal.Zero, invalid("amount must be a number")
	}
	v, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, invalid("invalid amount " + strconv.Quote(raw))
	}
	return v, nil
}

// decodeStatus reads an order status code. Values outside the int16 range
// are rejected instead of wrapping onto a valid status.
func decodeStatus(d *jx.Decoder) (order.Status, error) {
	s, err := d.Int()
	if err != nil {
		return 0, err
	}
	if s < math.MinInt16 || s > math.MaxInt16 {
		return 0, invalid("status out of range")
	}
	return order.Status(s), nil
}

func encodeMoney(e *jx.Encoder, d decimal.Decimal) {
	e.Str(d.StringFixed(2))
}

func encodeTime(e *jx.Encoder, t time.Time) {
	e.Str(t.UTC().Format(time.RFC3339))
}

func encodeOptTime(e *jx.Encoder, t *time.Time) {
	if t == nil {
		e.Null()
		return
	}
	encodeTime(e, *t)
}

func encodeOrder(e *jx.Encoder, o *order.Order) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("id", func(e *jx.Encoder) { e.Int64(o.ID) })
		e.Field("user_id", func(e *jx.Encoder) { e.Int64(o.UserID) })
		e.Field("total_amount", func(e *jx.Encoder) { encodeMoney(e, o.TotalAmount) })
		e.Field("status", func(e *jx.Encoder) { e.Int(int(o.Status)) })
		e.Field("status_name", func(e *jx.Encoder) { e.Str(o.Status.String()) })
		e.Field("payment_method", func(e *jx.Encoder) { e.Str(o.PaymentMethod) })
		e.Field("address_id", func(e *jx.Encoder) { e.Int64(o.AddressID) })
		e.Field("created_at", func(e *jx.Encoder) { encodeTime(e, o.CreatedAt) })
		e.Field("paid_at", func(e *jx.Encoder) { encodeOptTime(e, o.PaidAt) })
		e.Field("shipped_at", func(e *jx.Encoder) { encodeOptTime(e, o.ShippedAt) })
		e.Field("completed_at", func(e *jx.Encoder) { encodeOptTime(e, o.CompletedAt) })
	})
}

func encodeItems(e *jx.Encoder, items []order.Item) {
	e.Arr(func(e *jx.Encoder) {
		for _, it := range items {
			e.Obj(func(e *jx.Encoder) {
				e.Field("id", func(e *jx.Encoder) { e.Int64(it.ID) })
				e.Field("product_id", func(e *jx.Encoder) { e.Int64(it.ProductID) })
				e.Field("product_name", func(e *jx.Encoder) { e.Str(it.ProductName) })
				e.Field("quantity", func(e *jx.Encoder) { e.Int(it.Quantity) })
				e.Field("price", func(e *jx.Encoder) { encodeMoney(e, it.Price) })
				e.Field("subtotal", func(e *jx.Encoder) { encodeMoney(e, it.Subtotal) })
			})
		}
	})
}

func encodeLogistics(e *jx.Encoder, l *shipping.Logistics) {
	if l == nil {
		e.Null()
		return
	}
	e.Obj(func(e *jx.Encoder) {
		e.Field("order_id", func(e *jx.Encoder) { e.Int64(l.OrderID) })
		e.Field("status", func(e *jx.Encoder) { e.Str(string(l.Status)) })
		e.Field("express_company", func(e *jx.Encoder) { e.Str(l.ExpressCompany) })
		e.Field("tracking_number", func(e *jx.Encoder) { e.Str(l.TrackingNumber) })
		e.Field("shipped_at", func(e *jx.Encoder) { encodeOptTime(e, l.ShippedAt) })
		e.Field("delivered_at", func(e *jx.Encoder) { encodeOptTime(e, l.DeliveredAt) })
	})
}

func encodeIncome(e *jx.Encoder, in finance.Income) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("id", func(e *jx.Encoder) { e.Int64(in.ID) })
		e.Field("type", func(e *jx.Encoder) { e.Str(string(in.Type)) })
		e.Field("amount", func(e *jx.Encoder) { encodeMoney(e, in.Amount) })
		e.Field("status", func(e *jx.Encoder) { e.Str(string(in.Status)) })
		e.Field("transaction_time", func(e *jx.Encoder) { encodeTime(e, in.TransactionTime) })
	})
}

func encodeDetail(e *jx.Encoder, d *order.Detail) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("order", func(e *jx.Encoder) { encodeOrder(e, &d.Order) })
		e.Field("items", func(e *jx.Encoder) { encodeItems(e, d.Items) })
		e.Field("logistics", func(e *jx.Encoder) { encodeLogistics(e, d.Logistics) })
		e.Field("incomes", func(e *jx.Encoder) {
			e.Arr(func(e *jx.Encoder) {
				for _, in := range d.Incomes {
					encodeIncome(e, in)
				}
			})
		})
		e.Field("after_sales", func(e *jx.Encoder) {
			e.Arr(func(e *jx.Encoder) {
				for _, as := range d.AfterSales {
					e.Obj(func(e *jx.Encoder) {
						e.Field("id", func(e *jx.Encoder) { e.Int64(as.ID) })
						e.Field("type", func(e *jx.Encoder) { e.Str(as.Type) })
						e.Field("reason", func(e *jx.Encoder) { e.Str(as.Reason) })
						e.Field("amount", func(e *jx.Encoder) { encodeMoney(e, as.Amount) })
						e.Field("status", func(e *jx.Encoder) { e.Int(int(as.Status)) })
					})
				}
			})
		})
		e.Field("review", func(e *jx.Encoder) {
			if d.Review == nil {
				e.Null()
				return
			}
			e.Obj(func(e *jx.Encoder) {
				e.Field("rating", func(e *jx.Encoder) { e.Int(int(d.Review.Rating)) })
				e.Field("content", func(e *jx.Encoder) { e.Str(d.Review.Content) })
			})
		})
	})
}

func encodeLogEntry(e *jx.Encoder, le inventory.LogEntry) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("id", func(e *jx.Encoder) { e.Int64(le.ID) })
		e.Field("product_id", func(e *jx.Encoder) { e.Int64(le.ProductID) })
		e.Field("change_type", func(e *jx.Encoder) { e.Str(string(le.ChangeType)) })
		e.Field("quantity", func(e *jx.Encoder) { e.Int(le.Quantity) })
		e.Field("before_stock", func(e *jx.Encoder) { e.Int(le.BeforeStock) })
		e.Field("after_stock", func(e *jx.Encoder) { e.Int(le.AfterStock) })
		e.Field("order_id", func(e *jx.Encoder) {
			if le.OrderID == nil {
				e.Null()
				return
			}
			e.Int64(*le.OrderID)
		})
		e.Field("note", func(e *jx.Encoder) { e.Str(le.Note) })
		e.Field("created_at", func(e *jx.Encoder) { encodeTime(e, le.CreatedAt) })
	})
}

func encodeProduct(e *jx.Encoder, p product.Product) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("id", func(e *jx.Encoder) { e.Int64(p.ID) })
		e.Field("name", func(e *jx.Encoder) { e.Str(p.Name) })
		e.Field("price", func(e *jx.Encoder) { encodeMoney(e, p.Price) })
		e.Field("stock", func(e *jx.Encoder) { e.Int(p.Stock) })
		e.Field("on_sale", func(e *jx.Encoder) { e.Bool(p.Status == product.StatusOnSale) })
	})
}
