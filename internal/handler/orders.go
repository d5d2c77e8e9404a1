package handler

import (
	"net/http"

	"github.com/go-faster/jx"

	"github.com/xenking/shopdesk/internal/domain/order"
)

func (h *Handler) listProducts(w http.ResponseWriter, r *http.Request) error {
	products, err := h.products.List(r.Context())
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.Arr(func(e *jx.Encoder) {
			for _, p := range products {
				encodeProduct(e, p)
			}
		})
	})
}

func pageParams(r *http.Request) (page, size int, err error) {
	if page, err = queryInt(r, "page", 1); err != nil {
		return 0, 0, err
	}
	if size, err = queryInt(r, "size", order.DefaultPageSize); err != nil {
		return 0, 0, err
	}
	return page, size, nil
}

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) error {
	page, size, err := pageParams(r)
	if err != nil {
		return err
	}
	ctx := r.Context()
	total, err := h.orders.Count(ctx)
	if err != nil {
		return err
	}
	list := h.orders.OrdersWithItems(ctx, page, size)

	return writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("total", func(e *jx.Encoder) { e.Int64(total) })
			e.Field("orders", func(e *jx.Encoder) {
				e.Arr(func(e *jx.Encoder) {
					for _, o := range list {
						e.Obj(func(e *jx.Encoder) {
							e.Field("order", func(e *jx.Encoder) { encodeOrder(e, &o.Order) })
							e.Field("items", func(e *jx.Encoder) { encodeItems(e, o.Items) })
						})
					}
				})
			})
		})
	})
}

func (h *Handler) listUserOrders(w http.ResponseWriter, r *http.Request) error {
	userID, err := pathID(r)
	if err != nil {
		return err
	}
	page, size, err := pageParams(r)
	if err != nil {
		return err
	}
	orders, err := h.orders.ListByUser(r.Context(), userID, page, size)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.Arr(func(e *jx.Encoder) {
			for i := range orders {
				encodeOrder(e, &orders[i])
			}
		})
	})
}

// decodeItem reads one order line. Price and subtotal are optional.
func decodeItem(d *jx.Decoder) (order.Item, error) {
	var it order.Item
	err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		var err error
		switch string(key) {
		case "product_id":
			it.ProductID, err = d.Int64()
		case "quantity":
			it.Quantity, err = d.Int()
		case "price":
			it.Price, err = decodeDecimal(d)
		case "subtotal":
			it.Subtotal, err = decodeDecimal(d)
		default:
			err = d.Skip()
		}
		return err
	})
	return it, err
}

func (h *Handler) createOrder(w http.ResponseWriter, r *http.Request) error {
	var (
		o     order.Order
		items []order.Item
	)
	err := readObject(r, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "user_id":
			o.UserID, err = d.Int64()
		case "address_id":
			o.AddressID, err = d.Int64()
		case "payment_method":
			o.PaymentMethod, err = d.Str()
		case "status":
			o.Status, err = decodeStatus(d)
		case "total_amount":
			o.TotalAmount, err = decodeDecimal(d)
		case "items":
			err = d.Arr(func(d *jx.Decoder) error {
				it, err := decodeItem(d)
				if err != nil {
					return err
				}
				items = append(items, it)
				return nil
			})
		default:
			err = d.Skip()
		}
		return err
	})
	if err != nil {
		return err
	}
	if o.UserID <= 0 {
		return invalid("user_id must be a positive integer")
	}

	if err := h.orders.CreateOrder(r.Context(), &o, items); err != nil {
		return err
	}
	return writeJSON(w, http.StatusCreated, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("order", func(e *jx.Encoder) { encodeOrder(e, &o) })
			e.Field("items", func(e *jx.Encoder) { encodeItems(e, items) })
		})
	})
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) error {
	id, err := pathID(r)
	if err != nil {
		return err
	}
	detail := h.orders.OrderDetail(r.Context(), id)
	if detail == nil {
		return errNoOrder
	}
	return writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeDetail(e, detail) })
}

func (h *Handler) updateOrder(w http.ResponseWriter, r *http.Request) error {
	id, err := pathID(r)
	if err != nil {
		return err
	}
	var patch order.Patch
	err = readObject(r, func(d *jx.Decoder, key string) error {
		switch key {
		case "address_id":
			v, err := d.Int64()
			patch.AddressID = &v
			return err
		case "payment_method":
			v, err := d.Str()
			patch.PaymentMethod = &v
			return err
		default:
			return d.Skip()
		}
	})
	if err != nil {
		return err
	}

	if err := h.orders.UpdateOrder(r.Context(), id, patch); err != nil {
		return err
	}
	return h.getOrder(w, r)
}

func (h *Handler) deleteOrder(w http.ResponseWriter, r *http.Request) error {
	id, err := pathID(r)
	if err != nil {
		return err
	}
	if err := h.orders.DeleteOrder(r.Context(), id); err != nil {
		return err
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

func (h *Handler) updateOrderStatus(w http.ResponseWriter, r *http.Request) error {
	id, err := pathID(r)
	if err != nil {
		return err
	}
	var (
		to  order.Status
		set bool
	)
	err = readObject(r, func(d *jx.Decoder, key string) error {
		if key != "status" {
			return d.Skip()
		}
		var err error
		to, err = decodeStatus(d)
		set = err == nil
		return err
	})
	if err != nil {
		return err
	}
	if !set {
		return invalid("status required")
	}

	if err := h.orders.UpdateOrderStatus(r.Context(), id, to); err != nil {
		return err
	}
	return h.getOrder(w, r)
}

func (h *Handler) orderTotal(w http.ResponseWriter, r *http.Request) error {
	id, err := pathID(r)
	if err != nil {
		return err
	}
	total, err := h.orders.CalculateOrderTotal(r.Context(), id)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("order_id", func(e *jx.Encoder) { e.Int64(id) })
			e.Field("total", func(e *jx.Encoder) { encodeMoney(e, total) })
		})
	})
}
