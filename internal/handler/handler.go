// Package handler exposes the order engine and its ledgers as a JSON API
// under /api.
package handler

import (
	"context"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/xenking/shopdesk/internal/domain/auth"
	"github.com/xenking/shopdesk/internal/domain/finance"
	"github.com/xenking/shopdesk/internal/domain/inventory"
	"github.com/xenking/shopdesk/internal/domain/order"
	"github.com/xenking/shopdesk/internal/domain/product"
	"github.com/xenking/shopdesk/internal/domain/shipping"
)

// Orders is the order engine as seen by the HTTP layer.
type Orders interface {
	CreateOrder(ctx context.Context, o *order.Order, items []order.Item) error
	UpdateOrder(ctx context.Context, id int64, patch order.Patch) error
	DeleteOrder(ctx context.Context, id int64) error
	UpdateOrderStatus(ctx context.Context, id int64, to order.Status) error
	CalculateOrderTotal(ctx context.Context, id int64) (decimal.Decimal, error)
	ListByUser(ctx context.Context, userID int64, page, size int) ([]order.Order, error)
	Count(ctx context.Context) (int64, error)
	OrderDetail(ctx context.Context, id int64) *order.Detail
	OrdersWithItems(ctx context.Context, page, size int) []order.WithItems
	RefundOrder(ctx context.Context, id int64, amount decimal.Decimal) (*finance.Income, error)
}

// Stock is the inventory ledger as seen by the HTTP layer.
type Stock interface {
	Purchase(ctx context.Context, productID int64, qty int, note string) (inventory.LogEntry, error)
	Adjust(ctx context.Context, productID int64, delta int, note string) (inventory.LogEntry, error)
	Stocktake(ctx context.Context, productID int64, counted int, note string) (inventory.LogEntry, error)
	History(ctx context.Context, productID int64) ([]inventory.LogEntry, error)
	Totals(ctx context.Context, productID int64) (inventory.Totals, error)
	LowStock(ctx context.Context, threshold int) ([]inventory.StockLevel, error)
}

// Finance is the finance ledger as seen by the HTTP layer.
type Finance interface {
	Post(ctx context.Context, id int64) error
	Summary(ctx context.Context) (finance.Summary, error)
}

// Shipping moves the logistics record of an order whose status allows it.
type Shipping interface {
	ShipOrder(ctx context.Context, orderID int64, company, tracking string) (*shipping.Logistics, error)
	DeliverOrder(ctx context.Context, orderID int64) (*shipping.Logistics, error)
}

// Authenticator resolves a raw API key.
type Authenticator interface {
	Verify(ctx context.Context, key string) (*auth.APIKeyInfo, error)
}

// Config holds non-dependency configuration for the Handler.
type Config struct {
	// LowStockThreshold is used by the low-stock report when the request
	// does not carry one.
	LowStockThreshold int
}

// Deps holds the collaborators of the Handler.
type Deps struct {
	Tx       order.Transactor
	Orders   Orders
	Products product.Repository
	Stock    Stock
	Finance  Finance
	Shipping Shipping
	Auth     Authenticator
}

// Handler serves the /api routes.
type Handler struct {
	tx       order.Transactor
	orders   Orders
	products product.Repository
	stock    Stock
	finance  Finance
	shipping Shipping
	auth     Authenticator

	lowStockThreshold int
}

// New creates a Handler.
func New(cfg Config, deps Deps) *Handler {
	return &Handler{
		tx:                deps.Tx,
		orders:            deps.Orders,
		products:          deps.Products,
		stock:             deps.Stock,
		finance:           deps.Finance,
		shipping:          deps.Shipping,
		auth:              deps.Auth,
		lowStockThreshold: cfg.LowStockThreshold,
	}
}

// Register adds every /api route to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	read, write := auth.ScopeOrdersRead, auth.ScopeOrdersWrite

	mux.Handle("GET /api/products", h.route(read, h.listProducts))

	mux.Handle("GET /api/orders", h.route(read, h.listOrders))
	mux.Handle("POST /api/orders", h.route(write, h.createOrder))
	mux.Handle("GET /api/orders/{id}", h.route(read, h.getOrder))
	mux.Handle("PATCH /api/orders/{id}", h.route(write, h.updateOrder))
	mux.Handle("DELETE /api/orders/{id}", h.route(write, h.deleteOrder))
	mux.Handle("POST /api/orders/{id}/status", h.route(write, h.updateOrderStatus))
	mux.Handle("GET /api/orders/{id}/total", h.route(read, h.orderTotal))
	mux.Handle("GET /api/users/{id}/orders", h.route(read, h.listUserOrders))

	mux.Handle("POST /api/orders/{id}/shipment", h.route(auth.ScopeShippingWrite, h.shipOrder))
	mux.Handle("POST /api/orders/{id}/delivery", h.route(auth.ScopeShippingWrite, h.deliverOrder))

	mux.Handle("GET /api/products/{id}/inventory", h.route(read, h.inventoryHistory))
	mux.Handle("GET /api/inventory/low-stock", h.route(read, h.lowStock))
	mux.Handle("POST /api/products/{id}/purchases", h.route(auth.ScopeInventoryWrite, h.purchase))
	mux.Handle("POST /api/products/{id}/adjustments", h.route(auth.ScopeInventoryWrite, h.adjust))
	mux.Handle("POST /api/products/{id}/stocktakes", h.route(auth.ScopeInventoryWrite, h.stocktake))

	mux.Handle("GET /api/finance/summary", h.route(read, h.financeSummary))
	mux.Handle("POST /api/orders/{id}/refunds", h.route(auth.ScopeFinanceWrite, h.refundOrder))
	mux.Handle("POST /api/incomes/{id}/post", h.route(auth.ScopeFinanceWrite, h.postIncome))
}

// handlerFunc is an endpoint that reports failures by returning an error.
type handlerFunc func(w http.ResponseWriter, r *http.Request) error

// route authenticates the request, checks scope and maps returned errors
// to responses.
func (h *Handler) route(scope auth.Scope, fn handlerFunc) http.Handler {
	return h.authenticate(scope, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := fn(w, r); err != nil {
			writeErr(w, r, err)
		}
	}))
}
