package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/atelier-gallery/api/internal/domain"
	"github.com/atelier-gallery/api/internal/platform/auth"
	"github.com/atelier-gallery/api/internal/platform/httpx"
	"github.com/atelier-gallery/api/internal/platform/observability"
	"github.com/atelier-gallery/api/internal/services"
)

const (
	defaultOrderPageSize = 20
	maxOrderPageSize     = 100

	defaultOrderCreateLimit = 10
	defaultQuoteLimit       = 60
	defaultLimitWindow      = time.Minute
)

// OrderHandlers exposes checkout and order management endpoints.
type OrderHandlers struct {
	authn       *auth.Authenticator
	orders      services.OrderService
	idempotency Middleware
	createLimit rateLimiter
	quoteLimit  rateLimiter
}

// OrderOption customises OrderHandlers.
type OrderOption func(*orderHandlerConfig)

type orderHandlerConfig struct {
	idempotency Middleware
	createLimit int
	quoteLimit  int
	window      time.Duration
	clock       func() time.Time
}

// WithOrderIdempotency wraps order creation with the Idempotency-Key middleware. It runs after
// authentication so keys are scoped per user.
func WithOrderIdempotency(mw Middleware) OrderOption {
	return func(cfg *orderHandlerConfig) {
		cfg.idempotency = mw
	}
}

// WithOrderRateLimits overrides the per-window limits for order creation (per user) and quotes
// (per client address). A non-positive value disables that limit.
func WithOrderRateLimits(create, quote int, window time.Duration) OrderOption {
	return func(cfg *orderHandlerConfig) {
		cfg.createLimit = create
		cfg.quoteLimit = quote
		if window > 0 {
			cfg.window = window
		}
	}
}

// WithOrderClock overrides the clock used by the rate limiters.
func WithOrderClock(clock func() time.Time) OrderOption {
	return func(cfg *orderHandlerConfig) {
		if clock != nil {
			cfg.clock = clock
		}
	}
}

// NewOrderHandlers constructs a new OrderHandlers instance.
func NewOrderHandlers(authn *auth.Authenticator, orders services.OrderService, opts ...OrderOption) *OrderHandlers {
	cfg := orderHandlerConfig{
		createLimit: defaultOrderCreateLimit,
		quoteLimit:  defaultQuoteLimit,
		window:      defaultLimitWindow,
		clock:       time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	return &OrderHandlers{
		authn:       authn,
		orders:      orders,
		idempotency: cfg.idempotency,
		createLimit: newSimpleRateLimiter(cfg.createLimit, cfg.window, cfg.clock),
		quoteLimit:  newSimpleRateLimiter(cfg.quoteLimit, cfg.window, cfg.clock),
	}
}

// Routes registers the /orders endpoints.
func (h *OrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.With(rateLimitMiddleware(h.quoteLimit, byClientIP)).Post("/quote", h.quoteOrder)

	r.Group(func(user chi.Router) {
		if h.authn != nil {
			user.Use(h.authn.RequireAuth(), observability.IdentityLoggerMiddleware)
		}
		// replays are answered from the idempotency store before they count against the quota
		create := user
		if h.idempotency != nil {
			create = create.With(h.idempotency)
		}
		create.With(rateLimitMiddleware(h.createLimit, byUser)).Post("/", h.createOrder)
		user.Get("/", h.listOrders)
		user.Get("/{orderID}", h.getOrder)
	})

	r.Group(func(admin chi.Router) {
		if h.authn != nil {
			admin.Use(h.authn.RequireAuth(string(domain.RoleAdmin)), observability.IdentityLoggerMiddleware)
		}
		admin.Get("/stats/overview", h.stats)
		status := admin
		if h.idempotency != nil {
			status = admin.With(h.idempotency)
		}
		status.Put("/{orderID}/status", h.updateStatus)
	})
}

type orderItemRequest struct {
	Artwork  string `json:"artwork"`
	Quantity int    `json:"quantity"`
}

type shippingAddressRequest struct {
	Name    string `json:"name"`
	Street  string `json:"street"`
	City    string `json:"city"`
	State   string `json:"state"`
	ZipCode string `json:"zipCode"`
	Country string `json:"country"`
}

type quoteOrderRequest struct {
	Items []orderItemRequest `json:"items"`
}

type createOrderRequest struct {
	Items           []orderItemRequest     `json:"items"`
	ShippingAddress shippingAddressRequest `json:"shippingAddress"`
	PaymentMethod   string                 `json:"paymentMethod"`
	Notes           string                 `json:"notes"`
}

type updateOrderStatusRequest struct {
	Status        *string `json:"status"`
	PaymentStatus *string `json:"paymentStatus"`
}

func (h *OrderHandlers) quoteOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		writeOrderServiceUnavailable(ctx, w)
		return
	}
	var req quoteOrderRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		writeDecodeError(ctx, w, err)
		return
	}
	breakdown, err := h.orders.Quote(ctx, services.QuoteOrderCommand{Items: toOrderItemInputs(req.Items)})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, quoteResponse{Quote: buildQuotePayload(breakdown)})
}

func (h *OrderHandlers) createOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		writeOrderServiceUnavailable(ctx, w)
		return
	}
	actor, ok := actorFromRequest(r)
	if !ok {
		writeUnauthenticated(ctx, w)
		return
	}

	var req createOrderRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		writeDecodeError(ctx, w, err)
		return
	}

	order, err := h.orders.CreateOrder(ctx, services.CreateOrderCommand{
		Actor: actor,
		Items: toOrderItemInputs(req.Items),
		ShippingAddress: services.ShippingAddressInput{
			Name:    req.ShippingAddress.Name,
			Street:  req.ShippingAddress.Street,
			City:    req.ShippingAddress.City,
			State:   req.ShippingAddress.State,
			ZipCode: req.ShippingAddress.ZipCode,
			Country: req.ShippingAddress.Country,
		},
		PaymentMethod: req.PaymentMethod,
		Notes:         req.Notes,
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	w.Header().Set("Location", "/api/v1/orders/"+order.ID)
	writeJSONResponse(w, http.StatusCreated, orderResponse{
		Order:   buildOrderPayload(order),
		Message: "Order created successfully",
	})
}

func (h *OrderHandlers) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		writeOrderServiceUnavailable(ctx, w)
		return
	}
	actor, ok := actorFromRequest(r)
	if !ok {
		writeUnauthenticated(ctx, w)
		return
	}

	page, err := parsePage(r, defaultOrderPageSize, maxOrderPageSize)
	if err != nil {
		writePaginationError(ctx, w, err)
		return
	}

	query := r.URL.Query()
	listQuery := services.ListOrdersQuery{Actor: actor, Pagination: page}
	for _, raw := range parseFilterValues(query["status"]) {
		listQuery.Status = append(listQuery.Status, domain.OrderStatus(raw))
	}
	for _, raw := range parseFilterValues(query["paymentStatus"]) {
		listQuery.PaymentStatus = append(listQuery.PaymentStatus, domain.PaymentStatus(raw))
	}

	result, err := h.orders.ListOrders(ctx, listQuery)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	items := make([]orderPayload, 0, len(result.Items))
	for _, order := range result.Items {
		items = append(items, buildOrderPayload(order))
	}
	writeJSONResponse(w, http.StatusOK, orderListResponse{
		Items:         items,
		NextPageToken: strings.TrimSpace(result.NextPageToken),
	})
}

func (h *OrderHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		writeOrderServiceUnavailable(ctx, w)
		return
	}
	actor, ok := actorFromRequest(r)
	if !ok {
		writeUnauthenticated(ctx, w)
		return
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order id is required", http.StatusBadRequest))
		return
	}

	order, err := h.orders.GetOrder(ctx, services.GetOrderQuery{Actor: actor, OrderID: orderID})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func (h *OrderHandlers) updateStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		writeOrderServiceUnavailable(ctx, w)
		return
	}
	actor, ok := actorFromRequest(r)
	if !ok {
		writeUnauthenticated(ctx, w)
		return
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order id is required", http.StatusBadRequest))
		return
	}

	var req updateOrderStatusRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		writeDecodeError(ctx, w, err)
		return
	}

	cmd := services.UpdateOrderStatusCommand{Actor: actor, OrderID: orderID}
	if req.Status != nil {
		status := domain.OrderStatus(strings.ToLower(strings.TrimSpace(*req.Status)))
		cmd.Status = &status
	}
	if req.PaymentStatus != nil {
		status := domain.PaymentStatus(strings.ToLower(strings.TrimSpace(*req.PaymentStatus)))
		cmd.PaymentStatus = &status
	}

	order, err := h.orders.UpdateOrderStatus(ctx, cmd)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, orderResponse{
		Order:   buildOrderPayload(order),
		Message: "Order status updated successfully",
	})
}

func (h *OrderHandlers) stats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		writeOrderServiceUnavailable(ctx, w)
		return
	}
	actor, ok := actorFromRequest(r)
	if !ok {
		writeUnauthenticated(ctx, w)
		return
	}

	overview, err := h.orders.Stats(ctx, actor)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	byStatus := make(map[string]int64, len(domain.OrderStatuses))
	for _, status := range domain.OrderStatuses {
		byStatus[string(status)] = overview.ByStatus[status]
	}
	writeJSONResponse(w, http.StatusOK, orderStatsPayload{
		TotalOrders:       overview.TotalOrders,
		StatusBreakdown:   byStatus,
		TotalRevenue:      overview.TotalRevenue,
		AverageOrderValue: overview.AverageOrderValue,
		RecentOrders:      overview.RecentOrders,
		GeneratedAt:       formatTime(overview.GeneratedAt),
	})
}

func toOrderItemInputs(items []orderItemRequest) []services.OrderItemInput {
	out := make([]services.OrderItemInput, 0, len(items))
	for _, item := range items {
		out = append(out, services.OrderItemInput{ArtworkID: item.Artwork, Quantity: item.Quantity})
	}
	return out
}

type orderListResponse struct {
	Items         []orderPayload `json:"items"`
	NextPageToken string         `json:"next_page_token,omitempty"`
}

type orderResponse struct {
	Order   orderPayload `json:"order"`
	Message string       `json:"message,omitempty"`
}

type quoteResponse struct {
	Quote quotePayload `json:"quote"`
}

type quotePayload struct {
	Currency string             `json:"currency"`
	Subtotal int64              `json:"subtotal"`
	Tax      int64              `json:"tax"`
	Shipping int64              `json:"shipping"`
	Total    int64              `json:"total"`
	Items    []quoteLinePayload `json:"items"`
}

type quoteLinePayload struct {
	Artwork   string `json:"artwork"`
	UnitPrice int64  `json:"unitPrice"`
	Quantity  int    `json:"quantity"`
	Subtotal  int64  `json:"subtotal"`
}

type orderItemPayload struct {
	Artwork    string `json:"artwork"`
	Artist     string `json:"artist,omitempty"`
	Title      string `json:"title"`
	Image      string `json:"image,omitempty"`
	ArtistName string `json:"artistName,omitempty"`
	Quantity   int    `json:"quantity"`
	Price      int64  `json:"price"`
	LineTotal  int64  `json:"lineTotal"`
}

type orderTotalsPayload struct {
	Subtotal int64 `json:"subtotal"`
	Tax      int64 `json:"tax"`
	Shipping int64 `json:"shipping"`
	Total    int64 `json:"total"`
}

type addressPayload struct {
	Name    string `json:"name"`
	Street  string `json:"street"`
	City    string `json:"city"`
	State   string `json:"state"`
	ZipCode string `json:"zipCode"`
	Country string `json:"country"`
}

type orderPayload struct {
	ID              string             `json:"id"`
	OrderNumber     string             `json:"orderNumber"`
	User            string             `json:"user"`
	Items           []orderItemPayload `json:"items"`
	Currency        string             `json:"currency"`
	Totals          orderTotalsPayload `json:"totals"`
	ShippingAddress addressPayload     `json:"shippingAddress"`
	PaymentMethod   string             `json:"paymentMethod"`
	Notes           string             `json:"notes,omitempty"`
	Status          string             `json:"status"`
	PaymentStatus   string             `json:"paymentStatus"`
	CreatedAt       string             `json:"createdAt"`
	UpdatedAt       string             `json:"updatedAt,omitempty"`
}

type orderStatsPayload struct {
	TotalOrders       int64            `json:"totalOrders"`
	StatusBreakdown   map[string]int64 `json:"statusBreakdown"`
	TotalRevenue      int64            `json:"totalRevenue"`
	AverageOrderValue int64            `json:"averageOrderValue"`
	RecentOrders      int64            `json:"recentOrders"`
	GeneratedAt       string           `json:"generatedAt"`
}

func buildQuotePayload(breakdown services.PricingBreakdown) quotePayload {
	lines := make([]quoteLinePayload, 0, len(breakdown.Items))
	for _, item := range breakdown.Items {
		lines = append(lines, quoteLinePayload{
			Artwork:   item.ItemID,
			UnitPrice: item.UnitPrice,
			Quantity:  item.Quantity,
			Subtotal:  item.Subtotal,
		})
	}
	return quotePayload{
		Currency: breakdown.Currency,
		Subtotal: breakdown.Subtotal,
		Tax:      breakdown.Tax,
		Shipping: breakdown.Shipping,
		Total:    breakdown.Total,
		Items:    lines,
	}
}

func buildOrderPayload(order services.Order) orderPayload {
	items := make([]orderItemPayload, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, orderItemPayload{
			Artwork:    item.ArtworkID,
			Artist:     item.ArtistID,
			Title:      item.Title,
			Image:      item.ImageURL,
			ArtistName: item.ArtistName,
			Quantity:   item.Quantity,
			Price:      item.UnitPrice,
			LineTotal:  item.LineTotal,
		})
	}
	addr := order.ShippingAddress
	return orderPayload{
		ID:          order.ID,
		OrderNumber: order.OrderNumber,
		User:        order.UserID,
		Items:       items,
		Currency:    order.Currency,
		Totals: orderTotalsPayload{
			Subtotal: order.Totals.Subtotal,
			Tax:      order.Totals.Tax,
			Shipping: order.Totals.Shipping,
			Total:    order.Totals.Total,
		},
		ShippingAddress: addressPayload{
			Name:    addr.Name,
			Street:  addr.Street,
			City:    addr.City,
			State:   addr.State,
			ZipCode: addr.ZipCode,
			Country: addr.Country,
		},
		PaymentMethod: string(order.PaymentMethod),
		Notes:         order.Notes,
		Status:        string(order.Status),
		PaymentStatus: string(order.PaymentStatus),
		CreatedAt:     formatTime(order.CreatedAt),
		UpdatedAt:     formatTime(order.UpdatedAt),
	}
}

func writeOrderServiceUnavailable(ctx context.Context, w http.ResponseWriter) {
	httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
}

func writeDecodeError(ctx context.Context, w http.ResponseWriter, err error) {
	var httpErr httpx.Error
	if errors.As(err, &httpErr) {
		httpx.WriteError(ctx, w, httpErr)
		return
	}
	httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON body", http.StatusBadRequest))
}

func writeOrderError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	var unavailable *services.ArtworkUnavailableError
	switch {
	case errors.As(err, &unavailable):
		httpx.WriteError(ctx, w, httpx.NewError("artwork_unavailable", "one or more artworks are not available", http.StatusConflict).
			WithDetails(map[string]any{"artworks": unavailable.ArtworkIDs()}))
	case errors.Is(err, services.ErrOrderArtworkUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("artwork_unavailable", "one or more artworks are not available", http.StatusConflict))
	case errors.Is(err, services.ErrOrderInvalidInput):
		httpx.WriteError(ctx, w, validationError("invalid_request", err))
	case errors.Is(err, services.ErrOrderNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order not found", http.StatusNotFound))
	case errors.Is(err, services.ErrOrderPermissionDenied):
		httpx.WriteError(ctx, w, httpx.NewError("forbidden", "administrator role required", http.StatusForbidden))
	case errors.Is(err, services.ErrOrderConflict):
		httpx.WriteError(ctx, w, httpx.NewError("order_conflict", "order was modified concurrently, retry", http.StatusConflict))
	case errors.Is(err, services.ErrOrderNumberExhausted), errors.Is(err, services.ErrOrderUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("order_unavailable", "orders are temporarily unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("order_error", "failed to process order request", http.StatusInternalServerError))
	}
}
