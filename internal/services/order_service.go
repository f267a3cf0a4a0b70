package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	domain "github.com/atelier-gallery/api/internal/domain"
	"github.com/atelier-gallery/api/internal/platform/textutil"
	"github.com/atelier-gallery/api/internal/repositories"
)

const (
	orderEventCreated       = "order.created"
	orderEventStatusChanged = "order.status_changed"

	orderIDPrefix = "ord_"

	maxOrderLines            = 50
	maxOrderNotesLength      = 500
	defaultOrderNumberTries  = 3
	recentOrdersWindow       = 7 * 24 * time.Hour
	defaultOrderListPageSize = 20
	maxOrderListPageSize     = 100
)

var (
	// ErrOrderInvalidInput signals the caller provided invalid data.
	ErrOrderInvalidInput = errors.New("order: invalid input")
	// ErrOrderNotFound indicates the order could not be located or is not visible to the caller.
	ErrOrderNotFound = errors.New("order: not found")
	// ErrOrderArtworkUnavailable indicates a referenced artwork is missing or not for sale.
	ErrOrderArtworkUnavailable = errors.New("order: artwork unavailable")
	// ErrOrderPermissionDenied is returned for admin-only operations invoked by other callers.
	ErrOrderPermissionDenied = errors.New("order: permission denied")
	// ErrOrderConflict indicates a concurrent write conflict.
	ErrOrderConflict = errors.New("order: conflict")
	// ErrOrderNumberExhausted indicates every order number attempt collided.
	ErrOrderNumberExhausted = errors.New("order: order number generation exhausted")
	// ErrOrderUnavailable indicates the backing store is temporarily unavailable.
	ErrOrderUnavailable = errors.New("order: repository unavailable")
)

// ArtworkUnavailableError lists the artworks that blocked an order.
type ArtworkUnavailableError struct {
	Missing     []string
	Unavailable []string
}

func (e *ArtworkUnavailableError) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, "missing "+strings.Join(e.Missing, ", "))
	}
	if len(e.Unavailable) > 0 {
		parts = append(parts, "unavailable "+strings.Join(e.Unavailable, ", "))
	}
	return fmt.Sprintf("%v: %s", ErrOrderArtworkUnavailable, strings.Join(parts, "; "))
}

func (e *ArtworkUnavailableError) Unwrap() error { return ErrOrderArtworkUnavailable }

// ArtworkIDs returns every blocking artwork id.
func (e *ArtworkUnavailableError) ArtworkIDs() []string {
	return append(append([]string(nil), e.Missing...), e.Unavailable...)
}

// OrderServiceDeps bundles collaborators required to construct the order service.
type OrderServiceDeps struct {
	Orders      repositories.OrderRepository
	Artworks    repositories.ArtworkRepository
	Artists     repositories.ArtistRepository
	Counters    CounterService
	Pricing     *PricingEngine
	Attributor  *SalesAttributor
	Events      OrderEventPublisher
	Meter       metric.Meter
	Clock       func() time.Time
	IDGenerator func() string
	// OrderNumberAttempts bounds regeneration after an order number collision.
	OrderNumberAttempts int
	Logger              func(ctx context.Context, event string, fields map[string]any)
}

type orderService struct {
	orders     repositories.OrderRepository
	artworks   repositories.ArtworkRepository
	artists    repositories.ArtistRepository
	counters   CounterService
	pricing    *PricingEngine
	attributor *SalesAttributor
	events     OrderEventPublisher
	clock      func() time.Time
	newID      func() string
	attempts   int
	logger     func(context.Context, string, map[string]any)

	created          metric.Int64Counter
	createdEnabled   bool
	conflicts        metric.Int64Counter
	conflictsEnabled bool
}

// NewOrderService wires dependencies into a concrete OrderService implementation.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	if deps.Orders == nil {
		return nil, errors.New("order service: order repository is required")
	}
	if deps.Artworks == nil {
		return nil, errors.New("order service: artwork repository is required")
	}
	if deps.Artists == nil {
		return nil, errors.New("order service: artist repository is required")
	}
	if deps.Counters == nil {
		return nil, errors.New("order service: counter service is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string {
			return ulid.Make().String()
		}
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	pricing := deps.Pricing
	if pricing == nil {
		pricing = NewPricingEngine(DefaultCurrency)
	}
	attempts := deps.OrderNumberAttempts
	if attempts <= 0 {
		attempts = defaultOrderNumberTries
	}
	meter := deps.Meter
	if meter == nil {
		meter = otel.GetMeterProvider().Meter(metricNamespace)
	}

	attributor := deps.Attributor
	if attributor == nil {
		var err error
		attributor, err = NewSalesAttributor(SalesAttributorDeps{
			Artworks: deps.Artworks,
			Artists:  deps.Artists,
			Meter:    meter,
			Logger:   logger,
		})
		if err != nil {
			return nil, err
		}
	}

	created, createdErr := meter.Int64Counter(
		"orders.created",
		metric.WithDescription("Orders successfully created"),
	)
	conflicts, conflictsErr := meter.Int64Counter(
		"orders.number_conflicts",
		metric.WithDescription("Order number collisions resolved by regeneration"),
	)

	return &orderService{
		orders:     deps.Orders,
		artworks:   deps.Artworks,
		artists:    deps.Artists,
		counters:   deps.Counters,
		pricing:    pricing,
		attributor: attributor,
		events:     deps.Events,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:            idGen,
		attempts:         attempts,
		logger:           logger,
		created:          created,
		createdEnabled:   createdErr == nil,
		conflicts:        conflicts,
		conflictsEnabled: conflictsErr == nil,
	}, nil
}

func (s *orderService) Quote(ctx context.Context, cmd QuoteOrderCommand) (PricingBreakdown, error) {
	v := newViolations(ErrOrderInvalidInput)
	items := normalizeOrderItems(cmd.Items, v)
	if err := v.err(); err != nil {
		return PricingBreakdown{}, err
	}
	artworks, err := s.resolveArtworks(ctx, items)
	if err != nil {
		return PricingBreakdown{}, err
	}
	return s.price(items, artworks)
}

func (s *orderService) CreateOrder(ctx context.Context, cmd CreateOrderCommand) (Order, error) {
	userID := strings.TrimSpace(cmd.Actor.ID)
	if userID == "" {
		return Order{}, fmt.Errorf("%w: user id is required", ErrOrderInvalidInput)
	}

	v := newViolations(ErrOrderInvalidInput)
	items := normalizeOrderItems(cmd.Items, v)
	address := normalizeShippingAddress(cmd.ShippingAddress, v)
	notes := textutil.PlainText(cmd.Notes)
	if textutil.RuneLen(notes) > maxOrderNotesLength {
		v.add("notes", fmt.Sprintf("must be at most %d characters", maxOrderNotesLength))
	}
	method := domain.PaymentMethod(strings.ToLower(strings.TrimSpace(cmd.PaymentMethod)))
	if method == "" {
		method = domain.PaymentMethodCreditCard
	} else if !slices.Contains(domain.PaymentMethods, method) {
		v.add("paymentMethod", "is not a supported payment method")
	}
	if err := v.err(); err != nil {
		return Order{}, err
	}

	artworks, err := s.resolveArtworks(ctx, items)
	if err != nil {
		return Order{}, err
	}
	breakdown, err := s.price(items, artworks)
	if err != nil {
		return Order{}, err
	}

	now := s.now()
	order := Order{
		ID:              orderIDPrefix + s.newID(),
		UserID:          userID,
		Items:           s.snapshotLines(ctx, items, artworks),
		Currency:        breakdown.Currency,
		Totals:          breakdown.Totals(),
		ShippingAddress: address,
		PaymentMethod:   method,
		Notes:           notes,
		Status:          domain.OrderStatusPending,
		PaymentStatus:   domain.PaymentStatusPending,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := s.insertWithNumber(ctx, &order); err != nil {
		return Order{}, err
	}

	if s.createdEnabled {
		s.created.Add(ctx, 1)
	}
	s.logger(ctx, "order.created", map[string]any{
		"orderId":     order.ID,
		"orderNumber": order.OrderNumber,
		"userId":      order.UserID,
		"total":       order.Totals.Total,
		"lines":       len(order.Items),
	})
	s.publishEvent(ctx, OrderEvent{
		Type:                 orderEventCreated,
		OrderID:              order.ID,
		OrderNumber:          order.OrderNumber,
		UserID:               order.UserID,
		CurrentStatus:        string(order.Status),
		CurrentPaymentStatus: string(order.PaymentStatus),
		Total:                order.Totals.Total,
		ActorID:              userID,
		OccurredAt:           now,
	})

	return order, nil
}

// insertWithNumber assigns a fresh order number and inserts, regenerating the number when the
// store reports a uniqueness conflict.
func (s *orderService) insertWithNumber(ctx context.Context, order *Order) error {
	var lastErr error
	for attempt := 1; attempt <= s.attempts; attempt++ {
		number, err := s.counters.NextOrderNumber(ctx)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrOrderUnavailable, err)
		}
		order.OrderNumber = number

		err = s.orders.Insert(ctx, *order)
		if err == nil {
			return nil
		}
		if !repositories.IsConflict(err) {
			return s.mapRepositoryError(err)
		}

		lastErr = err
		if s.conflictsEnabled {
			s.conflicts.Add(ctx, 1)
		}
		s.logger(ctx, "order.number_conflict", map[string]any{
			"orderId":     order.ID,
			"orderNumber": number,
			"attempt":     attempt,
		})
	}
	order.OrderNumber = ""
	return fmt.Errorf("%w after %d attempts: %v", ErrOrderNumberExhausted, s.attempts, lastErr)
}

func (s *orderService) ListOrders(ctx context.Context, query ListOrdersQuery) (domain.CursorPage[Order], error) {
	if strings.TrimSpace(query.Actor.ID) == "" {
		return domain.CursorPage[Order]{}, fmt.Errorf("%w: user id is required", ErrOrderInvalidInput)
	}

	v := newViolations(ErrOrderInvalidInput)
	for _, status := range query.Status {
		if !slices.Contains(domain.OrderStatuses, status) {
			v.add("status", fmt.Sprintf("%q is not a valid status", status))
		}
	}
	for _, status := range query.PaymentStatus {
		if !slices.Contains(domain.PaymentStatuses, status) {
			v.add("paymentStatus", fmt.Sprintf("%q is not a valid payment status", status))
		}
	}
	if err := v.err(); err != nil {
		return domain.CursorPage[Order]{}, err
	}

	filter := repositories.OrderListFilter{
		Status:        slices.Clone(query.Status),
		PaymentStatus: slices.Clone(query.PaymentStatus),
		Pagination: Pagination{
			PageSize:  clampPageSize(query.Pagination.PageSize, defaultOrderListPageSize, maxOrderListPageSize),
			PageToken: strings.TrimSpace(query.Pagination.PageToken),
		},
	}
	if !query.Actor.Admin {
		filter.UserID = strings.TrimSpace(query.Actor.ID)
	}

	page, err := s.orders.List(ctx, filter)
	if err != nil {
		return domain.CursorPage[Order]{}, s.mapRepositoryError(err)
	}
	return page, nil
}

func (s *orderService) GetOrder(ctx context.Context, query GetOrderQuery) (Order, error) {
	orderID := strings.TrimSpace(query.OrderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}
	if !canView(query.Actor, order) {
		// indistinguishable from a missing order
		return Order{}, fmt.Errorf("%w: %s", ErrOrderNotFound, orderID)
	}
	return order, nil
}

func (s *orderService) UpdateOrderStatus(ctx context.Context, cmd UpdateOrderStatusCommand) (Order, error) {
	if !cmd.Actor.Admin {
		return Order{}, ErrOrderPermissionDenied
	}
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}

	v := newViolations(ErrOrderInvalidInput)
	if cmd.Status == nil && cmd.PaymentStatus == nil {
		v.add("status", "status or paymentStatus is required")
	}
	if cmd.Status != nil && !slices.Contains(domain.OrderStatuses, *cmd.Status) {
		v.add("status", fmt.Sprintf("%q is not a valid status", *cmd.Status))
	}
	if cmd.PaymentStatus != nil && !slices.Contains(domain.PaymentStatuses, *cmd.PaymentStatus) {
		v.add("paymentStatus", fmt.Sprintf("%q is not a valid payment status", *cmd.PaymentStatus))
	}
	if err := v.err(); err != nil {
		return Order{}, err
	}

	now := s.now()
	var (
		previous  Order
		attribute bool
	)
	// Any status/payment combination may be set; the store may re-run fn on contention so
	// everything it captures is reassigned on each call.
	updated, err := s.orders.Mutate(ctx, orderID, func(current Order) (Order, error) {
		previous = current
		next := current
		if cmd.Status != nil {
			next.Status = *cmd.Status
		}
		if cmd.PaymentStatus != nil {
			next.PaymentStatus = *cmd.PaymentStatus
		}
		attribute = ShouldAttributeSales(current, next)
		if attribute {
			stamp := now
			next.SalesAttributedAt = &stamp
		}
		next.UpdatedAt = now
		return next, nil
	})
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}

	if attribute {
		s.attributor.Attribute(ctx, updated)
	}

	s.logger(ctx, "order.status_updated", map[string]any{
		"orderId":               updated.ID,
		"actorId":               cmd.Actor.ID,
		"previousStatus":        string(previous.Status),
		"status":                string(updated.Status),
		"previousPaymentStatus": string(previous.PaymentStatus),
		"paymentStatus":         string(updated.PaymentStatus),
		"attributed":            attribute,
	})
	if previous.Status != updated.Status || previous.PaymentStatus != updated.PaymentStatus {
		s.publishEvent(ctx, OrderEvent{
			Type:                  orderEventStatusChanged,
			OrderID:               updated.ID,
			OrderNumber:           updated.OrderNumber,
			UserID:                updated.UserID,
			PreviousStatus:        string(previous.Status),
			CurrentStatus:         string(updated.Status),
			PreviousPaymentStatus: string(previous.PaymentStatus),
			CurrentPaymentStatus:  string(updated.PaymentStatus),
			Total:                 updated.Totals.Total,
			ActorID:               cmd.Actor.ID,
			OccurredAt:            now,
		})
	}

	return updated, nil
}

func (s *orderService) Stats(ctx context.Context, actor Actor) (OrderStatsOverview, error) {
	if !actor.Admin {
		return OrderStatsOverview{}, ErrOrderPermissionDenied
	}
	now := s.now()
	raw, err := s.orders.Stats(ctx, now.Add(-recentOrdersWindow))
	if err != nil {
		return OrderStatsOverview{}, s.mapRepositoryError(err)
	}

	byStatus := make(map[OrderStatus]int64, len(domain.OrderStatuses))
	for _, status := range domain.OrderStatuses {
		byStatus[status] = raw.ByStatus[status]
	}
	// averaged over every order, whatever its status
	var average int64
	if raw.Total > 0 {
		average = (raw.TotalValue + raw.Total/2) / raw.Total
	}
	return OrderStatsOverview{
		TotalOrders:       raw.Total,
		ByStatus:          byStatus,
		TotalRevenue:      raw.PaidRevenue,
		AverageOrderValue: average,
		RecentOrders:      raw.CreatedSince,
		GeneratedAt:       now,
	}, nil
}

// resolveArtworks loads every distinct artwork and rejects the whole request if any is missing
// or not available for sale.
func (s *orderService) resolveArtworks(ctx context.Context, items []OrderItemInput) (map[string]Artwork, error) {
	ids := make([]string, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.ArtworkID)
	}

	found, err := s.artworks.FindByIDs(ctx, ids)
	if err != nil {
		return nil, s.mapRepositoryError(err)
	}

	var blocked ArtworkUnavailableError
	for _, id := range ids {
		artwork, ok := found[id]
		switch {
		case !ok:
			blocked.Missing = append(blocked.Missing, id)
		case !artwork.IsAvailable:
			blocked.Unavailable = append(blocked.Unavailable, id)
		}
	}
	if len(blocked.Missing) > 0 || len(blocked.Unavailable) > 0 {
		return nil, &blocked
	}
	return found, nil
}

func (s *orderService) price(items []OrderItemInput, artworks map[string]Artwork) (PricingBreakdown, error) {
	lines := make([]PricingLine, 0, len(items))
	for _, item := range items {
		artwork := artworks[item.ArtworkID]
		if cur := strings.TrimSpace(artwork.Currency); cur != "" && !strings.EqualFold(cur, s.pricing.currency) {
			return PricingBreakdown{}, fmt.Errorf("%w: artwork %s is priced in %s", ErrOrderInvalidInput, artwork.ID, cur)
		}
		lines = append(lines, PricingLine{
			ItemID:    item.ArtworkID,
			UnitPrice: artwork.Price,
			Quantity:  item.Quantity,
		})
	}
	breakdown, err := s.pricing.Calculate(lines)
	if err != nil {
		return PricingBreakdown{}, fmt.Errorf("%w: %v", ErrOrderInvalidInput, err)
	}
	return breakdown, nil
}

// snapshotLines copies price and display data so later catalog edits never reach the order.
func (s *orderService) snapshotLines(ctx context.Context, items []OrderItemInput, artworks map[string]Artwork) []OrderLineItem {
	artistIDs := make([]string, 0, len(items))
	for _, item := range items {
		artistIDs = append(artistIDs, artworks[item.ArtworkID].ArtistID)
	}
	artists, err := s.artists.FindByIDs(ctx, uniqueNonEmpty(artistIDs))
	if err != nil {
		s.logger(ctx, "order.artist_snapshot_failed", map[string]any{"error": err.Error()})
		artists = nil
	}

	lines := make([]OrderLineItem, 0, len(items))
	for _, item := range items {
		artwork := artworks[item.ArtworkID]
		line := OrderLineItem{
			ArtworkID: artwork.ID,
			ArtistID:  artwork.ArtistID,
			Title:     artwork.Title,
			Quantity:  item.Quantity,
			UnitPrice: artwork.Price,
			LineTotal: artwork.Price * int64(item.Quantity),
		}
		if img, ok := artwork.PrimaryImage(); ok {
			line.ImageURL = img.URL
		}
		if artist, ok := artists[artwork.ArtistID]; ok {
			line.ArtistName = artist.Name
		}
		lines = append(lines, line)
	}
	return lines
}

func (s *orderService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}

	if repositories.IsInvalidInput(err) {
		return fmt.Errorf("%w: %v", ErrOrderInvalidInput, err)
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrOrderNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrOrderConflict, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("%w: %v", ErrOrderUnavailable, err)
		}
	}

	return err
}

func (s *orderService) now() time.Time {
	return s.clock()
}

func (s *orderService) publishEvent(ctx context.Context, event OrderEvent) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishOrderEvent(ctx, event); err != nil {
		s.logger(ctx, "order.event.publish.failed", map[string]any{
			"type":  event.Type,
			"order": event.OrderID,
			"error": err.Error(),
		})
	}
}

func canView(actor Actor, order Order) bool {
	if actor.Admin {
		return true
	}
	id := strings.TrimSpace(actor.ID)
	return id != "" && id == order.UserID
}

// normalizeOrderItems trims ids, checks quantities and merges repeated artworks by summing
// their quantities, keeping first-seen order.
func normalizeOrderItems(items []OrderItemInput, v *violations) []OrderItemInput {
	if len(items) == 0 {
		v.add("items", "must contain at least one item")
		return nil
	}

	merged := make([]OrderItemInput, 0, len(items))
	index := make(map[string]int, len(items))
	for i, item := range items {
		id := strings.TrimSpace(item.ArtworkID)
		if id == "" {
			v.add(fmt.Sprintf("items[%d].artwork", i), "is required")
			continue
		}
		if item.Quantity < 1 {
			v.add(fmt.Sprintf("items[%d].quantity", i), "must be at least 1")
			continue
		}
		if pos, ok := index[id]; ok {
			merged[pos].Quantity += item.Quantity
			continue
		}
		index[id] = len(merged)
		merged = append(merged, OrderItemInput{ArtworkID: id, Quantity: item.Quantity})
	}
	if len(merged) > maxOrderLines {
		v.add("items", fmt.Sprintf("must contain at most %d distinct artworks", maxOrderLines))
	}
	return merged
}

func normalizeShippingAddress(in ShippingAddressInput, v *violations) ShippingAddress {
	addr := ShippingAddress{
		Name:    textutil.NormalizeText(in.Name),
		Street:  textutil.NormalizeText(in.Street),
		City:    textutil.NormalizeText(in.City),
		State:   textutil.NormalizeText(in.State),
		ZipCode: textutil.NormalizeText(in.ZipCode),
		Country: textutil.NormalizeText(in.Country),
	}
	v.required("shippingAddress.name", addr.Name)
	v.required("shippingAddress.street", addr.Street)
	v.required("shippingAddress.city", addr.City)
	v.required("shippingAddress.state", addr.State)
	v.required("shippingAddress.zipCode", addr.ZipCode)
	v.required("shippingAddress.country", addr.Country)
	return addr
}

func uniqueNonEmpty(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, value := range values {
		value = strings.TrimSpace(value)
		if value == "" {
			continue
		}
		if _, ok := seen[value]; ok {
			continue
		}
		seen[value] = struct{}{}
		out = append(out, value)
	}
	return out
}

func clampPageSize(size, fallback, max int) int {
	switch {
	case size <= 0:
		return fallback
	case size > max:
		return max
	default:
		return size
	}
}
