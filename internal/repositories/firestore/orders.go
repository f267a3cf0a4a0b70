package firestore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/atelier-gallery/api/internal/domain"
	pfirestore "github.com/atelier-gallery/api/internal/platform/firestore"
	"github.com/atelier-gallery/api/internal/repositories"
)

const (
	ordersCollection = "orders"
	// orderNumbersCollection holds one document per issued order number. Creating it in the
	// same transaction as the order is what makes numbers unique.
	orderNumbersCollection = "orderNumbers"
)

type lineItemDocument struct {
	ArtworkID  string `firestore:"artworkId"`
	ArtistID   string `firestore:"artistId"`
	Title      string `firestore:"title"`
	ImageURL   string `firestore:"imageUrl,omitempty"`
	ArtistName string `firestore:"artistName,omitempty"`
	Quantity   int64  `firestore:"quantity"`
	UnitPrice  int64  `firestore:"unitPrice"`
	LineTotal  int64  `firestore:"lineTotal"`
}

type totalsDocument struct {
	Subtotal int64 `firestore:"subtotal"`
	Tax      int64 `firestore:"tax"`
	Shipping int64 `firestore:"shipping"`
	Total    int64 `firestore:"total"`
}

type addressDocument struct {
	Name    string `firestore:"name"`
	Street  string `firestore:"street"`
	City    string `firestore:"city"`
	State   string `firestore:"state"`
	ZipCode string `firestore:"zipCode"`
	Country string `firestore:"country"`
}

type orderDocument struct {
	OrderNumber       string             `firestore:"orderNumber"`
	UserID            string             `firestore:"userId"`
	Items             []lineItemDocument `firestore:"items"`
	Currency          string             `firestore:"currency"`
	Totals            totalsDocument     `firestore:"totals"`
	ShippingAddress   addressDocument    `firestore:"shippingAddress"`
	PaymentMethod     string             `firestore:"paymentMethod"`
	Notes             string             `firestore:"notes,omitempty"`
	Status            string             `firestore:"status"`
	PaymentStatus     string             `firestore:"paymentStatus"`
	SalesAttributedAt *time.Time         `firestore:"salesAttributedAt"`
	CreatedAt         time.Time          `firestore:"createdAt"`
	UpdatedAt         time.Time          `firestore:"updatedAt"`
}

type orderNumberDocument struct {
	OrderID   string    `firestore:"orderId"`
	CreatedAt time.Time `firestore:"createdAt"`
}

// OrderRepository stores orders and reserves their numbers.
type OrderRepository struct {
	provider *pfirestore.Provider
	orders   *pfirestore.Collection[orderDocument]
	numbers  *pfirestore.Collection[orderNumberDocument]
}

var _ repositories.OrderRepository = (*OrderRepository)(nil)

// NewOrderRepository binds the repository to provider.
func NewOrderRepository(provider *pfirestore.Provider) (*OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("order repository requires firestore provider")
	}
	return &OrderRepository{
		provider: provider,
		orders:   pfirestore.NewCollection[orderDocument](provider, ordersCollection),
		numbers:  pfirestore.NewCollection[orderNumberDocument](provider, orderNumbersCollection),
	}, nil
}

// Insert creates the order and its number reservation atomically. Either document already
// existing aborts both with a conflict.
func (r *OrderRepository) Insert(ctx context.Context, order domain.Order) error {
	orderRef, err := r.orders.Doc(ctx, order.ID)
	if err != nil {
		return err
	}
	numberRef, err := r.numbers.Doc(ctx, order.OrderNumber)
	if err != nil {
		return err
	}
	doc := encodeOrder(order)
	return r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		if err := tx.Create(numberRef, orderNumberDocument{OrderID: order.ID, CreatedAt: doc.CreatedAt}); err != nil {
			return err
		}
		return tx.Create(orderRef, doc)
	}, pfirestore.WithTxOp("orders.insert"))
}

func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	doc, err := r.orders.Get(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	return decodeOrder(doc), nil
}

// List filters by user and status in the query; payment status is checked after decoding
// because Firestore allows a single disjunctive filter per query.
func (r *OrderRepository) List(ctx context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	docs, next, err := r.orders.Page(ctx, pfirestore.PageOptions[orderDocument]{
		Build: func(q firestore.Query) firestore.Query {
			if filter.UserID != "" {
				q = q.Where("userId", "==", filter.UserID)
			}
			if len(filter.Status) > 0 {
				statuses := make([]string, 0, len(filter.Status))
				for _, s := range filter.Status {
					statuses = append(statuses, string(s))
				}
				q = q.Where("status", "in", statuses)
			}
			return q.OrderBy("createdAt", firestore.Desc)
		},
		PageSize: filter.Pagination.PageSize,
		Token:    filter.Pagination.PageToken,
		Match: func(doc orderDocument) bool {
			return filter.Matches(decodeOrder(pfirestore.Document[orderDocument]{Data: doc}))
		},
	})
	if err != nil {
		return domain.CursorPage[domain.Order]{}, pageError("orders.list", err)
	}
	items := make([]domain.Order, 0, len(docs))
	for _, doc := range docs {
		items = append(items, decodeOrder(doc))
	}
	return domain.CursorPage[domain.Order]{Items: items, NextPageToken: next}, nil
}

// Mutate reads and rewrites the order in one transaction. fn may run more than once when
// Firestore retries on contention, so it must not have side effects.
func (r *OrderRepository) Mutate(ctx context.Context, orderID string, fn func(current domain.Order) (domain.Order, error)) (domain.Order, error) {
	ref, err := r.orders.Doc(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	var result domain.Order
	err = r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if err != nil {
			return pfirestore.WrapError("orders.mutate", err)
		}
		current, err := r.orders.Decode(snap)
		if err != nil {
			return err
		}
		before := decodeOrder(current)
		next, err := fn(before)
		if err != nil {
			return err
		}
		next.ID = before.ID
		next.OrderNumber = before.OrderNumber
		if err := tx.Set(ref, encodeOrder(next)); err != nil {
			return err
		}
		result = next
		return nil
	}, pfirestore.WithTxOp("orders.mutate"))
	if err != nil {
		return domain.Order{}, err
	}
	return result, nil
}

// Stats runs count and sum aggregations; no order documents are transferred.
func (r *OrderRepository) Stats(ctx context.Context, since time.Time) (repositories.OrderStats, error) {
	stats := repositories.OrderStats{ByStatus: make(map[domain.OrderStatus]int64, len(domain.OrderStatuses))}

	var err error
	if stats.Total, err = r.orders.Count(ctx, nil); err != nil {
		return repositories.OrderStats{}, err
	}
	for _, status := range domain.OrderStatuses {
		n, err := r.orders.Count(ctx, func(q firestore.Query) firestore.Query {
			return q.Where("status", "==", string(status))
		})
		if err != nil {
			return repositories.OrderStats{}, fmt.Errorf("orders.stats %s: %w", status, err)
		}
		stats.ByStatus[status] = n
	}
	if stats.TotalValue, err = r.orders.Sum(ctx, "totals.total", nil); err != nil {
		return repositories.OrderStats{}, err
	}

	paid := func(q firestore.Query) firestore.Query {
		return q.Where("status", "==", string(domain.OrderStatusDelivered)).
			Where("paymentStatus", "==", string(domain.PaymentStatusPaid))
	}
	if stats.PaidOrders, err = r.orders.Count(ctx, paid); err != nil {
		return repositories.OrderStats{}, err
	}
	if stats.PaidRevenue, err = r.orders.Sum(ctx, "totals.total", paid); err != nil {
		return repositories.OrderStats{}, err
	}
	if stats.CreatedSince, err = r.orders.Count(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("createdAt", ">=", since.UTC())
	}); err != nil {
		return repositories.OrderStats{}, err
	}
	return stats, nil
}

func encodeOrder(o domain.Order) orderDocument {
	items := make([]lineItemDocument, 0, len(o.Items))
	for _, item := range o.Items {
		items = append(items, lineItemDocument{
			ArtworkID:  item.ArtworkID,
			ArtistID:   item.ArtistID,
			Title:      item.Title,
			ImageURL:   item.ImageURL,
			ArtistName: item.ArtistName,
			Quantity:   int64(item.Quantity),
			UnitPrice:  item.UnitPrice,
			LineTotal:  item.LineTotal,
		})
	}
	var attributed *time.Time
	if o.SalesAttributedAt != nil {
		at := o.SalesAttributedAt.UTC()
		attributed = &at
	}
	addr := o.ShippingAddress
	return orderDocument{
		OrderNumber:       o.OrderNumber,
		UserID:            o.UserID,
		Items:             items,
		Currency:          o.Currency,
		Totals:            totalsDocument{Subtotal: o.Totals.Subtotal, Tax: o.Totals.Tax, Shipping: o.Totals.Shipping, Total: o.Totals.Total},
		ShippingAddress:   addressDocument{Name: addr.Name, Street: addr.Street, City: addr.City, State: addr.State, ZipCode: addr.ZipCode, Country: addr.Country},
		PaymentMethod:     string(o.PaymentMethod),
		Notes:             o.Notes,
		Status:            string(o.Status),
		PaymentStatus:     string(o.PaymentStatus),
		SalesAttributedAt: attributed,
		CreatedAt:         o.CreatedAt.UTC(),
		UpdatedAt:         o.UpdatedAt.UTC(),
	}
}

func decodeOrder(doc pfirestore.Document[orderDocument]) domain.Order {
	d := doc.Data
	items := make([]domain.OrderLineItem, 0, len(d.Items))
	for _, item := range d.Items {
		items = append(items, domain.OrderLineItem{
			ArtworkID:  item.ArtworkID,
			ArtistID:   item.ArtistID,
			Title:      item.Title,
			ImageURL:   item.ImageURL,
			ArtistName: item.ArtistName,
			Quantity:   int(item.Quantity),
			UnitPrice:  item.UnitPrice,
			LineTotal:  item.LineTotal,
		})
	}
	addr := d.ShippingAddress
	return domain.Order{
		ID:                doc.ID,
		OrderNumber:       d.OrderNumber,
		UserID:            d.UserID,
		Items:             items,
		Currency:          d.Currency,
		Totals:            domain.OrderTotals{Subtotal: d.Totals.Subtotal, Tax: d.Totals.Tax, Shipping: d.Totals.Shipping, Total: d.Totals.Total},
		ShippingAddress:   domain.ShippingAddress{Name: addr.Name, Street: addr.Street, City: addr.City, State: addr.State, ZipCode: addr.ZipCode, Country: addr.Country},
		PaymentMethod:     domain.PaymentMethod(d.PaymentMethod),
		Notes:             d.Notes,
		Status:            domain.OrderStatus(d.Status),
		PaymentStatus:     domain.PaymentStatus(d.PaymentStatus),
		SalesAttributedAt: d.SalesAttributedAt,
		CreatedAt:         d.CreatedAt,
		UpdatedAt:         d.UpdatedAt,
	}
}
