package memory

import (
	"context"
	"math"
	"sort"
	"time"

	domain "github.com/atelier-gallery/api/internal/domain"
	"github.com/atelier-gallery/api/internal/repositories"
)

type orderRepository struct{ s *Store }

func (r orderRepository) Insert(_ context.Context, order domain.Order) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, exists := r.s.orders[order.ID]; exists {
		return repositories.Conflict("orders.insert", "order %s already exists", order.ID)
	}
	if owner, taken := r.s.orderNumbers[order.OrderNumber]; taken {
		return repositories.Conflict("orders.insert", "order number %s already used by %s", order.OrderNumber, owner)
	}
	r.s.orders[order.ID] = cloneOrder(order)
	r.s.orderNumbers[order.OrderNumber] = order.ID
	return nil
}

func (r orderRepository) FindByID(_ context.Context, orderID string) (domain.Order, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	order, ok := r.s.orders[orderID]
	if !ok {
		return domain.Order{}, repositories.NotFound("orders.get", "order %s not found", orderID)
	}
	return cloneOrder(order), nil
}

func (r orderRepository) List(_ context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	r.s.mu.RLock()
	matched := make([]domain.Order, 0)
	for _, order := range r.s.orders {
		if filter.Matches(order) {
			matched = append(matched, cloneOrder(order))
		}
	}
	r.s.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].ID > matched[j].ID
	})
	return paginate("orders.list", matched, filter.Pagination)
}

// Mutate holds the write lock across fn so concurrent callers observe each other's commits.
func (r orderRepository) Mutate(_ context.Context, orderID string, fn func(current domain.Order) (domain.Order, error)) (domain.Order, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	current, ok := r.s.orders[orderID]
	if !ok {
		return domain.Order{}, repositories.NotFound("orders.mutate", "order %s not found", orderID)
	}
	next, err := fn(cloneOrder(current))
	if err != nil {
		return domain.Order{}, err
	}
	// identity and number are fixed at creation
	next.ID = current.ID
	next.OrderNumber = current.OrderNumber
	r.s.orders[orderID] = cloneOrder(next)
	return cloneOrder(next), nil
}

func (r orderRepository) Stats(_ context.Context, since time.Time) (repositories.OrderStats, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	stats := repositories.OrderStats{ByStatus: make(map[domain.OrderStatus]int64)}
	for _, order := range r.s.orders {
		stats.Total++
		stats.ByStatus[order.Status]++
		stats.TotalValue += order.Totals.Total
		if order.Status == domain.OrderStatusDelivered && order.PaymentStatus == domain.PaymentStatusPaid {
			stats.PaidOrders++
			stats.PaidRevenue += order.Totals.Total
		}
		if !order.CreatedAt.Before(since) {
			stats.CreatedSince++
		}
	}
	return stats, nil
}

type counterRepository struct{ s *Store }

func (r counterRepository) Next(_ context.Context, counterID string, step int64) (int64, error) {
	if counterID == "" {
		return 0, repositories.NewCounterError(repositories.CounterErrorInvalidInput, "counter id is required", nil)
	}
	if step <= 0 {
		return 0, repositories.NewCounterError(repositories.CounterErrorInvalidInput, "step must be positive", nil)
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	current := r.s.counters[counterID]
	if current > math.MaxInt64-step {
		return 0, repositories.NewCounterError(repositories.CounterErrorOverflow, "counter would overflow", nil)
	}
	current += step
	r.s.counters[counterID] = current
	return current, nil
}
