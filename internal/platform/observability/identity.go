package observability

import (
	"context"
	"sync"
)

type identityHolderKey struct{}

// identityHolder lets the outer request logger learn the uid resolved by inner middleware.
type identityHolder struct {
	mu  sync.Mutex
	val string
}

func (h *identityHolder) set(uid string) {
	h.mu.Lock()
	h.val = uid
	h.mu.Unlock()
}

func (h *identityHolder) uid() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.val
}

func withIdentityHolder(ctx context.Context, h *identityHolder) context.Context {
	return context.WithValue(ctx, identityHolderKey{}, h)
}

func identityHolderFrom(ctx context.Context) *identityHolder {
	h, _ := ctx.Value(identityHolderKey{}).(*identityHolder)
	return h
}
