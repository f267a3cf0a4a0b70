package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/atelier-gallery/api/internal/repositories"
)

const (
	orderNumberPrefix  = "ART"
	orderNumberCounter = "orders"
)

var (
	// ErrCounterInvalidInput indicates the caller supplied invalid counter parameters.
	ErrCounterInvalidInput = errors.New("counter: invalid input")
	// ErrCounterUnavailable indicates the backing store could not issue a value.
	ErrCounterUnavailable = errors.New("counter: unavailable")
)

// CounterServiceDeps bundles collaborators required to construct a counter service instance.
type CounterServiceDeps struct {
	Repository repositories.CounterRepository
	Clock      func() time.Time
}

type counterService struct {
	repo  repositories.CounterRepository
	clock func() time.Time
}

// NewCounterService constructs a service that issues sequence values on top of the repository.
func NewCounterService(deps CounterServiceDeps) (CounterService, error) {
	if deps.Repository == nil {
		return nil, errors.New("counter service: repository is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	return &counterService{
		repo: deps.Repository,
		clock: func() time.Time {
			return clock().UTC()
		},
	}, nil
}

func (s *counterService) Next(ctx context.Context, name string) (int64, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return 0, fmt.Errorf("%w: counter name is required", ErrCounterInvalidInput)
	}

	value, err := s.repo.Next(ctx, name, 1)
	if err != nil {
		var counterErr *repositories.CounterError
		if errors.As(err, &counterErr) {
			return 0, fmt.Errorf("%w: %s", ErrCounterInvalidInput, counterErr.Message)
		}
		return 0, fmt.Errorf("%w: %v", ErrCounterUnavailable, err)
	}
	return value, nil
}

// NextOrderNumber formats ART-<unix millis>-<sequence>, the sequence zero-padded to four digits.
// The sequence comes from an atomic store counter, so two concurrent callers never share one.
func (s *counterService) NextOrderNumber(ctx context.Context) (string, error) {
	seq, err := s.Next(ctx, orderNumberCounter)
	if err != nil {
		return "", err
	}
	return FormatOrderNumber(s.clock(), seq), nil
}

// FormatOrderNumber renders the human-readable order number for a timestamp and sequence.
func FormatOrderNumber(at time.Time, seq int64) string {
	return fmt.Sprintf("%s-%d-%04d", orderNumberPrefix, at.UnixMilli(), seq)
}
