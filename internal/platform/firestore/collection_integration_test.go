//go:build integration

package firestore_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"cloud.google.com/go/firestore"

	pfirestore "github.com/atelier-gallery/api/internal/platform/firestore"
	"github.com/atelier-gallery/api/internal/platform/firestore/firestoretest"
	"github.com/atelier-gallery/api/internal/platform/pagination"
)

type sampleDoc struct {
	Name  string `firestore:"name"`
	Rank  int64  `firestore:"rank"`
	Color string `firestore:"color"`
}

func TestCollectionCRUDAndAggregates(t *testing.T) {
	provider := firestoretest.NewProvider(t)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if err := provider.Ping(ctx); err != nil {
		t.Fatalf("ping: %v", err)
	}

	samples := pfirestore.NewCollection[sampleDoc](provider, "samples")
	if err := samples.Create(ctx, "s1", sampleDoc{Name: "alpha", Rank: 1, Color: "red"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	err := samples.Create(ctx, "s1", sampleDoc{Name: "again"})
	if !isConflict(err) {
		t.Fatalf("expected conflict on duplicate create, got %v", err)
	}
	if err := samples.Create(ctx, "s2", sampleDoc{Name: "beta", Rank: 5, Color: "blue"}); err != nil {
		t.Fatalf("create s2: %v", err)
	}

	if err := samples.Update(ctx, "s1", []firestore.Update{{Path: "rank", Value: firestore.Increment(2)}}); err != nil {
		t.Fatalf("update: %v", err)
	}
	doc, err := samples.Get(ctx, "s1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if doc.Data.Rank != 3 || doc.ID != "s1" {
		t.Fatalf("unexpected doc %#v", doc)
	}

	found, err := samples.GetAll(ctx, []string{"s1", "missing", "s2", "s1"})
	if err != nil {
		t.Fatalf("get all: %v", err)
	}
	if len(found) != 2 {
		t.Fatalf("expected two documents, got %d", len(found))
	}

	total, err := samples.Sum(ctx, "rank", nil)
	if err != nil || total != 8 {
		t.Fatalf("sum = %d, %v", total, err)
	}
	reds, err := samples.Count(ctx, func(q firestore.Query) firestore.Query { return q.Where("color", "==", "red") })
	if err != nil || reds != 1 {
		t.Fatalf("count = %d, %v", reds, err)
	}

	if err := samples.Delete(ctx, "s2"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := samples.Delete(ctx, "s2"); !isNotFound(err) {
		t.Fatalf("expected not found deleting twice, got %v", err)
	}
	if _, err := samples.Get(ctx, "s2"); !isNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestCollectionPageWithMatch(t *testing.T) {
	provider := firestoretest.NewProvider(t)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	samples := pfirestore.NewCollection[sampleDoc](provider, "paged")
	for i := 1; i <= 30; i++ {
		color := "blue"
		if i%3 == 0 {
			color = "red"
		}
		if err := samples.Create(ctx, fmt.Sprintf("p%02d", i), sampleDoc{Name: fmt.Sprint(i), Rank: int64(i), Color: color}); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	opts := pfirestore.PageOptions[sampleDoc]{
		Build:    func(q firestore.Query) firestore.Query { return q.OrderBy("rank", firestore.Desc) },
		PageSize: 4,
		Match:    func(d sampleDoc) bool { return d.Color == "red" },
	}
	var ranks []int64
	for page := 0; page < 5; page++ {
		items, next, err := samples.Page(ctx, opts)
		if err != nil {
			t.Fatalf("page %d: %v", page, err)
		}
		for _, item := range items {
			ranks = append(ranks, item.Data.Rank)
		}
		if next == "" {
			break
		}
		opts.Token = next
	}
	want := []int64{30, 27, 24, 21, 18, 15, 12, 9, 6, 3}
	if fmt.Sprint(ranks) != fmt.Sprint(want) {
		t.Fatalf("ranks = %v, want %v", ranks, want)
	}

	token, _ := pagination.EncodeToken(pagination.Cursor{StartAfter: []any{"gone"}})
	opts.Token = token
	if _, _, err := samples.Page(ctx, opts); !errors.Is(err, pagination.ErrInvalidPageToken) {
		t.Fatalf("expected invalid token error, got %v", err)
	}
}

func TestRunTransactionReturnsCallbackError(t *testing.T) {
	provider := firestoretest.NewProvider(t)
	ctx := context.Background()

	sentinel := errors.New("stop")
	err := provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		return sentinel
	})
	if err != sentinel {
		t.Fatalf("expected sentinel, got %v", err)
	}

	cancelled, cancelNow := context.WithCancel(ctx)
	cancelNow()
	err = provider.RunTransaction(cancelled, func(ctx context.Context, tx *firestore.Transaction) error { return nil })
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context canceled, got %v", err)
	}
}

func isNotFound(err error) bool {
	var repoErr interface{ IsNotFound() bool }
	return errors.As(err, &repoErr) && repoErr.IsNotFound()
}

func isConflict(err error) bool {
	var repoErr interface{ IsConflict() bool }
	return errors.As(err, &repoErr) && repoErr.IsConflict()
}
