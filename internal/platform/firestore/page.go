package firestore

import (
	"context"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/atelier-gallery/api/internal/platform/pagination"
)

const minScanBatch = 20

// PageOptions drives Collection.Page.
type PageOptions[T any] struct {
	// Build must apply every OrderBy the listing needs; Page resumes with StartAfter.
	Build    QueryBuilder
	PageSize int
	Token    string
	// Match filters decoded documents for predicates Firestore cannot index, such as
	// substring search. Nil accepts everything.
	Match func(T) bool
}

// Page returns up to PageSize matching documents and the token for the next page. The token
// holds the id of the last returned document; resuming reads that snapshot and starts after
// it, so the order-by values are always those stored in Firestore. Tokens that cannot be
// decoded, or that name a deleted document, wrap pagination.ErrInvalidPageToken.
func (c *Collection[T]) Page(ctx context.Context, opts PageOptions[T]) ([]Document[T], string, error) {
	coll, err := c.Ref(ctx)
	if err != nil {
		return nil, "", err
	}
	pageSize := opts.PageSize
	if pageSize <= 0 {
		pageSize = pagination.DefaultPageSize
	}

	base := coll.Query
	if opts.Build != nil {
		base = opts.Build(base)
	}

	query := base
	if opts.Token != "" {
		cursor, err := pagination.DecodeToken(opts.Token)
		if err != nil {
			return nil, "", err
		}
		lastID, ok := firstString(cursor.StartAfter)
		if !ok {
			return nil, "", fmt.Errorf("%w: missing document cursor", pagination.ErrInvalidPageToken)
		}
		snap, err := coll.Doc(lastID).Get(ctx)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return nil, "", fmt.Errorf("%w: cursor document no longer exists", pagination.ErrInvalidPageToken)
			}
			return nil, "", WrapError(c.op("page_cursor"), err)
		}
		query = base.StartAfter(snap)
	}

	batch := pageSize * 2
	if batch < minScanBatch {
		batch = minScanBatch
	}

	items := make([]Document[T], 0, pageSize)
	for {
		snaps, err := query.Limit(batch).Documents(ctx).GetAll()
		if err != nil {
			return nil, "", WrapError(c.op("page"), err)
		}
		for _, snap := range snaps {
			doc, err := c.Decode(snap)
			if err != nil {
				return nil, "", err
			}
			if opts.Match != nil && !opts.Match(doc.Data) {
				continue
			}
			if len(items) == pageSize {
				// one more match exists beyond this page
				token, err := pagination.EncodeToken(pagination.Cursor{StartAfter: []any{items[len(items)-1].ID}})
				if err != nil {
					return nil, "", err
				}
				return items, token, nil
			}
			items = append(items, doc)
		}
		if len(snaps) < batch {
			return items, "", nil
		}
		query = base.StartAfter(snaps[len(snaps)-1])
	}
}

func firstString(values []any) (string, bool) {
	if len(values) == 0 {
		return "", false
	}
	id, ok := values[0].(string)
	return id, ok && id != ""
}
