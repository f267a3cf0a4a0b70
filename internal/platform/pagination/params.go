// Package pagination parses list query parameters and encodes opaque page tokens.
package pagination

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

const (
	// DefaultPageSize applies when the client omits page_size.
	DefaultPageSize = 20
	// DefaultMaxPageSize caps page_size unless Options says otherwise.
	DefaultMaxPageSize = 100

	maxTokenLength = 1024
)

var (
	ErrInvalidPageSize  = errors.New("pagination: invalid page_size")
	ErrInvalidPageToken = errors.New("pagination: invalid page_token")
)

// Params are the pagination values extracted from a request.
type Params struct {
	PageSize  int
	PageToken string
}

// Options bounds the page size accepted by Parse.
type Options struct {
	DefaultPageSize int
	MaxPageSize     int
}

func (o Options) normalised() Options {
	if o.DefaultPageSize <= 0 {
		o.DefaultPageSize = DefaultPageSize
	}
	if o.MaxPageSize <= 0 {
		o.MaxPageSize = DefaultMaxPageSize
	}
	if o.DefaultPageSize > o.MaxPageSize {
		o.DefaultPageSize = o.MaxPageSize
	}
	return o
}

// FromRequest parses the request's query string.
func FromRequest(r *http.Request, opts Options) (Params, error) {
	if r == nil || r.URL == nil {
		return Params{PageSize: opts.normalised().DefaultPageSize}, nil
	}
	return Parse(r.URL.Query(), opts)
}

// Parse reads page_size (alias limit) and page_token. Oversized pages are clamped rather than
// rejected; non-numeric or non-positive sizes are errors. The token is only checked for
// shape here; stores decode it.
func Parse(values url.Values, opts Options) (Params, error) {
	opts = opts.normalised()
	params := Params{PageSize: opts.DefaultPageSize}

	raw := strings.TrimSpace(values.Get("page_size"))
	if raw == "" {
		raw = strings.TrimSpace(values.Get("limit"))
	}
	if raw != "" {
		size, err := strconv.Atoi(raw)
		if err != nil {
			return Params{}, fmt.Errorf("%w: must be an integer", ErrInvalidPageSize)
		}
		if size <= 0 {
			return Params{}, fmt.Errorf("%w: must be greater than zero", ErrInvalidPageSize)
		}
		params.PageSize = min(size, opts.MaxPageSize)
	}

	token := strings.TrimSpace(values.Get("page_token"))
	if len(token) > maxTokenLength {
		return Params{}, fmt.Errorf("%w: too long", ErrInvalidPageToken)
	}
	if _, err := DecodeToken(token); err != nil {
		return Params{}, err
	}
	params.PageToken = token
	return params, nil
}
