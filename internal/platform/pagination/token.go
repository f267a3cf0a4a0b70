package pagination

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
)

// Cursor is the decoded form of a page token. Firestore adapters put the id of the last
// returned document in StartAfter; in-memory stores use StartAt with an offset.
type Cursor struct {
	StartAfter []any `json:"startAfter,omitempty"`
	StartAt    []any `json:"startAt,omitempty"`
}

// EncodeToken serialises the provided cursor into a base64 URL-safe page token.
func EncodeToken(cursor Cursor) (string, error) {
	if len(cursor.StartAfter) == 0 && len(cursor.StartAt) == 0 {
		return "", nil
	}
	data, err := json.Marshal(cursor)
	if err != nil {
		return "", fmt.Errorf("pagination: encode token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(data), nil
}

// DecodeToken parses the page token produced by EncodeToken back into a cursor.
func DecodeToken(token string) (Cursor, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Cursor{}, nil
	}
	decoded, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return Cursor{}, fmt.Errorf("%w: %v", ErrInvalidPageToken, err)
	}
	var cursor Cursor
	if err := json.Unmarshal(decoded, &cursor); err != nil {
		return Cursor{}, fmt.Errorf("%w: %v", ErrInvalidPageToken, err)
	}
	return cursor, nil
}

// EncodeOffset produces a page token for stores that page by position rather than by cursor.
func EncodeOffset(offset int) string {
	if offset <= 0 {
		return ""
	}
	token, err := EncodeToken(Cursor{StartAt: []any{offset}})
	if err != nil {
		return ""
	}
	return token
}

// DecodeOffset reverses EncodeOffset. An empty token yields zero.
func DecodeOffset(token string) (int, error) {
	cursor, err := DecodeToken(token)
	if err != nil {
		return 0, err
	}
	if len(cursor.StartAt) == 0 {
		if len(cursor.StartAfter) > 0 {
			return 0, fmt.Errorf("%w: cursor token where offset expected", ErrInvalidPageToken)
		}
		return 0, nil
	}
	value, ok := cursor.StartAt[0].(float64)
	if !ok || value < 0 || value != float64(int(value)) {
		return 0, fmt.Errorf("%w: malformed offset", ErrInvalidPageToken)
	}
	return int(value), nil
}
