// Package pagination implements opaque cursor tokens and keyset query
// planning with stable compound ordering for listings over concurrently
// written tables.
package pagination

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrMalformedCursor indicates a cursor token that could not be decoded.
// A corrupt token is a client error, not the same as an absent cursor:
// listing cannot resume from a token it cannot read.
var ErrMalformedCursor = errors.New("malformed pagination cursor")

// Cursor is the decoded resume token: the last-seen row's primary key and,
// when sorting by a non-key column, that column's value at the row. All
// state needed to resume lives in the token itself; nothing is kept
// server-side, so tokens stay valid across process restarts.
type Cursor struct {
	ID        interface{} `json:"id"`
	SortValue interface{} `json:"sortValue,omitempty"`
}

// Encode serializes a cursor as base64url(JSON). Cursors are not signed:
// they are resume tokens, not a security boundary.
func Encode(id interface{}, sortValue interface{}) string {
	c := Cursor{ID: id, SortValue: sortValue}
	data, _ := json.Marshal(c)
	return base64.RawURLEncoding.EncodeToString(data)
}

// Decode parses a token produced by Encode. Numbers are kept as
// json.Number so 64-bit row ids survive the round trip.
func Decode(token string) (*Cursor, error) {
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedCursor, err)
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var c Cursor
	if err := dec.Decode(&c); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedCursor, err)
	}
	if c.ID == nil {
		return nil, fmt.Errorf("%w: missing id", ErrMalformedCursor)
	}
	return &c, nil
}

// IntID returns the cursor's row id as an int64.
func (c *Cursor) IntID() (int64, error) {
	switch v := c.ID.(type) {
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return 0, fmt.Errorf("%w: non-integer id %q", ErrMalformedCursor, v.String())
		}
		return n, nil
	case int64:
		return v, nil
	case int:
		return int64(v), nil
	case float64:
		return int64(v), nil
	}
	return 0, fmt.Errorf("%w: id is not numeric", ErrMalformedCursor)
}

// StringID returns the cursor's row id as a string.
func (c *Cursor) StringID() (string, error) {
	if s, ok := c.ID.(string); ok {
		return s, nil
	}
	return "", fmt.Errorf("%w: id is not a string", ErrMalformedCursor)
}

// SortValueString returns the cursor's sort value as a string, or "" when
// the cursor carries none.
func (c *Cursor) SortValueString() (string, error) {
	if c.SortValue == nil {
		return "", nil
	}
	if s, ok := c.SortValue.(string); ok {
		return s, nil
	}
	return "", fmt.Errorf("%w: sort value is not a string", ErrMalformedCursor)
}
