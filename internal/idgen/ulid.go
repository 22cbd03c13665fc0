package idgen

import (
	"crypto/rand"
	"fmt"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// ULIDGenerator generates lexicographically sortable ids together with the
// instant they were minted. Within one generator both ids and instants are
// strictly ordered by call order, so sorting by id yields creation order.
type ULIDGenerator struct {
	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
	now     func() time.Time
	last    time.Time
}

// NewULIDGenerator creates a new ULIDGenerator using the given clock.
// A nil clock uses time.Now.
func NewULIDGenerator(now func() time.Time) *ULIDGenerator {
	if now == nil {
		now = time.Now
	}
	return &ULIDGenerator{
		entropy: ulid.Monotonic(rand.Reader, 0),
		now:     now,
	}
}

// Next returns a new id and its creation instant (UTC, microsecond precision).
func (g *ULIDGenerator) Next() (string, time.Time, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	at := g.now().UTC().Truncate(time.Microsecond)
	if !at.After(g.last) {
		at = g.last.Add(time.Microsecond)
	}

	id, err := ulid.New(ulid.Timestamp(at), g.entropy)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to generate ULID: %w", err)
	}
	g.last = at
	return id.String(), at, nil
}

// Valid reports whether id is a well-formed ULID.
func Valid(id string) bool {
	if len(id) != ulid.EncodedSize {
		return false
	}
	_, err := ulid.ParseStrict(id)
	return err == nil
}
