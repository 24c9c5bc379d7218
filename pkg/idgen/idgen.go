// Package idgen provides the engine's IDGen port, producing prefixed,
// collision-resistant identifiers for every aggregate (Rx numbers, fill
// ids, claim ids, audit entry ids, idempotency tokens).
package idgen

import (
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"
)

// IDGen abstracts identifier generation.
type IDGen interface {
	// New returns a new identifier of the form "<prefix>_<random>".
	New(prefix string) string
}

// UUIDGen is the production IDGen backed by google/uuid.
type UUIDGen struct{}

// New returns "<prefix>_<uuid>".
func (UUIDGen) New(prefix string) string {
	return fmt.Sprintf("%s_%s", prefix, uuid.New().String())
}

// Sequential is a deterministic IDGen for tests: "<prefix>_<n>" with n
// zero-padded to six digits, starting at 1 and incrementing per call,
// regardless of prefix. Use it through a pointer (&Sequential{}).
type Sequential struct {
	counter atomic.Uint64
}

// New returns the next sequential identifier.
func (s *Sequential) New(prefix string) string {
	n := s.counter.Add(1)
	return fmt.Sprintf("%s_%06d", prefix, n)
}
