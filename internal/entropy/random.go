// Package entropy provides the randomness sources behind listing generation
// and negotiation rolls. The engine always draws through a Source so tests
// and replays can substitute a seeded deterministic stream.
package entropy

import (
	"crypto/rand"
	"encoding/binary"
	mathrand "math/rand"
	"sync"
)

// Source yields uniform floats in [0, 1).
type Source interface {
	Float() float64
}

// Seeded is a deterministic source: the same seed yields the same stream.
// Safe for concurrent use.
type Seeded struct {
	mu  sync.Mutex
	rng *mathrand.Rand
}

// NewSeeded creates a deterministic source from a seed.
func NewSeeded(seed int64) *Seeded {
	return &Seeded{rng: mathrand.New(mathrand.NewSource(seed))}
}

// Float returns a uniform float64 in [0, 1).
func (s *Seeded) Float() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.Float64()
}

// Range returns a uniform float64 in [lo, hi).
func Range(src Source, lo, hi float64) float64 {
	return lo + src.Float()*(hi-lo)
}

// IntN returns a uniform int in [0, n). n must be positive.
func IntN(src Source, n int) int {
	if n <= 0 {
		return 0
	}
	v := int(src.Float() * float64(n))
	if v >= n {
		v = n - 1
	}
	return v
}

// Crypto is a non-deterministic source backed by crypto/rand. Used by the
// standalone simulator when no seed is configured.
type Crypto struct{}

// Float returns a uniform float64 in [0, 1).
func (Crypto) Float() float64 {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		// Should never happen; 0.5 is a safe neutral draw.
		return 0.5
	}
	// Use only 53 bits for a uniform float64 in [0, 1).
	n := binary.LittleEndian.Uint64(buf[:]) >> 11
	return float64(n) / float64(1<<53)
}

// Fixed always returns the same value. Test helper for forcing one branch of
// a probability band.
type Fixed float64

// Float returns the fixed value.
func (f Fixed) Float() float64 {
	return float64(f)
}

// Sequence replays a fixed series of draws, then repeats the last value.
// Test helper for multi-roll scenarios.
type Sequence struct {
	mu     sync.Mutex
	values []float64
	next   int
}

// NewSequence creates a replaying source.
func NewSequence(values ...float64) *Sequence {
	return &Sequence{values: values}
}

// Float returns the next value in the series.
func (s *Sequence) Float() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.values) == 0 {
		return 0.5
	}
	v := s.values[s.next]
	if s.next < len(s.values)-1 {
		s.next++
	}
	return v
}
