package address

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
)

const (
	// rawLen is the number of random bytes per identifier; rendered as
	// 40 hex characters behind a 0x prefix.
	rawLen = 20

	// maxAttempts bounds the redraw loop when the caller reports
	// collisions. With a 160-bit space this is never reached in practice.
	maxAttempts = 8
)

// ErrExhausted indicates the generator could not produce a fresh identifier
// within the attempt budget. Treated as a fatal backend condition, not a
// client error.
var ErrExhausted = errors.New("address space exhausted")

// Generator produces opaque wallet and deposit identifiers from a
// cryptographically strong random source. Identifiers carry no key material.
type Generator struct {
	source io.Reader
}

// NewGenerator returns a generator backed by crypto/rand.
func NewGenerator() *Generator {
	return &Generator{source: rand.Reader}
}

// NewGeneratorWithSource returns a generator reading randomness from the
// provided source. Intended for tests.
func NewGeneratorWithSource(source io.Reader) *Generator {
	return &Generator{source: source}
}

// Generate draws identifiers until taken reports the value unused, or the
// attempt budget runs out. A nil taken accepts the first draw.
func (g *Generator) Generate(taken func(string) bool) (string, error) {
	for attempt := 0; attempt < maxAttempts; attempt++ {
		buf := make([]byte, rawLen)
		if _, err := io.ReadFull(g.source, buf); err != nil {
			return "", fmt.Errorf("read random source: %w", err)
		}
		id := "0x" + hex.EncodeToString(buf)
		if taken == nil || !taken(id) {
			return id, nil
		}
	}
	return "", ErrExhausted
}
