package billing

import (
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"
)

const DefaultNumberPrefix = "INV"

// NumberGenerator builds invoice numbers of the form PREFIX-NNNNNN-RRR, where
// NNNNNN are the last six digits of the epoch milliseconds and RRR is random.
// Collisions are unlikely, not impossible; storage must enforce uniqueness.
type NumberGenerator struct {
	Now func() time.Time

	mu   sync.Mutex
	rand *rand.Rand
}

func NewNumberGenerator() *NumberGenerator {
	return &NumberGenerator{
		Now:  time.Now,
		rand: rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// NewSeededNumberGenerator is deterministic for a fixed clock and seed.
func NewSeededNumberGenerator(now func() time.Time, seed int64) *NumberGenerator {
	return &NumberGenerator{
		Now:  now,
		rand: rand.New(rand.NewSource(seed)),
	}
}

func (g *NumberGenerator) Next(prefix string) string {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = DefaultNumberPrefix
	}

	millis := g.Now().UnixMilli() % 1_000_000
	if millis < 0 {
		millis = -millis
	}

	g.mu.Lock()
	suffix := g.rand.Intn(1000)
	g.mu.Unlock()

	return fmt.Sprintf("%s-%06d-%03d", prefix, millis, suffix)
}

var defaultGenerator = NewNumberGenerator()

func GenerateInvoiceNumber(prefix string) string {
	return defaultGenerator.Next(prefix)
}
