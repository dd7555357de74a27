package ledger

import (
	"fmt"
	"math/rand"
	"time"
)

// DefaultReferencePrefix is the stable prefix of generated references.
const DefaultReferencePrefix = "GL-TXN"

// ReferenceGenerator produces transaction references of the form
// PREFIX-YYMMDDhhmmss-NNNN. The random suffix only makes collisions unlikely;
// uniqueness itself is guaranteed by the store constraint plus the retry loop
// in Service.insertWithReference.
type ReferenceGenerator struct {
	Prefix string
	Now    func() time.Time
	Rand   func() int
}

// NewReferenceGenerator returns a generator using the wall clock and
// math/rand for the suffix.
func NewReferenceGenerator(prefix string) *ReferenceGenerator {
	if prefix == "" {
		prefix = DefaultReferencePrefix
	}
	return &ReferenceGenerator{
		Prefix: prefix,
		Now:    time.Now,
		Rand:   func() int { return rand.Intn(9000) + 1000 },
	}
}

// Next returns a candidate reference.
func (g *ReferenceGenerator) Next() string {
	return fmt.Sprintf("%s-%s-%04d", g.Prefix, g.Now().UTC().Format("060102150405"), g.Rand())
}

// systemReference names closing/opening entries after their period so they
// are recognizable in the journal.
func (g *ReferenceGenerator) systemReference(kind TransactionType, period FiscalPeriod) string {
	label := "CIERRE"
	if kind == TxOpening {
		label = "APERTURA"
	}
	return fmt.Sprintf("%s-%s-%04d", label, period.Name, g.Rand())
}
