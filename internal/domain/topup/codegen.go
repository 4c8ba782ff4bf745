package topup

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"regexp"
	"strings"
)

const codeDigits = 8

// Codec generates transfer codes and extracts them back out of free-form
// bank transfer descriptions. Banks forward the description users typed,
// so matching is case-insensitive and tolerant of surrounding text.
type Codec struct {
	prefix  string
	pattern *regexp.Regexp
}

func NewCodec(prefix string) *Codec {
	return &Codec{
		prefix:  strings.ToUpper(prefix),
		pattern: regexp.MustCompile(`(?i)` + regexp.QuoteMeta(prefix) + fmt.Sprintf(`\d{%d,}`, codeDigits)),
	}
}

// Generate returns a fresh transfer code: prefix plus 8 random digits.
// Uniqueness is enforced by the database; callers retry on collision.
func (c *Codec) Generate() (string, error) {
	max := big.NewInt(1)
	for i := 0; i < codeDigits; i++ {
		max.Mul(max, big.NewInt(10))
	}
	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s%0*d", c.prefix, codeDigits, n), nil
}

// Extract pulls the first transfer code out of a bank transfer description,
// normalized to upper case. Returns "" when the text carries no code.
func (c *Codec) Extract(description string) string {
	match := c.pattern.FindString(description)
	if match == "" {
		return ""
	}
	return strings.ToUpper(match)
}
