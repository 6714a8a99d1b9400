// Package refnum generates public reference numbers of the form
// PREFIX-yymmddHHMMSS-XXXX. Uniqueness is enforced by the database; callers
// retry on collision.
package refnum

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"strings"
	"time"
)

const layout = "060102150405"

type Generator struct {
	prefix string
	now    func() time.Time
	random io.Reader
}

func New(prefix string) *Generator {
	return &Generator{prefix: strings.ToUpper(strings.TrimSpace(prefix)), now: time.Now, random: rand.Reader}
}

// WithClock overrides the time source and random reader.
func (g *Generator) WithClock(now func() time.Time, random io.Reader) *Generator {
	out := *g
	if now != nil {
		out.now = now
	}
	if random != nil {
		out.random = random
	}
	return &out
}

func (g *Generator) Next() (string, error) {
	buf := make([]byte, 2)
	if _, err := io.ReadFull(g.random, buf); err != nil {
		return "", fmt.Errorf("read random suffix: %w", err)
	}
	suffix := strings.ToUpper(hex.EncodeToString(buf))
	return fmt.Sprintf("%s-%s-%s", g.prefix, g.now().UTC().Format(layout), suffix), nil
}
