// Package trackid generates public tracking identifiers.
//
// Формат: SWPL + YYMMDD + 6 случайных символов [A-Z0-9].
// Дата внутри кода снижает вероятность коллизии, но уникальность
// гарантирует только unique-индекс в хранилище.
package trackid

import (
	"crypto/rand"
	"regexp"
	"time"
)

const prefix = "SWPL"

const randomAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

var trackingIDPattern = regexp.MustCompile(`^[A-Z]{4}\d{6}[A-Z0-9]{6}$`)

type Generator struct {
	now func() time.Time
}

func NewGenerator() *Generator {
	return &Generator{now: func() time.Time { return time.Now().UTC() }}
}

func newGeneratorAt(now func() time.Time) *Generator {
	return &Generator{now: now}
}

func (g *Generator) NewID() string {
	buf := make([]byte, 6)
	_, _ = rand.Read(buf)
	for i := range buf {
		buf[i] = randomAlphabet[int(buf[i])%len(randomAlphabet)]
	}
	return prefix + g.now().Format("060102") + string(buf)
}

// Valid reports whether s looks like an id this system could have issued.
func Valid(s string) bool {
	return trackingIDPattern.MatchString(s)
}
