package service

import (
	"math/rand/v2"
	"strconv"
	"strings"
	"time"
)

const base36Alphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"

// OrderNumberGenerator выдаёт номера вида <prefix>-<время base36>-<4 случайных символа>
type OrderNumberGenerator struct {
	prefix string
	now    func() time.Time
}

func NewOrderNumberGenerator(prefix string) *OrderNumberGenerator {
	return &OrderNumberGenerator{prefix: prefix, now: time.Now}
}

func (g *OrderNumberGenerator) Next() string {
	stamp := strings.ToUpper(strconv.FormatInt(g.now().UnixMilli(), 36))

	var suffix [4]byte
	for i := range suffix {
		suffix[i] = base36Alphabet[rand.IntN(len(base36Alphabet))]
	}

	return g.prefix + "-" + stamp + "-" + string(suffix[:])
}
