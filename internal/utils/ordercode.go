package utils

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"time"
)

// GenerateOrderCode returns <prefix>-<8 time digits><4 random digits>.
// The code is not guaranteed unique; storage enforces uniqueness.
func GenerateOrderCode(prefix string) string {
	return generateOrderCode(prefix, time.Now().UTC())
}

func generateOrderCode(prefix string, now time.Time) string {
	timePart := now.UnixMilli() % 100000000

	n, err := rand.Int(rand.Reader, big.NewInt(10000))
	if err != nil {
		// fallback: time-based entropy
		n = big.NewInt(now.UnixNano() % 10000)
	}

	return fmt.Sprintf("%s-%08d%04d", prefix, timePart, n.Int64())
}
