package transfer

import (
	"fmt"
	"math/rand/v2"
	"time"
)

// CodeGenerator produces human readable reference codes.
type CodeGenerator func(now time.Time) string

// RandomCode returns TRF-<year>-<5 digits>.
func RandomCode(now time.Time) string {
	return fmt.Sprintf("TRF-%d-%05d", now.Year(), rand.IntN(100000))
}

const maxCodeAttempts = 20
