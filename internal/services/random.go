package services

import (
	"math/rand/v2"
	"time"
)

// Source returns uniform indexes in [0, n).
type Source interface {
	IntN(n int) int
}

// Clock stamps winner records.
type Clock interface {
	Now() time.Time
}

type mathSource struct{}

// IntN uses the goroutine-safe top-level generator of math/rand/v2.
func (mathSource) IntN(n int) int { return rand.IntN(n) }

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }
