package clock

import (
	"time"

	"go.uber.org/fx"
)

// Clock abstracts wall time so periodic jobs can be driven in tests.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the real UTC time.
type SystemClock struct{}

func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}

var Module = fx.Module("clock",
	fx.Provide(func() Clock { return SystemClock{} }),
)
