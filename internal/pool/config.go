package pool

import "time"

// Config enumerates the connection pool's bounds and retry policy, per
// spec.md §4.1.
type Config struct {
	DSN string

	MinSize    int32 // 1–100
	MaxSize    int32 // >= MinSize, <= 100
	MaxQueries int64 // queries per connection before recycling

	AcquisitionTimeout time.Duration
	HealthCheckTimeout time.Duration

	MaxAttempts        int
	InitialDelay       time.Duration
	MaxDelay           time.Duration
	ExponentialBackoff bool
}

// DefaultConfig returns sane defaults matching spec.md's enumerated bounds.
func DefaultConfig(dsn string) Config {
	return Config{
		DSN:                dsn,
		MinSize:            2,
		MaxSize:            20,
		MaxQueries:         50000,
		AcquisitionTimeout: 10 * time.Second,
		HealthCheckTimeout: 2 * time.Second,
		MaxAttempts:        5,
		InitialDelay:       200 * time.Millisecond,
		MaxDelay:           10 * time.Second,
		ExponentialBackoff: true,
	}
}

func (c Config) validate() error {
	if c.MinSize < 1 || c.MaxSize > 100 || c.MaxSize < c.MinSize {
		return errInvalidBounds
	}
	return nil
}

var errInvalidBounds = errConfig("pool: min_size/max_size out of the 1..100 range or max < min")

type errConfig string

func (e errConfig) Error() string { return string(e) }
