package config

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const day = 24 * time.Hour

// Duration is a time.Duration that also accepts a leading day count,
// as in "30d" or "1d12h". Negative values are rejected.
type Duration struct {
	time.Duration
}

// EnvDecode implements envconfig.Decoder
func (d *Duration) EnvDecode(_ context.Context, v string) error {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}

	var total time.Duration
	if i := strings.IndexByte(v, 'd'); i >= 0 {
		days, err := strconv.Atoi(v[:i])
		if err != nil {
			return fmt.Errorf("invalid days value %q: %w", v, err)
		}
		total = time.Duration(days) * day
		v = v[i+1:]
	}

	if v != "" {
		rest, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid duration: %w", err)
		}
		total += rest
	}

	if total < 0 {
		return fmt.Errorf("duration must not be negative: %s", total)
	}

	d.Duration = total
	return nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (d *Duration) UnmarshalText(text []byte) error {
	return d.EnvDecode(context.Background(), string(text))
}

// MarshalText implements encoding.TextMarshaler
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// String renders whole days with the "d" suffix
func (d Duration) String() string {
	if d.Duration >= day && d.Duration%day == 0 {
		return strconv.FormatInt(int64(d.Duration/day), 10) + "d"
	}
	return d.Duration.String()
}
