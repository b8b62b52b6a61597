package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrUnsupportedResolution is returned for bar intervals the data source
// does not serve.
var ErrUnsupportedResolution = errors.New("unsupported resolution")

// Resolution is a bar interval in exchange notation ("15m", "1h").
type Resolution string

const (
	Res1m  Resolution = "1m"
	Res5m  Resolution = "5m"
	Res15m Resolution = "15m"
	Res1h  Resolution = "1h"
	Res4h  Resolution = "4h"
	Res1d  Resolution = "1d"
)

// Resolutions lists every supported resolution, shortest first.
var Resolutions = []Resolution{Res1m, Res5m, Res15m, Res1h, Res4h, Res1d}

var resolutionDurations = map[Resolution]time.Duration{
	Res1m:  time.Minute,
	Res5m:  5 * time.Minute,
	Res15m: 15 * time.Minute,
	Res1h:  time.Hour,
	Res4h:  4 * time.Hour,
	Res1d:  24 * time.Hour,
}

// ParseResolution validates s against the supported set.
func ParseResolution(s string) (Resolution, error) {
	r := Resolution(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := resolutionDurations[r]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedResolution, s)
	}
	return r, nil
}

// Duration returns the bar length, or 0 for an unknown resolution.
func (r Resolution) Duration() time.Duration {
	return resolutionDurations[r]
}

func (r Resolution) String() string { return string(r) }
