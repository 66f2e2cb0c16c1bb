package publish

import (
	"fmt"
	"time"

	"github.com/tordrt/schemadocs/internal/config"
	"github.com/tordrt/schemadocs/internal/retention"
)

// TitleStrategy names the page a run publishes to.
type TitleStrategy interface {
	Title(base string, ts time.Time) string
}

// FixedTitle publishes every run to the base title, updating one page in place.
type FixedTitle struct{}

// Title returns base unchanged.
func (FixedTitle) Title(base string, _ time.Time) string {
	return base
}

// TimestampedTitle publishes every run as a new snapshot page.
type TimestampedTitle struct{}

// Title returns base with a UTC timestamp suffix.
func (TimestampedTitle) Title(base string, ts time.Time) string {
	return retention.Family{BaseTitle: base}.Title(ts)
}

// StrategyFor returns the strategy configured by name.
func StrategyFor(name string) (TitleStrategy, error) {
	switch name {
	case config.TitleFixed:
		return FixedTitle{}, nil
	case config.TitleTimestamped, "":
		return TimestampedTitle{}, nil
	default:
		return nil, fmt.Errorf("unknown title strategy %q", name)
	}
}
