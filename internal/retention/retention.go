// Package retention decides which documentation snapshots to keep.
//
// Snapshots are bucketed by age into weekly, monthly and quarterly tiers. Each
// tier keeps its newest snapshots up to a keep count; the rest are pruned.
package retention

import (
	"sort"
	"strings"
	"time"
)

// Tier is a retention bucket.
type Tier int

const (
	Weekly Tier = iota
	Monthly
	Quarterly
)

// Tiers lists every tier from freshest to oldest.
var Tiers = []Tier{Weekly, Monthly, Quarterly}

func (t Tier) String() string {
	switch t {
	case Weekly:
		return "WEEKLY"
	case Monthly:
		return "MONTHLY"
	case Quarterly:
		return "QUARTERLY"
	default:
		return "UNKNOWN"
	}
}

// Tier boundaries. Each bound is inclusive of the fresher tier.
const (
	WeeklyMaxAge  = 28 * 24 * time.Hour
	MonthlyMaxAge = 180 * 24 * time.Hour
)

// Classify returns the tier of a snapshot taken at ts. Timestamps in the
// future count as weekly.
func Classify(ts, now time.Time) Tier {
	age := now.Sub(ts)
	switch {
	case age <= WeeklyMaxAge:
		return Weekly
	case age <= MonthlyMaxAge:
		return Monthly
	default:
		return Quarterly
	}
}

// KeepCounts is how many snapshots each tier may hold.
type KeepCounts map[Tier]int

// DefaultKeepCounts are 4 weekly, 6 monthly and 4 quarterly snapshots.
func DefaultKeepCounts() KeepCounts {
	return KeepCounts{Weekly: 4, Monthly: 6, Quarterly: 4}
}

// TimestampLayout is the suffix format of versioned page titles, in UTC.
const TimestampLayout = "2006-01-02_15-04-05"

// Family names the snapshots sharing one base title.
type Family struct {
	BaseTitle string
}

// Title returns the versioned title for a snapshot taken at ts.
func (f Family) Title(ts time.Time) string {
	return f.BaseTitle + "_" + ts.UTC().Format(TimestampLayout)
}

// Parse extracts the timestamp from a versioned title. It reports false for
// titles outside the family and for malformed suffixes.
func (f Family) Parse(title string) (time.Time, bool) {
	suffix, ok := strings.CutPrefix(title, f.BaseTitle+"_")
	if !ok {
		return time.Time{}, false
	}
	ts, err := time.ParseInLocation(TimestampLayout, suffix, time.UTC)
	if err != nil {
		return time.Time{}, false
	}
	return ts, true
}

// Snapshot is one published page of a family.
type Snapshot struct {
	ID    string
	Title string
}

// Plan is the outcome of a prune pass.
type Plan struct {
	Delete  []Snapshot
	Keep    map[Tier][]Snapshot
	Ignored []Snapshot
}

type dated struct {
	Snapshot
	ts time.Time
}

// Prune partitions pages into tiers and marks everything past each tier's
// keep count for deletion, oldest first to go. Pages whose titles do not
// parse are ignored: never deleted and not counted. A tier missing from keep
// keeps nothing.
func Prune(f Family, pages []Snapshot, now time.Time, keep KeepCounts) Plan {
	plan := Plan{Keep: make(map[Tier][]Snapshot, len(Tiers))}
	buckets := make(map[Tier][]dated, len(Tiers))

	for _, p := range pages {
		ts, ok := f.Parse(p.Title)
		if !ok {
			plan.Ignored = append(plan.Ignored, p)
			continue
		}
		tier := Classify(ts, now)
		buckets[tier] = append(buckets[tier], dated{Snapshot: p, ts: ts})
	}

	for _, tier := range Tiers {
		b := buckets[tier]
		sort.SliceStable(b, func(i, j int) bool {
			return b[i].ts.After(b[j].ts)
		})

		n := keep[tier]
		if n < 0 {
			n = 0
		}
		for i, d := range b {
			if i < n {
				plan.Keep[tier] = append(plan.Keep[tier], d.Snapshot)
			} else {
				plan.Delete = append(plan.Delete, d.Snapshot)
			}
		}
	}

	return plan
}
