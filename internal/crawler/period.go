package crawler

import (
	"fmt"
	"time"
)

// Mode selects which periods a run targets and how existing files are treated.
type Mode string

// Supported run modes.
const (
	// ModeRefresh crawls the current month plus a lookahead and overwrites
	// existing files, since upstream may still revise them.
	ModeRefresh Mode = "refresh"
	// ModeBackfill crawls every month of the current year and never touches
	// files that already exist.
	ModeBackfill Mode = "backfill"
)

// ParseMode validates a configured mode string.
func ParseMode(raw string) (Mode, error) {
	switch Mode(raw) {
	case ModeRefresh, ModeBackfill:
		return Mode(raw), nil
	default:
		return "", fmt.Errorf("unknown mode %q (want %q or %q)", raw, ModeRefresh, ModeBackfill)
	}
}

// WritePolicy controls what the store does when the destination already exists.
type WritePolicy int

// Write policies.
const (
	SkipExisting WritePolicy = iota
	Overwrite
)

func (p WritePolicy) String() string {
	if p == Overwrite {
		return "overwrite"
	}
	return "skip-existing"
}

// WritePolicy returns the store policy paired with the mode.
func (m Mode) WritePolicy() WritePolicy {
	if m == ModeRefresh {
		return Overwrite
	}
	return SkipExisting
}

// TargetPeriods computes the periods a run should crawl, relative to now.
// lookahead is only used by ModeRefresh; negative values are treated as zero.
func TargetPeriods(mode Mode, now time.Time, lookahead int) []Period {
	current := PeriodOf(now)
	switch mode {
	case ModeBackfill:
		out := make([]Period, 0, 12)
		for m := time.January; m <= time.December; m++ {
			out = append(out, Period{Year: current.Year, Month: m})
		}
		return out
	default:
		if lookahead < 0 {
			lookahead = 0
		}
		out := make([]Period, 0, lookahead+1)
		p := current
		for i := 0; i <= lookahead; i++ {
			out = append(out, p)
			p = p.Next()
		}
		return out
	}
}

// BuildUnits expands cities × periods into the run's work units. Each
// (city, period) pair appears once, so no two units share an output path.
func BuildUnits(cities []CityID, periods []Period) []Unit {
	units := make([]Unit, 0, len(cities)*len(periods))
	for _, city := range cities {
		for _, p := range periods {
			units = append(units, Unit{City: city, Period: p})
		}
	}
	return units
}
