package crawler

import (
	"fmt"
	"time"
)

// CityID is the upstream slug identifying one city page. It doubles as the
// city folder name in the output tree.
type CityID string

// Period identifies one month of schedule data, the file granularity of the output.
type Period struct {
	Year  int
	Month time.Month
}

// PeriodOf returns the period containing t.
func PeriodOf(t time.Time) Period {
	return Period{Year: t.Year(), Month: t.Month()}
}

// Valid reports whether the month and year are in range.
func (p Period) Valid() bool {
	return p.Year >= 1 && p.Month >= time.January && p.Month <= time.December
}

// Next returns the following calendar month.
func (p Period) Next() Period {
	if p.Month == time.December {
		return Period{Year: p.Year + 1, Month: time.January}
	}
	return Period{Year: p.Year, Month: p.Month + 1}
}

// Contains reports whether date falls inside the period.
func (p Period) Contains(date time.Time) bool {
	return date.Year() == p.Year && date.Month() == p.Month
}

func (p Period) String() string {
	return fmt.Sprintf("%04d-%02d", p.Year, int(p.Month))
}

// Unit is a single (city, period) piece of work. Each unit owns exactly one
// output file.
type Unit struct {
	City   CityID
	Period Period
}

// RelPath returns the slash-separated file path of the unit relative to the
// output root: {city}/{yyyy}/{MM}.json.
func (u Unit) RelPath() string {
	return fmt.Sprintf("%s/%04d/%02d.json", u.City, u.Period.Year, int(u.Period.Month))
}

func (u Unit) String() string {
	return fmt.Sprintf("%s@%s", u.City, u.Period)
}

// FetchResponse is the result returned by a Fetcher implementation.
type FetchResponse struct {
	URL        string
	StatusCode int
	Body       []byte
	Duration   time.Duration
}

// SnapshotDay is one row of the snapshot's date-keyed prayer-time map.
// Times is nil when the row did not have the expected shape.
type SnapshotDay struct {
	Key   string
	Times map[string]string
}

// Snapshot is the validated prayer-time table lifted from a city page.
type Snapshot struct {
	// Component is the server-side component name, when the snapshot carries one.
	Component string
	// Days holds the rows in source order.
	Days []SnapshotDay
}

// ScheduleRecord is the canonical per-day record persisted to disk. Nil times
// encode as JSON null.
type ScheduleRecord struct {
	Date    string  `json:"date"`
	Imsak   *string `json:"imsak"`
	Subuh   *string `json:"subuh"`
	Terbit  *string `json:"terbit"`
	Dhuha   *string `json:"dhuha"`
	Dzuhur  *string `json:"dzuhur"`
	Ashar   *string `json:"ashar"`
	Maghrib *string `json:"maghrib"`
	Isya    *string `json:"isya"`
}

// Outcome is the terminal state of one unit.
type Outcome string

// Unit outcomes reported by workers.
const (
	OutcomeWritten  Outcome = "written"
	OutcomeSkipped  Outcome = "skipped"
	OutcomeFailed   Outcome = "failed"
	OutcomeCanceled Outcome = "canceled"
)

// Result is the typed report produced for every unit.
type Result struct {
	Unit     Unit
	Outcome  Outcome
	Kind     ErrorKind
	Records  int
	Dropped  int
	Path     string
	Err      error
	Duration time.Duration
}

// Summary aggregates the results of one run.
type Summary struct {
	RunID          string
	Mode           Mode
	Cities         int
	Units          int
	Written        int
	Skipped        int
	Failed         int
	Canceled       int
	FailuresByKind map[ErrorKind]int
	PrunedYears    int
	Started        time.Time
	Duration       time.Duration
}

// Add folds a unit result into the summary counters.
func (s *Summary) Add(r Result) {
	switch r.Outcome {
	case OutcomeWritten:
		s.Written++
	case OutcomeSkipped:
		s.Skipped++
	case OutcomeCanceled:
		s.Canceled++
	case OutcomeFailed:
		s.Failed++
		if s.FailuresByKind == nil {
			s.FailuresByKind = make(map[ErrorKind]int)
		}
		s.FailuresByKind[r.Kind]++
	}
}
