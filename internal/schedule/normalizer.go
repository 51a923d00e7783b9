// Package schedule turns a decoded snapshot into canonical per-day records.
package schedule

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/jadwal-sholat-crawler/internal/crawler"
)

const (
	sourceDateLayout = "02-01-2006"
	recordDateLayout = "2006-01-02"
)

// Upstream field names. Dhuha is not published today and stays null until it is.
const (
	fieldImsak   = "Imsak"
	fieldFajr    = "Fajr"
	fieldSunrise = "Sunrise"
	fieldDhuha   = "Dhuha"
	fieldDhuhr   = "Dhuhr"
	fieldAsr     = "Asr"
	fieldMaghrib = "Maghrib"
	fieldIsha    = "Isha"
)

// Normalizer maps snapshot rows onto crawler.ScheduleRecord.
type Normalizer struct {
	logger *zap.Logger
}

// New constructs a Normalizer.
func New(logger *zap.Logger) *Normalizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Normalizer{logger: logger.Named("schedule")}
}

type dated struct {
	day    time.Time
	record crawler.ScheduleRecord
}

// Normalize returns records sorted ascending by date with unique dates, plus the
// number of rows dropped because their date or shape was unusable.
func (n *Normalizer) Normalize(snap crawler.Snapshot) ([]crawler.ScheduleRecord, int) {
	byDate := make(map[string]dated, len(snap.Days))
	dropped := 0

	for _, row := range snap.Days {
		day, err := ParseDate(row.Key)
		if err != nil {
			dropped++
			n.logger.Warn("skipping row", zap.String("key", row.Key), zap.Error(err))
			continue
		}
		if row.Times == nil {
			dropped++
			n.logger.Warn("skipping row without time fields", zap.String("key", row.Key))
			continue
		}
		date := day.Format(recordDateLayout)
		if _, dup := byDate[date]; dup {
			dropped++
			n.logger.Warn("skipping duplicate date", zap.String("key", row.Key))
			continue
		}
		byDate[date] = dated{day: day, record: toRecord(date, row.Times)}
	}

	rows := make([]dated, 0, len(byDate))
	for _, d := range byDate {
		rows = append(rows, d)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].day.Before(rows[j].day) })

	records := make([]crawler.ScheduleRecord, len(rows))
	for i, d := range rows {
		records[i] = d.record
	}
	return records, dropped
}

// ParseDate parses an upstream DD-MM-YYYY key.
func ParseDate(key string) (time.Time, error) {
	day, err := time.Parse(sourceDateLayout, strings.TrimSpace(key))
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", crawler.ErrDateParse, key)
	}
	return day, nil
}

// FilterPeriod keeps the records dated inside p and reports how many it removed.
func FilterPeriod(records []crawler.ScheduleRecord, p crawler.Period) ([]crawler.ScheduleRecord, int) {
	kept := make([]crawler.ScheduleRecord, 0, len(records))
	for _, r := range records {
		day, err := time.Parse(recordDateLayout, r.Date)
		if err != nil || !p.Contains(day) {
			continue
		}
		kept = append(kept, r)
	}
	return kept, len(records) - len(kept)
}

func toRecord(date string, times map[string]string) crawler.ScheduleRecord {
	return crawler.ScheduleRecord{
		Date:    date,
		Imsak:   field(times, fieldImsak),
		Subuh:   field(times, fieldFajr),
		Terbit:  field(times, fieldSunrise),
		Dhuha:   field(times, fieldDhuha),
		Dzuhur:  field(times, fieldDhuhr),
		Ashar:   field(times, fieldAsr),
		Maghrib: field(times, fieldMaghrib),
		Isya:    field(times, fieldIsha),
	}
}

func field(times map[string]string, name string) *string {
	v, ok := times[name]
	if !ok {
		return nil
	}
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	return &v
}
