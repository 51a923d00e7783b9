package schedule

import (
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/JakeFAU/jadwal-sholat-crawler/internal/crawler"
)

func fullTimes() map[string]string {
	return map[string]string{
		"Imsak": "04:20", "Fajr": "04:30", "Sunrise": "05:45", "Dhuhr": "11:56",
		"Asr": "15:09", "Maghrib": "18:02", "Isha": "19:11",
	}
}

func TestNormalizeSortsAscending(t *testing.T) {
	t.Parallel()

	snap := crawler.Snapshot{Days: []crawler.SnapshotDay{
		{Key: "15-03-2024", Times: fullTimes()},
		{Key: "01-03-2024", Times: fullTimes()},
		{Key: "02-03-2024", Times: fullTimes()},
	}}

	records, dropped := New(zaptest.NewLogger(t)).Normalize(snap)
	require.Zero(t, dropped)
	require.Len(t, records, 3)
	assert.Equal(t, "2024-03-01", records[0].Date)
	assert.Equal(t, "2024-03-02", records[1].Date)
	assert.Equal(t, "2024-03-15", records[2].Date)
}

func TestNormalizeShuffledStaysStrictlyAscending(t *testing.T) {
	t.Parallel()

	days := make([]crawler.SnapshotDay, 0, 31)
	for d := 1; d <= 31; d++ {
		days = append(days, crawler.SnapshotDay{Key: fmt.Sprintf("%02d-01-2025", d), Times: fullTimes()})
	}
	rng := rand.New(rand.NewSource(7))
	rng.Shuffle(len(days), func(i, j int) { days[i], days[j] = days[j], days[i] })
	days = append(days, crawler.SnapshotDay{Key: "01-01-2025", Times: fullTimes()})

	records, dropped := New(nil).Normalize(crawler.Snapshot{Days: days})
	require.Equal(t, 1, dropped)
	require.Len(t, records, 31)
	for i := 1; i < len(records); i++ {
		require.Less(t, records[i-1].Date, records[i].Date)
	}
}

func TestNormalizeDropsMalformedRows(t *testing.T) {
	t.Parallel()

	snap := crawler.Snapshot{Days: []crawler.SnapshotDay{
		{Key: "01-03-2024", Times: fullTimes()},
		{Key: "2024-03-02", Times: fullTimes()},
		{Key: "31-02-2024", Times: fullTimes()},
		{Key: "03-03-2024", Times: nil},
		{Key: "04-03-2024", Times: fullTimes()},
	}}

	records, dropped := New(zaptest.NewLogger(t)).Normalize(snap)
	require.Equal(t, 3, dropped)
	require.Len(t, records, 2)
	require.Equal(t, "2024-03-04", records[1].Date)
}

func TestNormalizeFieldMapping(t *testing.T) {
	t.Parallel()

	times := fullTimes()
	delete(times, "Imsak")
	records, _ := New(nil).Normalize(crawler.Snapshot{Days: []crawler.SnapshotDay{{Key: "01-03-2024", Times: times}}})
	require.Len(t, records, 1)

	r := records[0]
	assert.Nil(t, r.Imsak)
	assert.Nil(t, r.Dhuha, "dhuha is never copied from dhuhr")
	require.NotNil(t, r.Subuh)
	assert.Equal(t, "04:30", *r.Subuh)
	assert.Equal(t, "05:45", *r.Terbit)
	assert.Equal(t, "11:56", *r.Dzuhur)
	assert.Equal(t, "15:09", *r.Ashar)
	assert.Equal(t, "18:02", *r.Maghrib)
	assert.Equal(t, "19:11", *r.Isya)
}

func TestNormalizeKeepsDhuhaWhenPublished(t *testing.T) {
	t.Parallel()

	times := fullTimes()
	times["Dhuha"] = "06:10"
	records, _ := New(nil).Normalize(crawler.Snapshot{Days: []crawler.SnapshotDay{{Key: "01-03-2024", Times: times}}})
	require.NotNil(t, records[0].Dhuha)
	require.Equal(t, "06:10", *records[0].Dhuha)
}

func TestParseDate(t *testing.T) {
	t.Parallel()

	day, err := ParseDate("29-02-2024")
	require.NoError(t, err)
	require.Equal(t, time.Date(2024, time.February, 29, 0, 0, 0, 0, time.UTC), day)

	_, err = ParseDate("29-02-2023")
	require.ErrorIs(t, err, crawler.ErrDateParse)
}

func TestFilterPeriod(t *testing.T) {
	t.Parallel()

	records := []crawler.ScheduleRecord{
		{Date: "2024-02-29"},
		{Date: "2024-03-01"},
		{Date: "2024-03-31"},
		{Date: "2024-04-01"},
	}
	kept, removed := FilterPeriod(records, crawler.Period{Year: 2024, Month: time.March})
	require.Equal(t, 2, removed)
	require.Equal(t, []crawler.ScheduleRecord{{Date: "2024-03-01"}, {Date: "2024-03-31"}}, kept)
}
