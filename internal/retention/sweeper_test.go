package retention

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"sort"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/JakeFAU/jadwal-sholat-crawler/internal/crawler"
)

const root = "/jadwal"

func seed(t *testing.T, fs afero.Fs, city string, entries ...string) {
	t.Helper()
	for _, e := range entries {
		require.NoError(t, afero.WriteFile(fs, filepath.Join(root, city, e, "01.json"), []byte("[]"), 0o644))
	}
}

func years(t *testing.T, fs afero.Fs, city string) []string {
	t.Helper()
	entries, err := afero.ReadDir(fs, filepath.Join(root, city))
	require.NoError(t, err)
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Name())
	}
	sort.Strings(out)
	return out
}

func TestSweepKeepsNewestYears(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	seed(t, fs, "brebes", "2022", "2023", "2024", "2025")

	s, err := New(fs, Config{Root: root, KeepYears: 2}, nil, zaptest.NewLogger(t))
	require.NoError(t, err)

	report, err := s.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Cities)
	assert.Equal(t, []Pruned{{City: "brebes", Year: 2022}, {City: "brebes", Year: 2023}}, report.Pruned)
	assert.Equal(t, []string{"2024", "2025"}, years(t, fs, "brebes"))
}

func TestSweepIsNoOpBelowWindow(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	seed(t, fs, "jakarta", "2025")

	s, err := New(fs, Config{Root: root, KeepYears: 2}, nil, nil)
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		report, err := s.Sweep(context.Background())
		require.NoError(t, err)
		assert.Empty(t, report.Pruned)
	}
	assert.Equal(t, []string{"2025"}, years(t, fs, "jakarta"))
}

func TestSweepIgnoresNonYearEntries(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	seed(t, fs, "brebes", "2021", "2024", "2025", "tmp", "99999")
	require.NoError(t, afero.WriteFile(fs, filepath.Join(root, "brebes", "1999"), []byte("x"), 0o644))
	require.NoError(t, afero.WriteFile(fs, filepath.Join(root, "README"), []byte("x"), 0o644))

	s, err := New(fs, Config{Root: root, KeepYears: 2}, nil, nil)
	require.NoError(t, err)

	report, err := s.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []Pruned{{City: "brebes", Year: 2021}}, report.Pruned)
	assert.Equal(t, []string{"1999", "2024", "2025", "99999", "tmp"}, years(t, fs, "brebes"))
}

func TestSweepMissingRoot(t *testing.T) {
	t.Parallel()

	s, err := New(afero.NewMemMapFs(), Config{Root: root, KeepYears: 2}, nil, nil)
	require.NoError(t, err)
	report, err := s.Sweep(context.Background())
	require.NoError(t, err)
	assert.Zero(t, report.Cities)
}

func TestSweepPrunesMirror(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	seed(t, fs, "brebes", "2022", "2023", "2024")
	seed(t, fs, "jakarta", "2022", "2024")
	mirror := &recordingMirror{}

	s, err := New(fs, Config{Root: root, KeepYears: 1}, mirror, nil)
	require.NoError(t, err)

	report, err := s.Sweep(context.Background())
	require.NoError(t, err)
	assert.Len(t, report.Pruned, 3)
	assert.Equal(t, 3, report.MirrorObjects)
	assert.ElementsMatch(t, []string{"brebes/2022", "brebes/2023", "jakarta/2022"}, mirror.prefixes)
}

func TestSweepMirrorFailureIsNotFatal(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	seed(t, fs, "brebes", "2022", "2024")

	s, err := New(fs, Config{Root: root, KeepYears: 1}, &recordingMirror{err: errors.New("denied")}, nil)
	require.NoError(t, err)
	report, err := s.Sweep(context.Background())
	require.NoError(t, err)
	assert.Len(t, report.Pruned, 1)
	assert.Equal(t, []string{"2024"}, years(t, fs, "brebes"))
}

func TestNewValidation(t *testing.T) {
	t.Parallel()

	_, err := New(afero.NewMemMapFs(), Config{Root: root, KeepYears: 0}, nil, nil)
	require.Error(t, err)
	_, err = New(afero.NewMemMapFs(), Config{KeepYears: 2}, nil, nil)
	require.Error(t, err)
	_, err = New(nil, Config{Root: root, KeepYears: 2}, nil, nil)
	require.Error(t, err)
}

type recordingMirror struct {
	prefixes []string
	err      error
}

func (m *recordingMirror) PutObject(context.Context, string, string, io.Reader) (string, error) {
	return "", nil
}

func (m *recordingMirror) DeletePrefix(_ context.Context, prefix string) (int, error) {
	if m.err != nil {
		return 0, m.err
	}
	m.prefixes = append(m.prefixes, prefix)
	return 1, nil
}

var _ crawler.Mirror = (*recordingMirror)(nil)
