// Package retention prunes old year directories from the output tree.
package retention

import (
	"context"
	"fmt"
	"path"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/JakeFAU/jadwal-sholat-crawler/internal/crawler"
	"github.com/JakeFAU/jadwal-sholat-crawler/internal/metrics"
)

// Config sets the retention window.
type Config struct {
	Root      string
	KeepYears int
}

// Pruned identifies one removed year directory.
type Pruned struct {
	City crawler.CityID
	Year int
}

// Report summarizes one sweep.
type Report struct {
	Cities int
	Pruned []Pruned
	// MirrorObjects counts objects removed from the mirror.
	MirrorObjects int
}

// Sweeper keeps only the newest KeepYears year directories per city.
type Sweeper struct {
	fs     afero.Fs
	cfg    Config
	mirror crawler.Mirror
	logger *zap.Logger
}

// New constructs a Sweeper. mirror may be nil.
func New(fs afero.Fs, cfg Config, mirror crawler.Mirror, logger *zap.Logger) (*Sweeper, error) {
	if fs == nil {
		return nil, fmt.Errorf("filesystem is required")
	}
	if cfg.Root == "" {
		return nil, fmt.Errorf("output root is required")
	}
	if cfg.KeepYears <= 0 {
		return nil, fmt.Errorf("keep years must be > 0, got %d", cfg.KeepYears)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.Root = filepath.Clean(cfg.Root)
	return &Sweeper{fs: fs, cfg: cfg, mirror: mirror, logger: logger.Named("retention")}, nil
}

// Sweep removes, for every city directory, all but the most recent KeepYears
// year directories. Entries whose name is not a year are left alone. A missing
// root is a no-op.
func (s *Sweeper) Sweep(ctx context.Context) (Report, error) {
	var report Report

	exists, err := afero.DirExists(s.fs, s.cfg.Root)
	if err != nil {
		return report, fmt.Errorf("stat output root: %w", err)
	}
	if !exists {
		return report, nil
	}

	cities, err := afero.ReadDir(s.fs, s.cfg.Root)
	if err != nil {
		return report, fmt.Errorf("list output root: %w", err)
	}

	for _, city := range cities {
		if !city.IsDir() {
			continue
		}
		if err := ctx.Err(); err != nil {
			return report, fmt.Errorf("sweep: %w", err)
		}
		report.Cities++

		pruned, err := s.sweepCity(crawler.CityID(city.Name()))
		report.Pruned = append(report.Pruned, pruned...)
		if err != nil {
			return report, err
		}
	}

	metrics.ObservePruned(len(report.Pruned))
	for _, p := range report.Pruned {
		n := s.unmirror(ctx, p)
		report.MirrorObjects += n
	}
	return report, nil
}

func (s *Sweeper) sweepCity(city crawler.CityID) ([]Pruned, error) {
	dir := filepath.Join(s.cfg.Root, string(city))
	entries, err := afero.ReadDir(s.fs, dir)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", dir, err)
	}

	years := make([]int, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		y, ok := parseYear(e.Name())
		if !ok {
			continue
		}
		years = append(years, y)
	}
	if len(years) <= s.cfg.KeepYears {
		return nil, nil
	}
	sort.Ints(years)

	var pruned []Pruned
	for _, y := range years[:len(years)-s.cfg.KeepYears] {
		target := filepath.Join(dir, strconv.Itoa(y))
		if err := s.fs.RemoveAll(target); err != nil {
			return pruned, fmt.Errorf("remove %s: %w", target, err)
		}
		s.logger.Info("pruned year", zap.String("city", string(city)), zap.Int("year", y))
		pruned = append(pruned, Pruned{City: city, Year: y})
	}
	return pruned, nil
}

func (s *Sweeper) unmirror(ctx context.Context, p Pruned) int {
	if s.mirror == nil {
		return 0
	}
	prefix := path.Join(string(p.City), strconv.Itoa(p.Year))
	n, err := s.mirror.DeletePrefix(ctx, prefix)
	if err != nil {
		metrics.ObserveMirrorError()
		s.logger.Warn("mirror prune failed", zap.String("prefix", prefix), zap.Error(err))
	}
	return n
}

// parseYear accepts four-digit directory names only.
func parseYear(name string) (int, bool) {
	if len(name) != 4 {
		return 0, false
	}
	y, err := strconv.Atoi(name)
	if err != nil || y < 1 {
		return 0, false
	}
	return y, true
}
