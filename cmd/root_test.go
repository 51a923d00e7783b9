package cmd

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/jadwal-sholat-crawler/internal/config"
	"github.com/JakeFAU/jadwal-sholat-crawler/internal/crawler"
	"github.com/JakeFAU/jadwal-sholat-crawler/internal/retention"
)

type fakeApp struct {
	runErr   error
	ran      bool
	swept    bool
	closed   int
	sawCfg   config.Config
	sweepErr error
}

func (f *fakeApp) Run(context.Context) (crawler.Summary, error) {
	f.ran = true
	return crawler.Summary{}, f.runErr
}

func (f *fakeApp) Sweep(context.Context) (retention.Report, error) {
	f.swept = true
	return retention.Report{Cities: 2, Pruned: []retention.Pruned{{City: "brebes", Year: 2021}}}, f.sweepErr
}

func (f *fakeApp) Close() { f.closed++ }

func factoryFor(f *fakeApp) appFactory {
	return func(_ context.Context, cfg config.Config, _ *zap.Logger) (App, error) {
		f.sawCfg = cfg
		return f, nil
	}
}

func writeConfig(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := "crawler:\n  mode: backfill\n  workers: 4\nlogging:\n  development: false\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestRootRunsCrawl(t *testing.T) {
	t.Parallel()

	f := &fakeApp{}
	cmd := newRootCmd(factoryFor(f))
	cmd.SetArgs([]string{"--config", writeConfig(t)})

	require.NoError(t, cmd.ExecuteContext(context.Background()))
	assert.True(t, f.ran)
	assert.False(t, f.swept)
	assert.Equal(t, 1, f.closed)
	assert.Equal(t, crawler.ModeBackfill, f.sawCfg.Mode())
	assert.Equal(t, 4, f.sawCfg.Crawler.Workers)
}

func TestRootReturnsRunError(t *testing.T) {
	t.Parallel()

	f := &fakeApp{runErr: crawler.ErrNoCities}
	cmd := newRootCmd(factoryFor(f))
	cmd.SetArgs([]string{"--config", writeConfig(t)})

	err := cmd.ExecuteContext(context.Background())
	require.ErrorIs(t, err, crawler.ErrNoCities)
	assert.Equal(t, 1, f.closed)
}

func TestRootRejectsPositionalArgs(t *testing.T) {
	t.Parallel()

	f := &fakeApp{}
	cmd := newRootCmd(factoryFor(f))
	cmd.SetArgs([]string{"brebes"})

	require.Error(t, cmd.ExecuteContext(context.Background()))
	assert.False(t, f.ran)
}

func TestRootConfigErrors(t *testing.T) {
	t.Parallel()

	f := &fakeApp{}
	cmd := newRootCmd(factoryFor(f))
	cmd.SetArgs([]string{"--config", filepath.Join(t.TempDir(), "missing.yaml")})

	err := cmd.ExecuteContext(context.Background())
	require.ErrorContains(t, err, "load config")
	assert.False(t, f.ran)
}

func TestRootFactoryError(t *testing.T) {
	t.Parallel()

	boom := errors.New("bucket unreachable")
	cmd := newRootCmd(func(context.Context, config.Config, *zap.Logger) (App, error) {
		return nil, boom
	})
	cmd.SetArgs([]string{"--config", writeConfig(t)})

	require.ErrorIs(t, cmd.ExecuteContext(context.Background()), boom)
}

func TestSweepCommand(t *testing.T) {
	t.Parallel()

	f := &fakeApp{}
	cmd := newRootCmd(factoryFor(f))
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"sweep", "--config", writeConfig(t)})

	require.NoError(t, cmd.ExecuteContext(context.Background()))
	assert.True(t, f.swept)
	assert.False(t, f.ran)
	assert.Equal(t, 1, f.closed)
	assert.Contains(t, out.String(), "pruned 1 year(s) across 2 cities")
}
