package logsink_test

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aqasim81/data-migration-runner/internal/logsink"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestFileName(t *testing.T) {
	t.Parallel()

	ts := time.Date(2024, 5, 1, 12, 30, 45, 123000000, time.UTC)
	assert.Equal(t, "backfill_users_2024-05-01T12-30-45-123Z.log", logsink.FileName("backfill_users", ts))
}

func TestFileName_convertsToUTC(t *testing.T) {
	t.Parallel()

	loc := time.FixedZone("UTC+2", 2*60*60)
	ts := time.Date(2024, 5, 1, 14, 0, 0, 0, loc)
	assert.Equal(t, "m_2024-05-01T12-00-00-000Z.log", logsink.FileName("m", ts))
}

func TestSink_writesHeaderLinesAndFooter(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	ts := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	d := logsink.NewDir(dir, logsink.WithClock(fixedClock(ts)))

	s := d.Open("backfill_users", "production", false)
	s.Infof("processed %d rows", 42)
	s.Warnf("skipped %s", "row 7")
	s.Errorf("boom")
	s.Debugf("hidden when not verbose")
	s.Close()

	require.Equal(t, "backfill_users_2024-05-01T12-00-00-000Z.log", s.FileName())
	assert.Equal(t, filepath.Join(dir, s.FileName()), s.Path())

	data, err := os.ReadFile(s.Path())
	require.NoError(t, err)

	content := string(data)
	assert.Contains(t, content, "Migration: backfill_users\n")
	assert.Contains(t, content, "Started: 2024-05-01T12:00:00Z\n")
	assert.Contains(t, content, "Environment: production\n")
	assert.Contains(t, content, "[2024-05-01T12:00:00Z] [INFO] processed 42 rows\n")
	assert.Contains(t, content, "[WARN] skipped row 7\n")
	assert.Contains(t, content, "[ERROR] boom\n")
	assert.NotContains(t, content, "hidden when not verbose")
	assert.Contains(t, content, "Completed: 2024-05-01T12:00:00Z\n")

	assert.Less(t, strings.Index(content, "Migration:"), strings.Index(content, "[INFO]"))
	assert.Less(t, strings.Index(content, "[ERROR]"), strings.Index(content, "Completed:"))
}

func TestSink_verboseWritesDebug(t *testing.T) {
	t.Parallel()

	d := logsink.NewDir(t.TempDir())
	s := d.Open("m", "dev", true)
	s.Debugf("detail %d", 1)
	s.Close()

	data, err := os.ReadFile(s.Path())
	require.NoError(t, err)
	assert.Contains(t, string(data), "[DEBUG] detail 1")
}

func TestSink_mirrorsToStructuredLogger(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	d := logsink.NewDir(t.TempDir(), logsink.WithLogger(zerolog.New(&buf)))
	s := d.Open("m", "dev", false)
	s.Infof("hello")
	s.Close()

	assert.Contains(t, buf.String(), `"migration":"m"`)
	assert.Contains(t, buf.String(), `"message":"hello"`)
}

func TestSink_closeIsIdempotentAndStopsWrites(t *testing.T) {
	t.Parallel()

	d := logsink.NewDir(t.TempDir())
	s := d.Open("m", "dev", false)
	s.Close()
	s.Close()
	s.Infof("after close")

	data, err := os.ReadFile(s.Path())
	require.NoError(t, err)
	assert.NotContains(t, string(data), "after close")
	assert.Equal(t, 1, strings.Count(string(data), "Completed:"))
}

func TestDir_openSameInstant_createsSeparateFiles(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	ts := time.Date(2024, 5, 1, 12, 30, 45, 123000000, time.UTC)
	d := logsink.NewDir(dir, logsink.WithClock(fixedClock(ts)))

	first := d.Open("m", "dev", false)
	first.Infof("first run")
	first.Close()

	second := d.Open("m", "dev", false)
	second.Infof("second run")
	second.Close()

	assert.Equal(t, "m_2024-05-01T12-30-45-123Z.log", first.FileName())
	assert.Equal(t, "m_2024-05-01T12-30-45-123Z-1.log", second.FileName())

	data, err := os.ReadFile(first.Path())
	require.NoError(t, err)
	assert.NotContains(t, string(data), "second run")
	assert.Equal(t, 1, strings.Count(string(data), "Migration: m"))

	files, err := d.List("m")
	require.NoError(t, err)
	assert.Len(t, files, 2)
}

func TestSink_unwritableDirectory_swallowsErrors(t *testing.T) {
	t.Parallel()

	// A regular file where the directory should be makes MkdirAll fail.
	blocker := filepath.Join(t.TempDir(), "not-a-dir")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o600))

	var buf bytes.Buffer

	d := logsink.NewDir(filepath.Join(blocker, "logs"), logsink.WithLogger(zerolog.New(&buf)))

	s := d.Open("m", "dev", false)
	assert.NotPanics(t, func() {
		s.Infof("still logged")
		s.Close()
	})

	assert.Empty(t, s.FileName())
	assert.Contains(t, buf.String(), "continuing without a log file")
	assert.Contains(t, buf.String(), "still logged")
}
