package logsink

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/aqasim81/data-migration-runner/internal/migration"
)

const (
	fileExt         = ".log"
	filePerm        = 0o644
	dirPerm         = 0o755
	separator       = "=================================================="
	timestampLayout = "2006-01-02T15:04:05.000Z07:00"
	maxOpenAttempts = 100
)

var timestampReplacer = strings.NewReplacer(":", "-", ".", "-")

// Option configures a Dir.
type Option func(*Dir)

// WithLogger sets the structured logger every sink mirrors its lines to.
func WithLogger(l zerolog.Logger) Option {
	return func(d *Dir) { d.logger = l }
}

// WithClock overrides the time source (useful for testing).
func WithClock(now func() time.Time) Option {
	return func(d *Dir) { d.now = now }
}

// Dir is the directory holding one log file per migration invocation.
type Dir struct {
	path   string
	logger zerolog.Logger
	now    func() time.Time
}

// NewDir creates a Dir rooted at path. The directory is created lazily on
// the first Open.
func NewDir(path string, opts ...Option) *Dir {
	d := &Dir{
		path:   path,
		logger: zerolog.Nop(),
		now:    time.Now,
	}

	for _, opt := range opts {
		opt(d)
	}

	return d
}

// Path returns the directory path.
func (d *Dir) Path() string {
	return d.path
}

// FileName returns the log file name for a run of name started at t.
func FileName(name string, t time.Time) string {
	return name + "_" + timestampReplacer.Replace(t.UTC().Format(timestampLayout)) + fileExt
}

// create opens a file that did not exist before. When two invocations start
// within the same millisecond the later one gets a "-N" suffix.
func (d *Dir) create(name string, started time.Time) (*os.File, string, error) {
	base := strings.TrimSuffix(FileName(name, started), fileExt)

	for i := 0; i < maxOpenAttempts; i++ {
		filename := base + fileExt
		if i > 0 {
			filename = fmt.Sprintf("%s-%d%s", base, i, fileExt)
		}

		f, err := os.OpenFile(filepath.Join(d.path, filename), os.O_CREATE|os.O_EXCL|os.O_WRONLY|os.O_APPEND, filePerm)
		if err == nil {
			return f, filename, nil
		}

		if !errors.Is(err, fs.ErrExist) {
			return nil, "", err
		}
	}

	return nil, "", fmt.Errorf("%s: %d log files already exist for this instant", base, maxOpenAttempts)
}

// Open starts a new sink for one invocation of the named migration and
// writes its header. It never fails: if the file cannot be created the
// sink keeps mirroring to the structured logger only.
func (d *Dir) Open(name, environment string, verbose bool) *Sink {
	started := d.now()

	s := &Sink{
		name:    name,
		verbose: verbose,
		now:     d.now,
		logger:  d.logger.With().Str("migration", name).Logger(),
	}

	if err := os.MkdirAll(d.path, dirPerm); err != nil {
		s.disable("creating log directory", err)
		return s
	}

	f, filename, err := d.create(name, started)
	if err != nil {
		s.disable("opening log file", err)
		return s
	}

	s.out = f
	s.filename = filename
	s.path = filepath.Join(d.path, filename)

	s.writeRaw(strings.Join([]string{
		separator,
		"Migration: " + name,
		"Started: " + started.UTC().Format(time.RFC3339),
		"Environment: " + environment,
		separator,
	}, "\n") + "\n")

	return s
}

// Sink is the append-only log of one migration invocation. It implements
// migration.Logger. Write failures never propagate to the caller.
type Sink struct {
	mu       sync.Mutex
	name     string
	filename string
	path     string
	verbose  bool
	out      io.WriteCloser
	now      func() time.Time
	logger   zerolog.Logger
	closed   bool
}

var _ migration.Logger = (*Sink)(nil)

// FileName returns the base name of the log file, or "" when the sink
// could not create one.
func (s *Sink) FileName() string {
	return s.filename
}

// Path returns the full path of the log file, or "".
func (s *Sink) Path() string {
	return s.path
}

// Debugf writes a debug line. Debug lines reach the file only in verbose mode.
func (s *Sink) Debugf(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	s.logger.Debug().Msg(msg)

	if s.verbose {
		s.writeLine("DEBUG", msg)
	}
}

// Infof writes an info line.
func (s *Sink) Infof(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	s.logger.Info().Msg(msg)
	s.writeLine("INFO", msg)
}

// Warnf writes a warning line.
func (s *Sink) Warnf(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	s.logger.Warn().Msg(msg)
	s.writeLine("WARN", msg)
}

// Errorf writes an error line.
func (s *Sink) Errorf(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	s.logger.Error().Msg(msg)
	s.writeLine("ERROR", msg)
}

// Close writes the footer and closes the file. Safe to call more than once.
func (s *Sink) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}

	s.closed = true

	if s.out == nil {
		return
	}

	s.writeLocked(strings.Join([]string{
		separator,
		"Completed: " + s.now().UTC().Format(time.RFC3339),
		separator,
	}, "\n") + "\n")

	if s.out == nil {
		return
	}

	if err := s.out.Close(); err != nil {
		s.logger.Error().Err(err).Str("file", s.path).Msg("closing migration log file")
	}

	s.out = nil
}

func (s *Sink) writeLine(level, msg string) {
	s.writeRaw(fmt.Sprintf("[%s] [%s] %s\n", s.now().UTC().Format(time.RFC3339Nano), level, msg))
}

func (s *Sink) writeRaw(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}

	s.writeLocked(text)
}

// writeLocked must be called with mu held.
func (s *Sink) writeLocked(text string) {
	if s.out == nil {
		return
	}

	if _, err := io.WriteString(s.out, text); err != nil {
		s.logger.Error().Err(err).Str("file", s.path).Msg("writing migration log file; continuing without it")
		_ = s.out.Close()
		s.out = nil
	}
}

func (s *Sink) disable(action string, err error) {
	s.logger.Error().Err(err).Msg(action + "; continuing without a log file")
}
