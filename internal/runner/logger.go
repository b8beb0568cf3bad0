package runner

import (
	"github.com/rs/zerolog"

	"github.com/aqasim81/data-migration-runner/internal/migration"
)

// zerologAdapter exposes a zerolog.Logger as a migration.Logger for calls
// that have no per-execution log file, such as standalone verification.
type zerologAdapter struct {
	l zerolog.Logger
}

var _ migration.Logger = zerologAdapter{}

func (z zerologAdapter) Debugf(format string, args ...any) { z.l.Debug().Msgf(format, args...) }
func (z zerologAdapter) Infof(format string, args ...any)  { z.l.Info().Msgf(format, args...) }
func (z zerologAdapter) Warnf(format string, args ...any)  { z.l.Warn().Msgf(format, args...) }
func (z zerologAdapter) Errorf(format string, args ...any) { z.l.Error().Msgf(format, args...) }
