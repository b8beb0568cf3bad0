package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/aqasim81/data-migration-runner/internal/logsink"
	"github.com/aqasim81/data-migration-runner/internal/migration"
	"github.com/aqasim81/data-migration-runner/internal/runner"
)

var errBadQuery = errors.New("invalid query parameter")

// migrationContext overlays the request's query parameters on the defaults.
func (s *Server) migrationContext(c *gin.Context) (migration.Context, error) {
	mc := s.defaults

	if raw, ok := c.GetQuery("dry_run"); ok {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return mc, fmt.Errorf("%w: dry_run=%q", errBadQuery, raw)
		}
		mc.DryRun = v
	}

	if raw, ok := c.GetQuery("verbose"); ok {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return mc, fmt.Errorf("%w: verbose=%q", errBadQuery, raw)
		}
		mc.Verbose = v
	}

	if raw, ok := c.GetQuery("batch_size"); ok {
		v, err := strconv.Atoi(raw)
		if err != nil || v <= 0 {
			return mc, fmt.Errorf("%w: batch_size=%q", errBadQuery, raw)
		}
		mc.BatchSize = v
	}

	if v := c.Query("executed_by"); v != "" {
		mc.ExecutedBy = v
	}

	return mc, nil
}

func (s *Server) runAll(c *gin.Context) {
	mc, err := s.migrationContext(c)
	if err != nil {
		badRequest(c, err)
		return
	}

	s.runBatch(c, mc)
}

func (s *Server) dryRun(c *gin.Context) {
	mc, err := s.migrationContext(c)
	if err != nil {
		badRequest(c, err)
		return
	}

	mc.DryRun = true
	s.runBatch(c, mc)
}

func (s *Server) runBatch(c *gin.Context, mc migration.Context) {
	batch, err := s.runner.RunAll(c.Request.Context(), mc)
	if err != nil {
		s.logger.Error().Err(err).Str("path", c.Request.URL.Path).Msg("batch aborted")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error(), "batch": batch})

		return
	}

	if batch.Success {
		c.JSON(http.StatusOK, batch)
		return
	}

	c.JSON(http.StatusUnprocessableEntity, batch)
}

func (s *Server) runOne(c *gin.Context) {
	mc, err := s.migrationContext(c)
	if err != nil {
		badRequest(c, err)
		return
	}

	res, err := s.runner.Run(c.Request.Context(), c.Param("name"), mc)
	if err != nil {
		s.lookupError(c, err)
		return
	}

	if res.Success {
		c.JSON(http.StatusOK, res)
		return
	}

	c.JSON(http.StatusUnprocessableEntity, res)
}

func (s *Server) status(c *gin.Context) {
	records, err := s.runner.Records(c.Request.Context())
	if err != nil {
		s.internalError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"records": records})
}

func (s *Server) list(c *gin.Context) {
	entries, err := s.runner.List(c.Request.Context())
	if err != nil {
		s.internalError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"migrations": entries})
}

func (s *Server) pending(c *gin.Context) {
	names, err := s.runner.Pending(c.Request.Context(), s.defaults.Environment)
	if err != nil {
		s.internalError(c, err)
		return
	}

	if names == nil {
		names = []string{}
	}

	c.JSON(http.StatusOK, gin.H{"environment": s.defaults.Environment, "pending": names})
}

func (s *Server) verifyAll(c *gin.Context) {
	results, err := s.runner.VerifyCompleted(c.Request.Context())
	if err != nil {
		s.internalError(c, err)
		return
	}

	ok := true

	for _, r := range results {
		if !r.Verified && r.Note == "" {
			ok = false
		}
	}

	c.JSON(http.StatusOK, gin.H{"success": ok, "results": results})
}

func (s *Server) verifyOne(c *gin.Context) {
	name := c.Param("name")

	verified, err := s.runner.Verify(c.Request.Context(), name)
	if err != nil {
		s.lookupError(c, err)
		return
	}

	c.JSON(http.StatusOK, runner.VerifyResult{Name: name, Verified: verified})
}

func (s *Server) rollback(c *gin.Context) {
	mc, err := s.migrationContext(c)
	if err != nil {
		badRequest(c, err)
		return
	}

	res, err := s.runner.Rollback(c.Request.Context(), c.Param("name"), mc)
	if err != nil {
		s.lookupError(c, err)
		return
	}

	if res.Success {
		c.JSON(http.StatusOK, res)
		return
	}

	c.JSON(http.StatusUnprocessableEntity, res)
}

func (s *Server) logs(c *gin.Context) {
	name := c.Param("name")
	logs := s.runner.Logs()

	if all, _ := strconv.ParseBool(c.Query("all")); all {
		files, err := logs.List(name)
		if err != nil {
			s.internalError(c, err)
			return
		}

		if files == nil {
			files = []logsink.LogFile{}
		}

		c.JSON(http.StatusOK, gin.H{"name": name, "files": files})

		return
	}

	latest, err := logs.Latest(name)
	if errors.Is(err, logsink.ErrNoLogs) {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	if err != nil {
		s.internalError(c, err)
		return
	}

	s.writeLog(c, latest)
}

func (s *Server) logFile(c *gin.Context) {
	filename := c.Param("filename")

	if err := logsink.ValidateFileName(filename); err != nil {
		badRequest(c, err)
		return
	}

	content, err := s.runner.Logs().Read(filename)
	if errors.Is(err, logsink.ErrNoLogs) {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	if err != nil {
		s.internalError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"file": filename, "content": string(content)})
}

func (s *Server) writeLog(c *gin.Context, f logsink.LogFile) {
	content, err := s.runner.Logs().Read(f.Name)
	if err != nil {
		s.internalError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"file": f, "content": string(content)})
}

func (s *Server) lookupError(c *gin.Context, err error) {
	if errors.Is(err, runner.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	s.internalError(c, err)
}

func (s *Server) internalError(c *gin.Context, err error) {
	s.logger.Error().Err(err).Str("path", c.Request.URL.Path).Msg("request failed")
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
}
