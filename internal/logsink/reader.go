package logsink

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"
)

// ErrNoLogs indicates no log files exist for the requested migration.
var ErrNoLogs = errors.New("no log files found")

// ErrInvalidFileName indicates a requested file name that is not a plain log file name.
var ErrInvalidFileName = errors.New("invalid log file name")

// timestampSuffix matches the part of a file name that FileName appends.
const timestampSuffix = `_\d{4}-\d{2}-\d{2}T\d{2}-\d{2}-\d{2}-\d{3}Z(-\d+)?\.log$`

// LogFile describes one log file on disk.
type LogFile struct {
	Name    string    `json:"name"`
	Size    int64     `json:"size"`
	ModTime time.Time `json:"modified_at"`
}

// List returns the log files of the named migration, newest first by
// modification time. A missing directory yields an empty list.
func (d *Dir) List(name string) ([]LogFile, error) {
	pattern, err := regexp.Compile("^" + regexp.QuoteMeta(name) + timestampSuffix)
	if err != nil {
		return nil, fmt.Errorf("building log file pattern for %s: %w", name, err)
	}

	return d.list(pattern)
}

// ListAll returns every log file in the directory, newest first.
func (d *Dir) ListAll() ([]LogFile, error) {
	return d.list(regexp.MustCompile(`^.+` + timestampSuffix))
}

// Latest returns the newest log file of the named migration.
func (d *Dir) Latest(name string) (LogFile, error) {
	files, err := d.List(name)
	if err != nil {
		return LogFile{}, err
	}

	if len(files) == 0 {
		return LogFile{}, fmt.Errorf("migration %s: %w", name, ErrNoLogs)
	}

	return files[0], nil
}

// Read returns the contents of a log file by its literal name. Names that
// could escape the directory are rejected.
func (d *Dir) Read(filename string) ([]byte, error) {
	if err := ValidateFileName(filename); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(filepath.Join(d.path, filename))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("log file %s: %w", filename, ErrNoLogs)
		}

		return nil, fmt.Errorf("reading log file %s: %w", filename, err)
	}

	return data, nil
}

// ValidateFileName rejects anything but a bare "*.log" file name.
func ValidateFileName(filename string) error {
	switch {
	case filename == "",
		strings.Contains(filename, ".."),
		strings.ContainsAny(filename, `/\`),
		strings.ContainsRune(filename, 0),
		filepath.IsAbs(filename),
		filepath.Base(filename) != filename,
		!strings.HasSuffix(filename, fileExt):
		return fmt.Errorf("%w: %q", ErrInvalidFileName, filename)
	default:
		return nil
	}
}

func (d *Dir) list(pattern *regexp.Regexp) ([]LogFile, error) {
	entries, err := os.ReadDir(d.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}

		return nil, fmt.Errorf("reading log directory %s: %w", d.path, err)
	}

	var files []LogFile

	for _, entry := range entries {
		if entry.IsDir() || !pattern.MatchString(entry.Name()) {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			continue // removed between ReadDir and Info
		}

		files = append(files, LogFile{
			Name:    entry.Name(),
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
	}

	sort.SliceStable(files, func(i, j int) bool {
		if files[i].ModTime.Equal(files[j].ModTime) {
			return files[i].Name > files[j].Name
		}

		return files[i].ModTime.After(files[j].ModTime)
	})

	return files, nil
}
