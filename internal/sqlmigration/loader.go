package sqlmigration

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

// filenamePattern matches migration scripts in two formats:
//
//	V{version}_{name}.{up|down|verify}.sql   (e.g., V001_backfill_user_slugs.up.sql)
//	{timestamp}_{name}.{up|down|verify}.sql  (e.g., 20240101120000_backfill_user_slugs.up.sql)
var filenamePattern = regexp.MustCompile( //nolint:gochecknoglobals // compiled once, used by LoadDir
	`^(?:V(\d+)|(\d{14}))_(.+)\.(up|down|verify)\.sql$`,
)

// LoadDir scans a directory for migration scripts and returns them sorted by
// version. Files that do not match the naming pattern are skipped, as are
// down or verify scripts without a matching up script.
func LoadDir(dir string) ([]File, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading migrations directory %s: %w", dir, err)
	}

	files, err := readGroups(scanEntries(entries), dir)
	if err != nil {
		return nil, err
	}

	return Sort(files), nil
}

// scriptSet pairs the scripts sharing a version and name.
type scriptSet struct {
	version    string
	name       string
	upFile     string
	downFile   string
	verifyFile string
}

func scanEntries(entries []os.DirEntry) map[string]*scriptSet {
	grouped := make(map[string]*scriptSet)

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		matches := filenamePattern.FindStringSubmatch(entry.Name())
		if matches == nil {
			continue
		}

		version := matches[1]
		if version == "" {
			version = matches[2]
		}

		key := version + "_" + matches[3]

		set, ok := grouped[key]
		if !ok {
			set = &scriptSet{version: version, name: matches[3]}
			grouped[key] = set
		}

		switch matches[4] {
		case "up":
			set.upFile = entry.Name()
		case "down":
			set.downFile = entry.Name()
		case "verify":
			set.verifyFile = entry.Name()
		}
	}

	return grouped
}

func readGroups(grouped map[string]*scriptSet, dir string) ([]File, error) {
	keys := make([]string, 0, len(grouped))
	for k := range grouped {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	var files []File

	for _, k := range keys {
		set := grouped[k]
		if set.upFile == "" {
			continue // orphan down or verify script
		}

		f, err := readSet(set, dir)
		if err != nil {
			return nil, err
		}

		files = append(files, f)
	}

	return files, nil
}

func readSet(set *scriptSet, dir string) (File, error) {
	upPath := filepath.Join(dir, set.upFile)

	upSQL, err := readScript(upPath)
	if err != nil {
		return File{}, err
	}

	f := File{
		Version:  set.version,
		Name:     set.name,
		UpSQL:    upSQL,
		Checksum: ComputeChecksum(upSQL),
		Path:     upPath,
	}

	if set.downFile != "" {
		if f.DownSQL, err = readScript(filepath.Join(dir, set.downFile)); err != nil {
			return File{}, err
		}
	}

	if set.verifyFile != "" {
		if f.VerifySQL, err = readScript(filepath.Join(dir, set.verifyFile)); err != nil {
			return File{}, err
		}
	}

	return f, nil
}

func readScript(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading migration file %s: %w", path, err)
	}

	return strings.TrimSpace(string(data)), nil
}
