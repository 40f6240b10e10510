package migration

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/golang-migrate/migrate/v4/source"
	"go.uber.org/zap"
)

const (
	upSuffix   = ".up.sql"
	downSuffix = ".down.sql"
)

var labelPattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_-]*$`)

// DirResolver maps a module to its migration directory. An empty module is
// the default module.
type DirResolver func(module string) string

// FileIndex lists the migrations available on disk for a module.
type FileIndex struct {
	resolve DirResolver
	logger  *zap.Logger
}

// NewFileIndex creates a file index.
func NewFileIndex(resolve DirResolver, logger *zap.Logger) *FileIndex {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FileIndex{
		resolve: resolve,
		logger:  logger.With(zap.String("component", "file_index")),
	}
}

// List scans the module directory and returns its migrations in ascending
// revision order. Malformed files are skipped and returned as warnings. A
// missing directory yields an empty list.
func (f *FileIndex) List(module string) ([]Migration, []string, error) {
	dir := f.resolve(module)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil, nil
		}
		return nil, nil, fmt.Errorf("failed to read migrations directory %s: %w", dir, err)
	}

	var warnings []string
	warn := func(file string, cause error) {
		f.logger.Warn("skipping migration file",
			zap.String("module", module),
			zap.String("file", file),
			zap.Error(cause),
		)
		warnings = append(warnings, fmt.Sprintf("%s: %v", file, cause))
	}

	index := source.NewMigrations()
	byVersion := make(map[uint]*Migration)

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		file := entry.Name()
		if !strings.HasSuffix(file, ".sql") {
			continue
		}

		parsed, err := parseFilename(file)
		if err != nil {
			warn(file, err)
			continue
		}

		path := filepath.Join(dir, file)
		body, err := os.ReadFile(path)
		if err != nil {
			return nil, warnings, fmt.Errorf("failed to read %s: %w", path, err)
		}

		if !index.Append(parsed) {
			return nil, warnings, newError("index", module, file, ErrDuplicateRevision,
				fmt.Sprintf("revision %d has more than one %s script", parsed.Version, parsed.Direction))
		}

		name := strings.TrimSuffix(strings.TrimSuffix(file, upSuffix), downSuffix)
		m, ok := byVersion[parsed.Version]
		if !ok {
			m = &Migration{
				Module:   module,
				Name:     name,
				Revision: Revision(parsed.Version),
				Label:    parsed.Identifier,
			}
			byVersion[parsed.Version] = m
		} else if m.Name != name {
			return nil, warnings, newError("index", module, file, ErrDuplicateRevision,
				fmt.Sprintf("revision %d is shared by %s and %s", parsed.Version, m.Name, name))
		}

		switch parsed.Direction {
		case source.Up:
			m.UpPath = path
			m.Up = string(body)
			m.Checksum = checksum(m.Up)
		case source.Down:
			m.DownPath = path
			m.Down = string(body)
		}
	}

	var migrations []Migration
	for v, ok := index.First(); ok; v, ok = index.Next(v) {
		m := byVersion[v]
		if m.UpPath == "" {
			warn(filepath.Base(m.DownPath), errors.New("down script without up script"))
			continue
		}
		migrations = append(migrations, *m)
	}

	return migrations, warnings, nil
}

// Write creates the up and down scripts of a new migration. Existing files
// are never overwritten.
func (f *FileIndex) Write(module, name, up, down string) (string, string, error) {
	dir := f.resolve(module)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", "", fmt.Errorf("failed to create migrations directory %s: %w", dir, err)
	}

	upPath := filepath.Join(dir, name+upSuffix)
	downPath := filepath.Join(dir, name+downSuffix)

	if err := writeNew(upPath, up); err != nil {
		return "", "", err
	}
	if err := writeNew(downPath, down); err != nil {
		_ = os.Remove(upPath)
		return "", "", err
	}

	f.logger.Info("migration files written",
		zap.String("module", module),
		zap.String("up", upPath),
		zap.String("down", downPath),
	)
	return upPath, downPath, nil
}

// parseFilename validates a migration filename and returns its parsed form.
func parseFilename(file string) (*source.Migration, error) {
	if !strings.HasSuffix(file, upSuffix) && !strings.HasSuffix(file, downSuffix) {
		return nil, fmt.Errorf("%w: expected <revision>_<label>.up.sql or .down.sql", ErrIncorrectMigrationName)
	}
	parsed, err := source.Parse(file)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIncorrectMigrationName, err)
	}
	if !labelPattern.MatchString(parsed.Identifier) {
		return nil, fmt.Errorf("%w: label %q", ErrIncorrectMigrationName, parsed.Identifier)
	}
	return parsed, nil
}

// ValidateName checks a migration name of the form <revision>_<label>.
func ValidateName(name string) error {
	_, err := parseFilename(name + upSuffix)
	return err
}

// NextRevision mints a revision for a new migration. It is the UTC timestamp
// of now, or latest+1 when that is not larger.
func NextRevision(now time.Time, latest Revision) Revision {
	ts, _ := strconv.ParseUint(now.UTC().Format(RevisionLayout), 10, 64)
	if Revision(ts) > latest {
		return Revision(ts)
	}
	return latest + 1
}

func checksum(script string) string {
	return fmt.Sprintf("%016x", xxhash.Sum64String(script))
}

func writeNew(path, content string) error {
	fh, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if _, err := fh.WriteString(content); err != nil {
		fh.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return fh.Close()
}
