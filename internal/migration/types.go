package migration

import (
	"fmt"
	"strconv"

	"github.com/BaSui01/migrateflow/internal/schema"
)

// =============================================================================
// Revision
// =============================================================================

// Revision is the ordered identifier encoded at the front of a migration
// filename. New revisions are UTC timestamps formatted as 20060102150405.
type Revision uint64

// RevisionLayout is the time layout used to mint new revisions.
const RevisionLayout = "20060102150405"

// ParseRevision parses the numeric revision prefix of a migration name.
func ParseRevision(s string) (Revision, error) {
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: revision %q is not an unsigned integer", ErrIncorrectMigrationName, s)
	}
	return Revision(v), nil
}

func (r Revision) String() string {
	return strconv.FormatUint(uint64(r), 10)
}

// =============================================================================
// Classification
// =============================================================================

// Classification is the derived state of a migration. It is computed on every
// listing and never stored.
type Classification int

const (
	// Ready means the file exists, it is not applied, and nothing later has
	// been applied.
	Ready Classification = iota + 1
	// Loaded means the file exists and its record is present.
	Loaded
	// Conflict means the file is unapplied but a later revision is applied.
	Conflict
	// NotExist means a record is present but its file vanished.
	NotExist
)

func (c Classification) String() string {
	switch c {
	case Ready:
		return "READY"
	case Loaded:
		return "LOADED"
	case Conflict:
		return "CONFLICT"
	case NotExist:
		return "NOT_EXIST"
	default:
		return "UNKNOWN"
	}
}

// Prefix is the short marker used by the list output.
func (c Classification) Prefix() string {
	switch c {
	case Ready:
		return "R"
	case Loaded:
		return "L"
	case Conflict:
		return "C"
	case NotExist:
		return "LN"
	default:
		return "?"
	}
}

// =============================================================================
// Migration
// =============================================================================

// Migration is one revision available on disk.
type Migration struct {
	Module   string
	Name     string
	Revision Revision
	Label    string
	UpPath   string
	DownPath string
	Up       string
	Down     string
	Checksum string
}

// HasDown reports whether the migration ships a down script.
func (m Migration) HasDown() bool {
	return m.DownPath != ""
}

// Status is one line of a listing: a migration name with its classification.
type Status struct {
	Name     string
	Revision Revision
	Type     Classification
	// Modified is set for LOADED migrations whose up script changed after
	// it was applied.
	Modified  bool
	Migration *Migration
	Record    *Record
}

// ListResult is the outcome of ListMigrations.
type ListResult struct {
	Module     string
	Migrations []Status
	// Warnings holds files that were skipped while scanning.
	Warnings []string
}

// Count returns the number of migrations with classification c.
func (l ListResult) Count(c Classification) int {
	n := 0
	for _, s := range l.Migrations {
		if s.Type == c {
			n++
		}
	}
	return n
}

// LastMigration is the most recently applied migration of a module. ID "0"
// means nothing is applied.
type LastMigration struct {
	ID        string
	Migration string
}

// None reports whether the module is at the pre-migration state.
func (l LastMigration) None() bool {
	return l.ID == "0"
}

// =============================================================================
// Results
// =============================================================================

// Result is returned by every mutating operation. Messages lists completed
// steps in order and is populated even when the operation fails part way.
type Result struct {
	Module   string
	RunID    string
	Messages []string
	Applied  []string
	Reverted []string
}

func (r *Result) addf(format string, args ...any) {
	r.Messages = append(r.Messages, fmt.Sprintf(format, args...))
}

// GenerateOptions controls GenerateMigration.
type GenerateOptions struct {
	Module string
	// BlackList and WhiteList restrict the compared tables. Entries may be
	// path.Match patterns. The blacklist wins on overlap.
	BlackList []string
	WhiteList []string
	// DryRun returns the diff without writing files.
	DryRun bool
	// UpTemplate and DownTemplate override the text/template sources.
	UpTemplate   string
	DownTemplate string
	Label        string
}

// GenerateResult is the outcome of GenerateMigration. Path is empty when
// nothing was written.
type GenerateResult struct {
	Module   string
	Name     string
	Path     string
	DownPath string
	Diff     schema.Result
}

// NoChanges reports whether the live schema matched the applied revisions.
func (g *GenerateResult) NoChanges() bool {
	return g.Diff.Empty()
}
