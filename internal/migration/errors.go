package migration

import (
	"errors"
	"fmt"
)

// =============================================================================
// Error Taxonomy
// =============================================================================

// Kind groups domain errors by how the caller should treat them.
type Kind int

const (
	// KindUnknown marks errors that did not originate in the migration domain.
	KindUnknown Kind = iota
	// KindIntegrity covers conflicts, vanished scripts and malformed names.
	// Nothing was mutated.
	KindIntegrity
	// KindSequencing covers targets that are out of order or already current.
	// Nothing was mutated.
	KindSequencing
	// KindExecution covers statement failures. The failing migration was
	// rolled back; earlier migrations of the batch stay committed.
	KindExecution
)

func (k Kind) String() string {
	switch k {
	case KindIntegrity:
		return "integrity"
	case KindSequencing:
		return "sequencing"
	case KindExecution:
		return "execution"
	default:
		return "unknown"
	}
}

// Sentinel errors, matched with errors.Is.
var (
	ErrIncorrectMigrationName   = errors.New("incorrect migration name")
	ErrDuplicateRevision        = errors.New("duplicate migration revision")
	ErrMigrationNotExists       = errors.New("migration does not exist")
	ErrNoMigrationsForExecution = errors.New("no migrations for execution")
	ErrNotEnoughMigrations      = errors.New("not enough applied migrations")
	ErrOldMigration             = errors.New("migration is older than the current revision")
	ErrYoungMigration           = errors.New("migration is younger than the current revision")
	ErrCurrentMigration         = errors.New("migration is the current revision")
	ErrConflictedMigration      = errors.New("migration is in conflict")
	ErrMigrationNotLoaded       = errors.New("migration is not loaded")
	ErrMigrationExecuted        = errors.New("migration is already executed")
)

var sentinelKinds = map[error]Kind{
	ErrIncorrectMigrationName:   KindIntegrity,
	ErrDuplicateRevision:        KindIntegrity,
	ErrMigrationNotExists:       KindIntegrity,
	ErrConflictedMigration:      KindIntegrity,
	ErrNoMigrationsForExecution: KindSequencing,
	ErrNotEnoughMigrations:      KindSequencing,
	ErrOldMigration:             KindSequencing,
	ErrYoungMigration:           KindSequencing,
	ErrCurrentMigration:         KindSequencing,
	ErrMigrationNotLoaded:       KindSequencing,
	ErrMigrationExecuted:        KindSequencing,
}

// MigrationError carries the context of a failed migration operation.
type MigrationError struct {
	Kind      Kind
	Op        string
	Module    string
	Migration string
	Detail    string
	Err       error
}

func (e *MigrationError) Error() string {
	msg := e.Op
	if e.Migration != "" {
		msg += fmt.Sprintf(" %s", e.Migration)
	}
	if e.Module != "" {
		msg += fmt.Sprintf(" (module %s)", e.Module)
	}
	msg += ": " + e.Err.Error()
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

func (e *MigrationError) Unwrap() error {
	return e.Err
}

// Is lets errors.Is(err, &MigrationError{Kind: KindSequencing}) match by kind.
func (e *MigrationError) Is(target error) bool {
	t, ok := target.(*MigrationError)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Err == nil
}

// newError builds a MigrationError whose kind follows the sentinel it wraps.
func newError(op, module, name string, err error, detail string) *MigrationError {
	kind := KindExecution
	for sentinel, k := range sentinelKinds {
		if errors.Is(err, sentinel) {
			kind = k
			break
		}
	}
	return &MigrationError{Kind: kind, Op: op, Module: module, Migration: name, Detail: detail, Err: err}
}

// KindOf classifies any error returned by this package.
func KindOf(err error) Kind {
	var me *MigrationError
	if errors.As(err, &me) {
		return me.Kind
	}
	for sentinel, k := range sentinelKinds {
		if errors.Is(err, sentinel) {
			return k
		}
	}
	return KindUnknown
}

// IsDomainError reports whether err is an expected migration failure rather
// than an unexpected fault.
func IsDomainError(err error) bool {
	return KindOf(err) != KindUnknown
}
