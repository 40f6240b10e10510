package migration

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/BaSui01/migrateflow/internal/database"
	"github.com/BaSui01/migrateflow/internal/schema"
)

// =============================================================================
// Types and Interfaces
// =============================================================================

// Database is the connection the manager migrates. *database.PoolManager
// implements it.
type Database interface {
	DB() *gorm.DB
	Type() database.DatabaseType
	WithTransaction(ctx context.Context, fn database.TransactionFunc) error
}

// ShadowOpener opens the scratch database used to rebuild the schema implied
// by applied migrations.
type ShadowOpener func(target database.DatabaseType, dsn string) (*gorm.DB, error)

// Options configures a Manager.
type Options struct {
	// Table is the records table. Defaults to schema_migrations.
	Table string
	// Dirs maps modules to migration directories.
	Dirs DirResolver
	// ShadowDSN is passed to the shadow opener during generation.
	ShadowDSN string
	// DefaultLabel names migrations created without a label.
	DefaultLabel string
	// UpTemplate and DownTemplate are the default generation templates.
	UpTemplate   string
	DownTemplate string

	Logger     *zap.Logger
	Recorder   Recorder
	OpenShadow ShadowOpener
	Now        func() time.Time
	NewRunID   func() string
}

// Manager coordinates the file index, the record store, the classifier and
// the schema diff for every migration operation.
type Manager struct {
	db           Database
	files        *FileIndex
	store        *RecordStore
	introspector *schema.Introspector
	inst         *instruments
	recorder     Recorder
	logger       *zap.Logger

	shadowDSN    string
	openShadow   ShadowOpener
	defaultLabel string
	upTemplate   string
	downTemplate string
	now          func() time.Time
	newRunID     func() string
}

// NewManager creates a manager and makes sure the records table exists.
func NewManager(ctx context.Context, db Database, opts Options) (*Manager, error) {
	if db == nil {
		return nil, fmt.Errorf("database cannot be nil")
	}
	if opts.Dirs == nil {
		return nil, fmt.Errorf("migration directory resolver cannot be nil")
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Recorder == nil {
		opts.Recorder = nopRecorder{}
	}
	if opts.OpenShadow == nil {
		opts.OpenShadow = database.OpenShadow
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewRunID == nil {
		opts.NewRunID = func() string { return uuid.NewString() }
	}
	if opts.DefaultLabel == "" {
		opts.DefaultLabel = "migration"
	}
	if opts.UpTemplate == "" {
		opts.UpTemplate = DefaultUpTemplate
	}
	if opts.DownTemplate == "" {
		opts.DownTemplate = DefaultDownTemplate
	}

	inst, err := newInstruments()
	if err != nil {
		return nil, fmt.Errorf("failed to create instruments: %w", err)
	}

	m := &Manager{
		db:           db,
		files:        NewFileIndex(opts.Dirs, opts.Logger),
		store:        NewRecordStore(opts.Table, opts.Logger),
		introspector: schema.NewIntrospector(opts.Logger),
		inst:         inst,
		recorder:     opts.Recorder,
		logger:       opts.Logger.With(zap.String("component", "migration_manager")),
		shadowDSN:    opts.ShadowDSN,
		openShadow:   opts.OpenShadow,
		defaultLabel: opts.DefaultLabel,
		upTemplate:   opts.UpTemplate,
		downTemplate: opts.DownTemplate,
		now:          opts.Now,
		newRunID:     opts.NewRunID,
	}

	if err := m.store.EnsureTable(ctx, db.DB()); err != nil {
		return nil, err
	}
	return m, nil
}

// state is a fresh read of one module's files and records.
type state struct {
	files    []Migration
	warnings []string
	records  []Record
	statuses []Status
}

func (s *state) last() (Record, bool) {
	if len(s.records) == 0 {
		return Record{}, false
	}
	return s.records[len(s.records)-1], true
}

func (m *Manager) load(ctx context.Context, module string) (*state, error) {
	files, warnings, err := m.files.List(module)
	if err != nil {
		return nil, err
	}
	records, err := m.store.GetApplied(ctx, m.db.DB(), module)
	if err != nil {
		return nil, err
	}
	return &state{
		files:    files,
		warnings: warnings,
		records:  records,
		statuses: Classify(files, records),
	}, nil
}

// =============================================================================
// Queries
// =============================================================================

// ListMigrations classifies every migration of a module.
func (m *Manager) ListMigrations(ctx context.Context, module string) (*ListResult, error) {
	st, err := m.load(ctx, module)
	if err != nil {
		return nil, err
	}
	m.recorder.SetApplied(module, len(st.records))
	return &ListResult{
		Module:     module,
		Migrations: st.statuses,
		Warnings:   st.warnings,
	}, nil
}

// GetLastMigration returns the most recently applied migration of a module.
func (m *Manager) GetLastMigration(ctx context.Context, module string) (LastMigration, error) {
	rec, err := m.store.GetLast(ctx, m.db.DB(), module)
	if err != nil {
		return LastMigration{}, err
	}
	if rec.Zero() {
		return LastMigration{ID: "0"}, nil
	}
	return LastMigration{ID: strconv.FormatUint(rec.ID, 10), Migration: rec.Migration}, nil
}

// =============================================================================
// Scaffolding
// =============================================================================

// Create writes an empty up/down pair with a revision newer than any known
// revision of the module, and returns the up script path.
func (m *Manager) Create(ctx context.Context, module, label string) (string, error) {
	st, err := m.load(ctx, module)
	if err != nil {
		return "", err
	}
	name, rev, err := m.nextName(st, label)
	if err != nil {
		return "", err
	}

	data := TemplateData{Name: name, Revision: rev, Module: module}
	up, err := renderScript("up", DefaultUpTemplate, data)
	if err != nil {
		return "", err
	}
	down, err := renderScript("down", DefaultDownTemplate, data)
	if err != nil {
		return "", err
	}

	path, _, err := m.files.Write(module, name, up, down)
	if err != nil {
		return "", err
	}
	m.logger.Info("migration created", zap.String("module", module), zap.String("path", path))
	return path, nil
}

func (m *Manager) nextName(st *state, label string) (string, Revision, error) {
	if label == "" {
		label = m.defaultLabel
	}
	if !labelPattern.MatchString(label) {
		return "", 0, newError("create", "", label, ErrIncorrectMigrationName,
			"label must match "+labelPattern.String())
	}

	var latest Revision
	for _, s := range st.statuses {
		if s.Revision > latest {
			latest = s.Revision
		}
	}
	rev := NextRevision(m.now(), latest)
	return fmt.Sprintf("%s_%s", rev, label), rev, nil
}
