package migration

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DefaultTable is the default name of the records table.
const DefaultTable = "schema_migrations"

// Record is one applied migration. Module is empty for the default module.
type Record struct {
	ID        uint64  `gorm:"primaryKey;autoIncrement"`
	Migration string  `gorm:"size:255;not null"`
	Module    string  `gorm:"size:255;not null;default:''"`
	Revision  uint64  `gorm:"not null;default:0"`
	Checksum  string  `gorm:"size:32"`
	Batch     string  `gorm:"size:36"`
	CreatedAt time.Time
}

// Zero reports whether r is the synthetic pre-migration record.
func (r Record) Zero() bool {
	return r.ID == 0
}

// RecordStore reads and writes migration records. Mutating methods run on the
// handle they are given so callers control the transaction boundary.
type RecordStore struct {
	table  string
	logger *zap.Logger
}

// NewRecordStore creates a store backed by table.
func NewRecordStore(table string, logger *zap.Logger) *RecordStore {
	if table == "" {
		table = DefaultTable
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RecordStore{
		table:  table,
		logger: logger.With(zap.String("component", "record_store")),
	}
}

// Table returns the records table name.
func (s *RecordStore) Table() string {
	return s.table
}

// EnsureTable creates the records table and its unique index if missing.
func (s *RecordStore) EnsureTable(ctx context.Context, db *gorm.DB) error {
	db = db.WithContext(ctx)
	if err := db.Table(s.table).AutoMigrate(&Record{}); err != nil {
		return fmt.Errorf("failed to create table %s: %w", s.table, err)
	}

	index := "idx_" + s.table + "_module_migration"
	if db.Table(s.table).Migrator().HasIndex(&Record{}, index) {
		return nil
	}
	err := db.Exec("CREATE UNIQUE INDEX ? ON ? (?, ?)",
		clause.Table{Name: index},
		clause.Table{Name: s.table},
		clause.Column{Name: "module"},
		clause.Column{Name: "migration"},
	).Error
	if err != nil {
		return fmt.Errorf("failed to create index %s: %w", index, err)
	}
	s.logger.Debug("records table ready", zap.String("table", s.table))
	return nil
}

// scoped limits a query to one module. The default module is stored as ''
// so that the unique index covers it.
func (s *RecordStore) scoped(db *gorm.DB, module string) *gorm.DB {
	return db.Table(s.table).Where("module = ?", module)
}

// GetApplied returns the records of a module in ascending id order.
func (s *RecordStore) GetApplied(ctx context.Context, db *gorm.DB, module string) ([]Record, error) {
	var records []Record
	err := s.scoped(db.WithContext(ctx), module).Order("id ASC").Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load applied migrations: %w", err)
	}
	return records, nil
}

// GetAll returns the records of every module in ascending id order.
func (s *RecordStore) GetAll(ctx context.Context, db *gorm.DB) ([]Record, error) {
	var records []Record
	if err := db.WithContext(ctx).Table(s.table).Order("id ASC").Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to load migration records: %w", err)
	}
	return records, nil
}

// GetLast returns the most recently applied record of a module, or the zero
// record when none is applied.
func (s *RecordStore) GetLast(ctx context.Context, db *gorm.DB, module string) (Record, error) {
	var records []Record
	err := s.scoped(db.WithContext(ctx), module).Order("id DESC").Limit(1).Find(&records).Error
	if err != nil {
		return Record{}, fmt.Errorf("failed to load last migration: %w", err)
	}
	if len(records) == 0 {
		return Record{}, nil
	}
	return records[0], nil
}

// Exists reports whether a migration is recorded for a module.
func (s *RecordStore) Exists(ctx context.Context, db *gorm.DB, module, name string) (bool, error) {
	var count int64
	err := s.scoped(db.WithContext(ctx), module).Where("migration = ?", name).Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to check migration %s: %w", name, err)
	}
	return count > 0, nil
}

// Insert records an applied migration.
func (s *RecordStore) Insert(ctx context.Context, db *gorm.DB, rec *Record) error {
	if err := db.WithContext(ctx).Table(s.table).Create(rec).Error; err != nil {
		return fmt.Errorf("failed to record migration %s: %w", rec.Migration, err)
	}
	return nil
}

// Delete removes the record of a migration.
func (s *RecordStore) Delete(ctx context.Context, db *gorm.DB, module, name string) error {
	res := s.scoped(db.WithContext(ctx), module).Where("migration = ?", name).Delete(&Record{})
	if res.Error != nil {
		return fmt.Errorf("failed to delete record of %s: %w", name, res.Error)
	}
	if res.RowsAffected == 0 {
		return newError("delete", module, name, ErrMigrationNotLoaded, "")
	}
	return nil
}
