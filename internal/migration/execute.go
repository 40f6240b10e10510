package migration

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/BaSui01/migrateflow/internal/database"
)

const (
	directionUp   = "up"
	directionDown = "down"
	directionFake = "fake"
)

// =============================================================================
// Upgrade
// =============================================================================

// Up applies every READY migration of a module up to and including to, or
// all of them when to is empty. Each migration commits on its own; on failure
// the returned result lists the migrations that were committed.
func (m *Manager) Up(ctx context.Context, module, to string) (res *Result, err error) {
	res = &Result{Module: module, RunID: m.newRunID()}
	ctx, span := m.inst.startOp(ctx, directionUp, module, res.RunID)
	defer func() { endOp(span, err) }()

	st, err := m.load(ctx, module)
	if err != nil {
		return res, err
	}
	pending, err := planUp("up", st, module, to)
	if err != nil {
		return res, err
	}

	for _, mg := range pending {
		if err := m.apply(ctx, res, mg, false); err != nil {
			return res, err
		}
	}
	m.recorder.SetApplied(module, len(st.records)+len(pending))
	return res, nil
}

// Fake records every READY migration up to to without running its script.
func (m *Manager) Fake(ctx context.Context, module, to string) (res *Result, err error) {
	res = &Result{Module: module, RunID: m.newRunID()}
	ctx, span := m.inst.startOp(ctx, directionFake, module, res.RunID)
	defer func() { endOp(span, err) }()

	st, err := m.load(ctx, module)
	if err != nil {
		return res, err
	}
	pending, err := planUp("fake", st, module, to)
	if err != nil {
		return res, err
	}

	for _, mg := range pending {
		if err := m.apply(ctx, res, mg, true); err != nil {
			return res, err
		}
	}
	m.recorder.SetApplied(module, len(st.records)+len(pending))
	return res, nil
}

// planUp selects the READY migrations to apply, in ascending revision order.
func planUp(op string, st *state, module, to string) ([]Migration, error) {
	var limit Revision
	bounded := to != ""

	if bounded {
		target, ok := findStatus(st.statuses, to)
		if !ok {
			return nil, newError(op, module, to, ErrMigrationNotExists, "")
		}
		switch target.Type {
		case Loaded:
			if op == "fake" {
				return nil, newError(op, module, target.Name, ErrConflictedMigration, "already applied")
			}
			if last, _ := st.last(); last.Migration == target.Name {
				return nil, newError(op, module, target.Name, ErrCurrentMigration, "")
			}
			return nil, newError(op, module, target.Name, ErrOldMigration, "")
		case Conflict:
			return nil, newError(op, module, target.Name, ErrConflictedMigration, "")
		case NotExist:
			return nil, newError(op, module, target.Name, ErrMigrationNotExists, "migration file is missing")
		}
		limit = target.Revision
	}

	var pending []Migration
	for _, s := range st.statuses {
		if bounded && s.Revision > limit {
			break
		}
		switch s.Type {
		case Conflict:
			return nil, newError(op, module, s.Name, ErrConflictedMigration,
				"an earlier revision is unapplied while a later one is applied")
		case Ready:
			pending = append(pending, *s.Migration)
		}
	}

	if len(pending) == 0 {
		return nil, newError(op, module, "", ErrNoMigrationsForExecution, "")
	}
	return pending, nil
}

// apply runs one migration in its own transaction and records it.
func (m *Manager) apply(ctx context.Context, res *Result, mg Migration, fake bool) error {
	direction := directionUp
	if fake {
		direction = directionFake
	}
	start := time.Now()
	ctx, span := m.inst.startStep(ctx, direction, mg)

	err := m.db.WithTransaction(ctx, func(tx *gorm.DB) error {
		exists, err := m.store.Exists(ctx, tx, mg.Module, mg.Name)
		if err != nil {
			return err
		}
		if exists {
			return ErrMigrationExecuted
		}
		if !fake {
			if err := execScript(ctx, tx, mg.Up); err != nil {
				return err
			}
		}
		return m.store.Insert(ctx, tx, &Record{
			Migration: mg.Name,
			Module:    mg.Module,
			Revision:  uint64(mg.Revision),
			Checksum:  mg.Checksum,
			Batch:     res.RunID,
			CreatedAt: m.now().UTC(),
		})
	})

	elapsed := time.Since(start)
	m.inst.endStep(ctx, span, direction, mg, elapsed, err)
	m.observe(mg.Module, direction, elapsed, err)

	if err != nil {
		m.logger.Error("migration failed",
			zap.String("module", mg.Module),
			zap.String("migration", mg.Name),
			zap.String("direction", direction),
			zap.String("run_id", res.RunID),
			zap.Error(err),
		)
		return newError(direction, mg.Module, mg.Name, err, "")
	}

	if fake {
		res.addf("Fake upgrade to revision `%s`", mg.Name)
	} else {
		res.addf("Upgrade to revision `%s`", mg.Name)
	}
	res.Applied = append(res.Applied, mg.Name)
	m.logger.Info("migration applied",
		zap.String("module", mg.Module),
		zap.String("migration", mg.Name),
		zap.String("direction", direction),
		zap.Duration("duration", elapsed),
		zap.String("run_id", res.RunID),
	)
	return nil
}

// =============================================================================
// Downgrade
// =============================================================================

// Down reverts applied migrations of a module in descending order down to,
// but not including, to. An empty to reverts the last applied migration and
// "0" reverts all of them.
func (m *Manager) Down(ctx context.Context, module, to string) (res *Result, err error) {
	res = &Result{Module: module, RunID: m.newRunID()}
	ctx, span := m.inst.startOp(ctx, directionDown, module, res.RunID)
	defer func() { endOp(span, err) }()

	st, err := m.load(ctx, module)
	if err != nil {
		return res, err
	}
	plan, err := planDown(st, module, to)
	if err != nil {
		return res, err
	}
	return res, m.revertAll(ctx, res, st, plan)
}

// Rollback reverts the step most recently applied migrations. A zero step
// means one.
func (m *Manager) Rollback(ctx context.Context, module string, step int) (res *Result, err error) {
	res = &Result{Module: module, RunID: m.newRunID()}
	ctx, span := m.inst.startOp(ctx, "rollback", module, res.RunID)
	defer func() { endOp(span, err) }()

	if step < 0 {
		return res, fmt.Errorf("step must be positive, got %d", step)
	}
	if step == 0 {
		step = 1
	}

	st, err := m.load(ctx, module)
	if err != nil {
		return res, err
	}
	if len(st.records) == 0 {
		return res, newError("rollback", module, "", ErrNoMigrationsForExecution, "")
	}
	if len(st.records) < step {
		return res, newError("rollback", module, "", ErrNotEnoughMigrations,
			fmt.Sprintf("%d requested, %d applied", step, len(st.records)))
	}
	return res, m.revertAll(ctx, res, st, reversed(st.records[len(st.records)-step:]))
}

// planDown selects the records to revert, newest first.
func planDown(st *state, module, to string) ([]Record, error) {
	last, ok := st.last()
	if !ok {
		return nil, newError("down", module, to, ErrNoMigrationsForExecution, "")
	}

	switch to {
	case "":
		return []Record{last}, nil
	case "0":
		return reversed(st.records), nil
	}

	target, ok := findStatus(st.statuses, to)
	if !ok {
		return nil, newError("down", module, to, ErrMigrationNotExists, "")
	}
	if target.Type == Ready || target.Type == Conflict {
		if target.Revision > recordRevision(last) {
			return nil, newError("down", module, target.Name, ErrYoungMigration, "")
		}
		return nil, newError("down", module, target.Name, ErrMigrationNotLoaded, "")
	}
	if target.Name == last.Migration {
		return nil, newError("down", module, target.Name, ErrCurrentMigration, "")
	}

	for i, rec := range st.records {
		if rec.Migration == target.Name {
			return reversed(st.records[i+1:]), nil
		}
	}
	return nil, newError("down", module, target.Name, ErrMigrationNotLoaded, "")
}

// revertAll checks that every script is still on disk before reverting
// anything, then reverts the plan in order.
func (m *Manager) revertAll(ctx context.Context, res *Result, st *state, plan []Record) error {
	byName := make(map[string]Migration, len(st.files))
	for _, f := range st.files {
		byName[f.Name] = f
	}

	steps := make([]Migration, 0, len(plan))
	for _, rec := range plan {
		mg, ok := byName[rec.Migration]
		if !ok {
			return newError("down", rec.Module, rec.Migration, ErrMigrationNotExists,
				"applied migration has no file")
		}
		steps = append(steps, mg)
	}

	for _, mg := range steps {
		if err := m.revert(ctx, res, mg); err != nil {
			return err
		}
	}
	m.recorder.SetApplied(res.Module, len(st.records)-len(steps))
	return nil
}

// revert runs the down script of one migration in its own transaction and
// removes its record.
func (m *Manager) revert(ctx context.Context, res *Result, mg Migration) error {
	if !mg.HasDown() {
		m.logger.Warn("migration has no down script, only its record is removed",
			zap.String("module", mg.Module),
			zap.String("migration", mg.Name),
		)
	}

	start := time.Now()
	ctx, span := m.inst.startStep(ctx, directionDown, mg)

	err := m.db.WithTransaction(ctx, func(tx *gorm.DB) error {
		exists, err := m.store.Exists(ctx, tx, mg.Module, mg.Name)
		if err != nil {
			return err
		}
		if !exists {
			return ErrMigrationNotLoaded
		}
		if err := execScript(ctx, tx, mg.Down); err != nil {
			return err
		}
		return m.store.Delete(ctx, tx, mg.Module, mg.Name)
	})

	elapsed := time.Since(start)
	m.inst.endStep(ctx, span, directionDown, mg, elapsed, err)
	m.observe(mg.Module, directionDown, elapsed, err)

	if err != nil {
		m.logger.Error("migration revert failed",
			zap.String("module", mg.Module),
			zap.String("migration", mg.Name),
			zap.String("run_id", res.RunID),
			zap.Error(err),
		)
		return newError(directionDown, mg.Module, mg.Name, err, "")
	}

	res.addf("Downgrade from revision `%s`", mg.Name)
	res.Reverted = append(res.Reverted, mg.Name)
	m.logger.Info("migration reverted",
		zap.String("module", mg.Module),
		zap.String("migration", mg.Name),
		zap.Duration("duration", elapsed),
		zap.String("run_id", res.RunID),
	)
	return nil
}

// =============================================================================
// Helpers
// =============================================================================

func execScript(ctx context.Context, tx *gorm.DB, script string) error {
	for _, stmt := range SplitStatements(tx.Dialector.Name(), script) {
		if _, err := database.Exec(ctx, tx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func (m *Manager) observe(module, direction string, d time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.recorder.ObserveMigration(module, direction, status, d)
}

func reversed(records []Record) []Record {
	out := make([]Record, len(records))
	for i, rec := range records {
		out[len(records)-1-i] = rec
	}
	return out
}
