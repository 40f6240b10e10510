package migration

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/BaSui01/migrateflow/internal/database"
	"github.com/BaSui01/migrateflow/internal/schema"
)

// GenerateMigration diffs the live schema against the schema implied by the
// applied migrations. With DryRun, or when there is no difference, the diff is
// returned and nothing is written. Otherwise a new migration pair is rendered
// and GenerateResult.Path holds its up script.
func (m *Manager) GenerateMigration(ctx context.Context, opts GenerateOptions) (res *GenerateResult, err error) {
	res = &GenerateResult{Module: opts.Module}
	ctx, span := m.inst.startOp(ctx, "generate", opts.Module, "")
	defer func() { endOp(span, err) }()

	live, err := m.introspector.Snapshot(ctx, m.db.DB())
	if err != nil {
		return res, fmt.Errorf("failed to read live schema: %w", err)
	}
	base, err := m.replaySnapshot(ctx)
	if err != nil {
		return res, err
	}

	filter := schema.Filter{
		Allow: opts.WhiteList,
		Deny:  append(append([]string{}, opts.BlackList...), m.store.Table()),
	}
	res.Diff = schema.Diff(base, live, filter, schema.DialectOf(m.db.DB()))

	if res.Diff.Empty() {
		m.logger.Info("no schema changes", zap.String("module", opts.Module))
		return res, nil
	}
	if opts.DryRun {
		return res, nil
	}

	st, err := m.load(ctx, opts.Module)
	if err != nil {
		return res, err
	}
	name, rev, err := m.nextName(st, opts.Label)
	if err != nil {
		return res, err
	}

	upSrc, downSrc := opts.UpTemplate, opts.DownTemplate
	if upSrc == "" {
		upSrc = m.upTemplate
	}
	if downSrc == "" {
		downSrc = m.downTemplate
	}

	data := TemplateData{Name: name, Revision: rev, Module: opts.Module, Statements: res.Diff.Up}
	up, err := renderScript("up", upSrc, data)
	if err != nil {
		return res, err
	}
	data.Statements = res.Diff.Down
	down, err := renderScript("down", downSrc, data)
	if err != nil {
		return res, err
	}

	res.Name = name
	res.Path, res.DownPath, err = m.files.Write(opts.Module, name, up, down)
	if err != nil {
		return res, err
	}
	m.logger.Info("migration generated",
		zap.String("module", opts.Module),
		zap.String("path", res.Path),
		zap.Int("statements", len(res.Diff.Up)),
	)
	return res, nil
}

// replaySnapshot rebuilds the schema produced by every applied migration, in
// the order they were applied across all modules, on an empty shadow database.
func (m *Manager) replaySnapshot(ctx context.Context) (*schema.Snapshot, error) {
	shadow, err := m.openShadow(m.db.Type(), m.shadowDSN)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := database.CloseDB(shadow); cerr != nil {
			m.logger.Warn("failed to close shadow database", zap.Error(cerr))
		}
	}()

	existing, err := m.introspector.Snapshot(ctx, shadow)
	if err != nil {
		return nil, fmt.Errorf("failed to read shadow schema: %w", err)
	}
	if len(existing.Tables) > 0 {
		return nil, fmt.Errorf("shadow database must be empty, found tables %v", existing.TableNames())
	}

	records, err := m.store.GetAll(ctx, m.db.DB())
	if err != nil {
		return nil, err
	}

	scripts := make(map[string]map[string]Migration)
	for _, rec := range records {
		module := rec.Module
		files, ok := scripts[module]
		if !ok {
			list, _, err := m.files.List(module)
			if err != nil {
				return nil, err
			}
			files = make(map[string]Migration, len(list))
			for _, f := range list {
				files[f.Name] = f
			}
			scripts[module] = files
		}

		mg, ok := files[rec.Migration]
		if !ok {
			return nil, newError("generate", module, rec.Migration, ErrMigrationNotExists,
				"cannot replay an applied migration without its file")
		}
		if err := replay(ctx, shadow, mg); err != nil {
			return nil, newError("generate", module, rec.Migration, err, "replay on shadow database failed")
		}
	}

	m.logger.Debug("shadow schema rebuilt", zap.Int("migrations", len(records)))
	return m.introspector.Snapshot(ctx, shadow)
}

func replay(ctx context.Context, shadow *gorm.DB, mg Migration) error {
	return shadow.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return execScript(ctx, tx, mg.Up)
	})
}
