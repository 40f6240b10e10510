package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/migrateflow/config"
	"github.com/BaSui01/migrateflow/internal/metrics"
	"github.com/BaSui01/migrateflow/internal/migration"
	"github.com/BaSui01/migrateflow/internal/telemetry"
)

// =============================================================================
// Migration Commands
// =============================================================================

// options holds the flags shared by every migration command.
type options struct {
	configPath   string
	dbType       string
	dbURL        string
	module       string
	to           string
	step         int
	label        string
	whitelist    string
	blacklist    string
	upTemplate   string
	downTemplate string
	positional   []string
}

type commandFunc func(ctx context.Context, cli *migration.CLI, opts *options) error

var commands = map[string]commandFunc{
	"list": func(ctx context.Context, cli *migration.CLI, opts *options) error {
		return cli.RunList(ctx, opts.module)
	},
	"current": func(ctx context.Context, cli *migration.CLI, opts *options) error {
		return cli.RunCurrent(ctx, opts.module)
	},
	"create": func(ctx context.Context, cli *migration.CLI, opts *options) error {
		return cli.RunCreate(ctx, opts.module, opts.label)
	},
	"generate": func(ctx context.Context, cli *migration.CLI, opts *options) error {
		return cli.RunGenerate(ctx, opts.generateOptions())
	},
	"diff": func(ctx context.Context, cli *migration.CLI, opts *options) error {
		return cli.RunDiff(ctx, opts.generateOptions())
	},
	"up": func(ctx context.Context, cli *migration.CLI, opts *options) error {
		return cli.RunUp(ctx, opts.module, opts.to)
	},
	"down": func(ctx context.Context, cli *migration.CLI, opts *options) error {
		return cli.RunDown(ctx, opts.module, opts.to)
	},
	"rollback": func(ctx context.Context, cli *migration.CLI, opts *options) error {
		return cli.RunRollback(ctx, opts.module, opts.step)
	},
	"fake": func(ctx context.Context, cli *migration.CLI, opts *options) error {
		return cli.RunFake(ctx, opts.module, opts.to)
	},
}

// parseOptions parses flags that may appear before or after positional
// arguments, then resolves the positional argument of the command.
func parseOptions(command string, args []string, stderr io.Writer) (*options, error) {
	opts := &options{}
	fs := flag.NewFlagSet(command, flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&opts.configPath, "config", "", "Path to config file")
	fs.StringVar(&opts.dbType, "db-type", "", "Database type (postgres, mysql, sqlite, sqlite3)")
	fs.StringVar(&opts.dbURL, "db-url", "", "Database connection URL")
	fs.StringVar(&opts.module, "module", "", "Migration module")
	fs.StringVar(&opts.to, "to", "", "Target migration name or revision")
	fs.IntVar(&opts.step, "step", 0, "Number of migrations to roll back")
	fs.StringVar(&opts.label, "label", "", "Label of a new migration")
	fs.StringVar(&opts.whitelist, "whitelist", "", "Comma-separated tables to compare")
	fs.StringVar(&opts.blacklist, "blacklist", "", "Comma-separated tables to ignore")
	fs.StringVar(&opts.upTemplate, "up-template", "", "Template for the generated up script")
	fs.StringVar(&opts.downTemplate, "down-template", "", "Template for the generated down script")

	for {
		if err := fs.Parse(args); err != nil {
			return nil, err
		}
		rest := fs.Args()
		if len(rest) == 0 {
			break
		}
		opts.positional = append(opts.positional, rest[0])
		args = rest[1:]
	}

	if len(opts.positional) > 1 {
		return nil, fmt.Errorf("%s: too many arguments: %s", command, strings.Join(opts.positional, " "))
	}
	if len(opts.positional) == 1 {
		opts.resolvePositional(command, opts.positional[0])
	}
	if opts.step < 0 {
		return nil, fmt.Errorf("%s: --step must not be negative", command)
	}
	return opts, nil
}

// resolvePositional assigns the single positional argument. For up, down and
// fake it is the target when it looks like a migration, otherwise the module.
// For rollback a number is the step.
func (o *options) resolvePositional(command, arg string) {
	switch command {
	case "up", "down", "fake":
		if o.to == "" && looksLikeMigration(arg) {
			o.to = arg
			return
		}
	case "rollback":
		if n, err := strconv.Atoi(arg); err == nil && o.step == 0 {
			o.step = n
			return
		}
	}
	if o.module == "" {
		o.module = arg
	}
}

func looksLikeMigration(arg string) bool {
	if _, err := migration.ParseRevision(arg); err == nil {
		return true
	}
	return migration.ValidateName(arg) == nil
}

func (o *options) generateOptions() migration.GenerateOptions {
	return migration.GenerateOptions{
		Module:       o.module,
		WhiteList:    splitList(o.whitelist),
		BlackList:    splitList(o.blacklist),
		UpTemplate:   o.upTemplate,
		DownTemplate: o.downTemplate,
		Label:        o.label,
	}
}

// loadConfig loads the config file and applies command line overrides.
func loadConfig(opts *options) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if opts.configPath != "" {
		cfg, err = config.NewLoader().WithConfigPath(opts.configPath).Load()
	} else {
		cfg, err = config.LoadFromEnv()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if opts.dbType != "" {
		cfg.Database.Driver = opts.dbType
	}
	if opts.dbURL != "" {
		cfg.Database.URL = opts.dbURL
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// runCommand wires config, logging, telemetry and metrics around one command.
func runCommand(command string, args []string, stdout, stderr io.Writer) error {
	opts, err := parseOptions(command, args, stderr)
	if err != nil {
		return err
	}

	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}

	logger := initLogger(cfg.Log)
	defer logger.Sync()

	providers, err := telemetry.Init(cfg.Telemetry, telemetry.Run{
		Command: command,
		Module:  opts.module,
		Driver:  cfg.Database.Driver,
		Version: Version,
	}, logger)
	if err != nil {
		logger.Warn("failed to initialize telemetry", zap.Error(err))
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := providers.Shutdown(shutdownCtx); err != nil {
			logger.Warn("telemetry shutdown failed", zap.Error(err))
		}
	}()

	collector := metrics.NewCollector(cfg.Metrics.Namespace, logger)
	defer func() {
		if cfg.Metrics.TextfilePath == "" {
			return
		}
		if err := collector.WriteTextfile(cfg.Metrics.TextfilePath); err != nil {
			logger.Warn("failed to write metrics textfile", zap.Error(err))
		}
	}()

	ctx := context.Background()
	mgr, pool, err := migration.NewManagerFromConfig(ctx, cfg, logger, collector)
	if err != nil {
		return fmt.Errorf("failed to create migration manager: %w", err)
	}
	defer pool.Close()

	logger.Debug("running command",
		zap.String("command", command),
		zap.String("module", opts.module),
		zap.String("version", Version),
	)

	cli := migration.NewCLI(mgr)
	cli.SetOutput(stdout)
	return commands[command](ctx, cli, opts)
}

// printError writes err to stderr, prefixed with its kind for domain errors.
func printError(w io.Writer, err error) {
	if errors.Is(err, flag.ErrHelp) {
		return
	}
	if migration.IsDomainError(err) {
		fmt.Fprintf(w, "Error [%s]: %v\n", migration.KindOf(err), err)
		return
	}
	fmt.Fprintf(w, "Error: %v\n", err)
}

func splitList(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
