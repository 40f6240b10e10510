// =============================================================================
// MigrateFlow 主入口
// =============================================================================
// 按模块管理的数据库迁移工具
//
// 使用方法:
//
//	migrateflow list                         # 查看迁移状态
//	migrateflow create --label add_users     # 创建空迁移
//	migrateflow generate                     # 根据 Schema 差异生成迁移
//	migrateflow diff                         # 仅打印差异语句
//	migrateflow up                           # 应用所有待执行迁移
//	migrateflow down                         # 回滚最后一次迁移
//	migrateflow rollback 2                   # 回滚最近两次迁移
//	migrateflow fake 20240101120000_init     # 标记为已执行但不运行脚本
//	migrateflow current                      # 查看当前迁移
// =============================================================================

package main

import (
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/BaSui01/migrateflow/config"
)

// =============================================================================
// 📦 版本信息（构建时注入）
// =============================================================================

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// =============================================================================
// 🎯 主函数
// =============================================================================

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// run 执行一条命令并返回退出码
func run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 1 {
		printUsage(stderr)
		return 1
	}

	switch args[0] {
	case "version":
		printVersion(stdout)
		return 0
	case "help", "-h", "--help":
		printUsage(stdout)
		return 0
	}

	if _, ok := commands[args[0]]; !ok {
		fmt.Fprintf(stderr, "Unknown command: %s\n", args[0])
		printUsage(stderr)
		return 1
	}

	if err := runCommand(args[0], args[1:], stdout, stderr); err != nil {
		printError(stderr, err)
		return 1
	}
	return 0
}

// =============================================================================
// 📋 版本和帮助
// =============================================================================

func printVersion(w io.Writer) {
	fmt.Fprintf(w, "MigrateFlow %s\n", Version)
	fmt.Fprintf(w, "  Build Time: %s\n", BuildTime)
	fmt.Fprintf(w, "  Git Commit: %s\n", GitCommit)
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, `MigrateFlow - Database Migration Manager

Usage:
  migrateflow <command> [arguments] [options]

Commands:
  list [module]                List migrations with their state
  create [module]              Create an empty migration
  generate [module]            Generate a migration from schema changes
  diff [module]                Print the queries a generated migration would run
  up [to|module]               Apply ready migrations
  down [to|module]             Revert the last migration, or down to a revision ("0" reverts all)
  rollback [step|module]       Revert the last N migrations (default 1)
  fake [to|module]             Record migrations as applied without running them
  current [module]             Show the last applied migration
  version                      Show version information
  help                         Show this help message

Options:
  --config <path>       Path to configuration file (YAML)
  --db-type <type>      Database type: postgres, mysql, sqlite, sqlite3
  --db-url <url>        Database connection URL
  --module <name>       Migration module (default: none)
  --to <migration>      Target migration name or revision
  --step <n>            Number of migrations to roll back
  --label <label>       Label of a new migration
  --whitelist <list>    Comma-separated tables to compare (globs allowed)
  --blacklist <list>    Comma-separated tables to ignore (globs allowed)
  --up-template <path>  Template for the generated up script
  --down-template <path> Template for the generated down script

Examples:
  migrateflow up
  migrateflow up 20240101120000_init --module billing
  migrateflow down 0
  migrateflow generate --label add_orders --blacklist "tmp_*"
  migrateflow list --config /etc/migrateflow/config.yaml`)
}

// =============================================================================
// 🔧 日志初始化
// =============================================================================

func initLogger(cfg config.LogConfig) *zap.Logger {
	// 解析日志级别
	var level zapcore.Level
	switch cfg.Level {
	case "debug":
		level = zapcore.DebugLevel
	case "info":
		level = zapcore.InfoLevel
	case "warn":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	default:
		level = zapcore.InfoLevel
	}

	// 配置编码器
	var encoderConfig zapcore.EncoderConfig
	if cfg.Format == "console" {
		encoderConfig = zap.NewDevelopmentEncoderConfig()
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		encoderConfig = zap.NewProductionEncoderConfig()
		encoderConfig.TimeKey = "timestamp"
	}
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	encoding := "json"
	if cfg.Format == "console" {
		encoding = "console"
	}

	outputs := cfg.OutputPaths
	if len(outputs) == 0 {
		outputs = []string{"stderr"}
	}

	zapConfig := zap.Config{
		Level:             zap.NewAtomicLevelAt(level),
		Development:       cfg.Format == "console",
		Encoding:          encoding,
		EncoderConfig:     encoderConfig,
		OutputPaths:       outputs,
		ErrorOutputPaths:  []string{"stderr"},
		DisableCaller:     !cfg.EnableCaller,
		DisableStacktrace: !cfg.EnableStacktrace,
	}

	logger, err := zapConfig.Build()
	if err != nil {
		// 回退到基本 logger
		logger, _ = zap.NewProduction()
	}

	return logger
}
