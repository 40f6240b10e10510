package database

import (
	"fmt"
	"strings"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	cgosqlite "gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// =============================================================================
// 🧩 方言选择
// =============================================================================

// DatabaseType 数据库类型
type DatabaseType string

const (
	// DatabaseTypePostgres PostgreSQL
	DatabaseTypePostgres DatabaseType = "postgres"
	// DatabaseTypeMySQL MySQL / MariaDB
	DatabaseTypeMySQL DatabaseType = "mysql"
	// DatabaseTypeSQLite 纯 Go SQLite（glebarez）
	DatabaseTypeSQLite DatabaseType = "sqlite"
	// DatabaseTypeSQLite3 cgo SQLite（mattn/go-sqlite3）
	DatabaseTypeSQLite3 DatabaseType = "sqlite3"
)

// ParseDatabaseType 解析驱动名称，支持常见别名
func ParseDatabaseType(s string) (DatabaseType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "postgres", "postgresql", "pg":
		return DatabaseTypePostgres, nil
	case "mysql", "mariadb":
		return DatabaseTypeMySQL, nil
	case "sqlite":
		return DatabaseTypeSQLite, nil
	case "sqlite3":
		return DatabaseTypeSQLite3, nil
	default:
		return "", fmt.Errorf("unsupported database type: %s", s)
	}
}

// IsSQLite 是否为 SQLite 系列
func (t DatabaseType) IsSQLite() bool {
	return t == DatabaseTypeSQLite || t == DatabaseTypeSQLite3
}

// NewDialector 根据类型与 DSN 构造 GORM 方言
func NewDialector(dbType DatabaseType, dsn string) (gorm.Dialector, error) {
	switch dbType {
	case DatabaseTypePostgres:
		return postgres.Open(dsn), nil
	case DatabaseTypeMySQL:
		return mysql.Open(dsn), nil
	case DatabaseTypeSQLite:
		return sqlite.Open(withSQLitePragmas(dsn)), nil
	case DatabaseTypeSQLite3:
		return cgosqlite.Open(dsn), nil
	default:
		return nil, fmt.Errorf("unsupported database type: %s", dbType)
	}
}

// Open 打开数据库连接；debug 为 true 时输出 GORM SQL 日志
func Open(dbType DatabaseType, dsn string, debug bool) (*gorm.DB, error) {
	dialector, err := NewDialector(dbType, dsn)
	if err != nil {
		return nil, err
	}

	level := gormlogger.Silent
	if debug {
		level = gormlogger.Info
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:                 gormlogger.Default.LogMode(level),
		SkipDefaultTransaction: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}
	return db, nil
}

// withSQLitePragmas 为文件库补充 busy_timeout，内存库原样返回
func withSQLitePragmas(dsn string) string {
	if strings.Contains(dsn, ":memory:") || strings.Contains(dsn, "_pragma=busy_timeout") {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "_pragma=busy_timeout(5000)"
}
