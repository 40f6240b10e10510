package database

import (
	"fmt"

	"gorm.io/gorm"
)

// ShadowMemoryDSN 是 SQLite 目标库未配置影子库时使用的内存库
const ShadowMemoryDSN = "file::memory:"

// OpenShadow 打开与目标库同方言的影子库。
// 影子库用于重放已应用的迁移，dsn 为空时仅 SQLite 目标可回退到内存库。
func OpenShadow(target DatabaseType, dsn string) (*gorm.DB, error) {
	if dsn == "" {
		if !target.IsSQLite() {
			return nil, fmt.Errorf("shadow database dsn is required for %s", target)
		}
		dsn = ShadowMemoryDSN
	}

	db, err := Open(target, dsn, false)
	if err != nil {
		return nil, fmt.Errorf("failed to open shadow database: %w", err)
	}

	if target.IsSQLite() {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("failed to get sql.DB: %w", err)
		}
		// 内存库只在单连接内可见
		sqlDB.SetMaxOpenConns(1)
		sqlDB.SetMaxIdleConns(1)
	}
	return db, nil
}

// CloseDB 关闭 GORM 底层连接
func CloseDB(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
