package database

import (
	"context"
	"fmt"

	"gorm.io/gorm"
)

// StatementError 单条语句执行失败
type StatementError struct {
	Statement string
	Err       error
}

func (e *StatementError) Error() string {
	return fmt.Sprintf("statement failed: %v: %s", e.Err, truncate(e.Statement, 120))
}

func (e *StatementError) Unwrap() error {
	return e.Err
}

// Exec 在 tx 的连接上原样执行一条语句，返回受影响行数。
// 语句不经过 GORM 的占位符展开，因此脚本中的 ? 和 @ 保持原样。
func Exec(ctx context.Context, tx *gorm.DB, stmt string) (int64, error) {
	res, err := tx.Statement.ConnPool.ExecContext(ctx, stmt)
	if err != nil {
		return 0, &StatementError{Statement: stmt, Err: err}
	}
	n, err := res.RowsAffected()
	if err != nil {
		// 部分驱动对 DDL 不返回行数
		return 0, nil
	}
	return n, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
