// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 database 提供基于 GORM 的数据库适配层，供迁移引擎执行脚本与
读写迁移记录。

# 核心类型

  - DatabaseType：数据库类型（postgres/mysql/sqlite/sqlite3），
    ParseDatabaseType 负责解析别名，NewDialector/Open 构造 GORM 连接。
  - PoolManager：持有 GORM DB 与底层 sql.DB，提供 DB()、Ping()、
    Close() 与 WithTransaction()。
  - StatementError：单条语句失败时返回的错误，保留原始语句。

# 主要能力

  - 方言选择：sqlite 使用纯 Go 的 glebarez 驱动，sqlite3 使用 cgo 驱动。
  - 事务管理：WithTransaction 在单个事务内执行回调，回调出错即回滚。
  - 原样执行：Exec 绕过 GORM 的占位符展开，直接在事务连接上执行脚本语句。
*/
package database
