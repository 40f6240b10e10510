// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 migration 提供按模块管理的数据库迁移能力：扫描迁移文件、读取已应用记录、
计算迁移状态、执行升级/降级，并根据线上 Schema 与已应用迁移的差异生成新迁移。

# 概述

每个模块对应一个迁移目录，文件命名为 <revision>_<label>.up.sql 与
<revision>_<label>.down.sql。已应用的迁移记录在可配置的记录表中
（默认 schema_migrations），默认模块的 module 列为 NULL。

# 核心类型

  - Manager：迁移管理器，提供 ListMigrations / GetLastMigration / Create /
    GenerateMigration / Up / Down / Rollback / Fake。
  - FileIndex：按修订号升序列出磁盘上的迁移，非法文件名作为警告跳过。
  - RecordStore：基于 GORM 的记录表读写，所有写操作在调用方事务内完成。
  - Classify：纯函数，根据文件与记录推导 LOADED / READY / CONFLICT /
    NOT_EXIST 状态。
  - Result：每次变更操作返回的结果，按顺序包含已完成步骤的消息。
  - MigrationError / Kind：带分类的领域错误（integrity / sequencing /
    execution），通过 KindOf 区分预期失败与意外故障。
  - CLI：面向终端的格式化输出层。

# 执行模型

每个迁移在独立事务中执行，失败时仅回滚当前迁移，同一批次中已提交的
迁移保留。核心不做自动重试，也不加跨进程锁。
*/
package migration
