// Package config 提供 MigrateFlow 的配置管理功能。
//
// 配置按 默认值 → YAML 文件 → 环境变量 的顺序叠加，
// 覆盖目标数据库、迁移目录与记录表、日志、指标和遥测。
package config
