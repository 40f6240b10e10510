// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package main 提供 MigrateFlow 命令行入口。

# 概述

cmd/migrateflow 加载 YAML 配置与环境变量，初始化 zap 日志、
OpenTelemetry 与 Prometheus 指标，然后把子命令交给 migration.CLI 执行。
每次调用只执行一条命令并退出。

# 子命令

  - list / current：查看迁移状态与当前迁移
  - create / generate / diff：创建空迁移、根据 Schema 差异生成迁移或仅打印差异
  - up / down / rollback / fake：应用、回滚与伪执行迁移
  - version / help

# 错误输出

领域错误以其分类（integrity / sequencing / execution）为前缀输出到 stderr，
退出码为 1。构建信息 Version、BuildTime、GitCommit 通过 ldflags 注入。
*/
package main
