// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 metrics 提供基于 Prometheus 的迁移指标采集能力。

# 核心类型

  - Collector：持有独立 Registry 的指标收集器，记录迁移次数、
    迁移耗时与各模块已应用迁移数量。

# 主要能力

  - 迁移指标：按 module/direction/status 分组的计数与耗时直方图。
  - 状态指标：各模块已应用迁移数量 Gauge、最近一次运行时间戳。
  - 导出：WriteTextfile 以 node_exporter textfile 格式写出，
    适用于一次性运行的命令行场景。
*/
package metrics
