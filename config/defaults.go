// =============================================================================
// 📦 MigrateFlow 默认配置
// =============================================================================
// 提供所有配置项的合理默认值
// =============================================================================
package config

import "time"

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Database:  DefaultDatabaseConfig(),
		Migration: DefaultMigrationConfig(),
		Log:       DefaultLogConfig(),
		Metrics:   DefaultMetricsConfig(),
		Telemetry: DefaultTelemetryConfig(),
	}
}

// DefaultDatabaseConfig 返回默认数据库配置
func DefaultDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		Driver:          "sqlite",
		Host:            "localhost",
		Port:            5432,
		User:            "",
		Password:        "",
		Name:            "migrateflow.db",
		SSLMode:         "disable",
		MaxOpenConns:    4,
		MaxIdleConns:    2,
		ConnMaxLifetime: 5 * time.Minute,
	}
}

// DefaultMigrationConfig 返回默认迁移配置
func DefaultMigrationConfig() MigrationConfig {
	return MigrationConfig{
		Dir:          "migrations",
		Modules:      map[string]string{},
		Table:        "schema_migrations",
		DefaultLabel: "migration",
	}
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:            "info",
		Format:           "console",
		OutputPaths:      []string{"stderr"},
		EnableCaller:     false,
		EnableStacktrace: false,
	}
}

// DefaultMetricsConfig 返回默认指标配置
func DefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		Namespace: "migrateflow",
	}
}

// DefaultTelemetryConfig 返回默认遥测配置
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:      false,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "migrateflow",
		SampleRate:   1.0,
	}
}
