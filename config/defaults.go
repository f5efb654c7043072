package config

import "time"

// DefaultConfig returns the engine defaults.
func DefaultConfig() *Config {
	return &Config{
		Server:     DefaultServerConfig(),
		Database:   DefaultDatabaseConfig(),
		Redis:      DefaultRedisConfig(),
		Auth:       DefaultAuthConfig(),
		Generation: DefaultGenerationConfig(),
		Workflow:   DefaultWorkflowConfig(),
		Log:        DefaultLogConfig(),
	}
}

func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPPort:        8080,
		MetricsPort:     9091,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    30 * time.Second,
		ShutdownTimeout: 15 * time.Second,
		RateLimitRPS:    100,
		RateLimitBurst:  200,
	}
}

func DefaultDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		Path:         "flowline.db",
		MaxOpenConns: 10,
		MaxIdleConns: 2,
		ConnLifetime: time.Hour,
	}
}

func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Enabled:      false,
		Addr:         "localhost:6379",
		DB:           0,
		PoolSize:     10,
		MinIdleConns: 2,
	}
}

func DefaultAuthConfig() AuthConfig {
	return AuthConfig{
		Enabled:  false,
		Issuer:   "flowline",
		TokenTTL: 24 * time.Hour,
	}
}

func DefaultGenerationConfig() GenerationConfig {
	return GenerationConfig{
		Timeout:           60 * time.Second,
		MaxAttempts:       3,
		Backoff:           500 * time.Millisecond,
		RequestsPerSecond: 10,
		Burst:             20,
	}
}

func DefaultWorkflowConfig() WorkflowConfig {
	return WorkflowConfig{
		Strategy:            "fewshot",
		SentinelAgent:       "done",
		ConfidenceThreshold: 0,
		MaxSteps:            32,
		RouteTimeout:        15 * time.Second,
		ApprovalTimeout:     10 * time.Minute,
	}
}

func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:            "info",
		Format:           "json",
		OutputPaths:      []string{"stdout"},
		EnableCaller:     true,
		EnableStacktrace: false,
	}
}
