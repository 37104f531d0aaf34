// Package config loads configuration for retz-server from
// environment variables and an optional YAML file, env taking
// precedence over the file.
package config

import (
	"fmt"

	"github.com/spf13/viper"
)

// Config holds all configuration values for the application.
type Config struct {
	// Database connection string.
	DatabaseURL string

	// HTTP server port for the controller.
	HTTPPort int

	// Runtime selects the ResourceBroker driver: "docker", "exec" or
	// "kubernetes".
	Runtime string

	// RuntimeWorkDir is the working directory for the "exec" driver.
	RuntimeWorkDir string

	// OTELEndpoint is the OTLP gRPC collector address for tracing.
	OTELEndpoint string
}

var validRuntimes = map[string]bool{
	"docker":     true,
	"exec":       true,
	"kubernetes": true,
}

// Load reads configuration from an optional YAML file at path (skipped
// if path is empty), then environment variables, which win over the
// file.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("http_port", 6161)
	v.SetDefault("runtime", "docker")
	v.SetDefault("otel_endpoint", "localhost:4317")

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	v.SetEnvPrefix("")
	_ = v.BindEnv("database_url", "DATABASE_URL")
	_ = v.BindEnv("http_port", "PORT")
	_ = v.BindEnv("runtime", "RUNTIME")
	_ = v.BindEnv("runtime_workdir", "RUNTIME_WORKDIR")
	_ = v.BindEnv("otel_endpoint", "OTEL_EXPORTER_OTLP_ENDPOINT")

	dbURL := v.GetString("database_url")
	if dbURL == "" {
		return nil, fmt.Errorf("database_url is required (env: DATABASE_URL)")
	}

	runtime := v.GetString("runtime")
	if !validRuntimes[runtime] {
		return nil, fmt.Errorf("invalid runtime %q: must be one of docker, exec, kubernetes", runtime)
	}

	return &Config{
		DatabaseURL:    dbURL,
		HTTPPort:       v.GetInt("http_port"),
		Runtime:        runtime,
		RuntimeWorkDir: v.GetString("runtime_workdir"),
		OTELEndpoint:   v.GetString("otel_endpoint"),
	}, nil
}
