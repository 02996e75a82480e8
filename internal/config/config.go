// Package config loads the YAML configuration for the load balancer.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Default values matching the compile-time constants of §6.
const (
	DefaultClientPort       = 5000
	DefaultRegistrationPort = 6001
	DefaultMetricsPort      = 6003
	DefaultPipeBuffer       = 4096
	DefaultHealthInterval   = 3
	DefaultHealthTimeout    = 1
	DefaultDialTimeout      = 2
	DefaultAdminPort        = 9091
)

// Config is the top-level configuration structure.
type Config struct {
	Ports        PortsConfig `yaml:"ports"`
	Dispatcher   DispatchCfg `yaml:"dispatcher"`
	HealthChecks HealthCfg   `yaml:"health_checks"`
	AdminAPI     AdminAPICfg `yaml:"admin_api"`
	Logging      LoggingConfig  `yaml:"logging"`
}

// PortsConfig holds the three listener ports from §4.3 / §6.
type PortsConfig struct {
	Client       int `yaml:"client"`
	Registration int `yaml:"registration"`
	Metrics      int `yaml:"metrics"`
}

// DispatchCfg holds dispatcher tunables.
type DispatchCfg struct {
	DialTimeoutSeconds int `yaml:"dial_timeout_seconds"`
	PipeBufferBytes    int `yaml:"pipe_buffer_bytes"`
}

// HealthCfg holds health checker tunables (spec §4.5 / §6).
type HealthCfg struct {
	IntervalSeconds int  `yaml:"interval_seconds"`
	TimeoutSeconds  int  `yaml:"timeout_seconds"`
	SendProbeFrame  bool `yaml:"send_probe_frame"`
}

// AdminAPICfg controls the introspection HTTP surface.
type AdminAPICfg struct {
	Enabled   bool        `yaml:"enabled"`
	Port      int         `yaml:"port"`
	AuthToken string      `yaml:"auth_token"`
	IPFilter  IPFilterCfg `yaml:"ip_filter"`
}

// IPFilterCfg holds CIDR allow/deny lists for the admin API.
type IPFilterCfg struct {
	AllowList []string `yaml:"allow_list"`
	DenyList  []string `yaml:"deny_list"`
}

// LoggingConfig controls the zerolog wrapper.
type LoggingConfig struct {
	Level         string       `yaml:"level"`
	Format        string       `yaml:"format"`
	IncludeCaller bool         `yaml:"include_caller"`
	RequestID     RequestIDConfig `yaml:"request_id"`
	Trace         TraceConfig     `yaml:"trace"`
}

// RequestIDConfig controls request-ID header injection on the admin API.
type RequestIDConfig struct {
	Enabled bool   `yaml:"enabled"`
	Header  string `yaml:"header"`
}

// TraceConfig controls trace-ID header injection on the admin API.
type TraceConfig struct {
	Enabled bool   `yaml:"enabled"`
	Header  string `yaml:"header"`
}

// LoadConfig loads configuration from the specified YAML file and applies
// the §6 defaults to any zero-valued field.
func LoadConfig(filePath string) (*Config, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

// Default returns a Config with every §6 default applied and no file
// backing it, for the no-config-file CLI surface (spec §6: "Load
// balancer takes no arguments; ports are compile-time constants").
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

func applyDefaults(cfg *Config) {
	if cfg.Ports.Client == 0 {
		cfg.Ports.Client = DefaultClientPort
	}
	if cfg.Ports.Registration == 0 {
		cfg.Ports.Registration = DefaultRegistrationPort
	}
	if cfg.Ports.Metrics == 0 {
		cfg.Ports.Metrics = DefaultMetricsPort
	}
	if cfg.Dispatcher.DialTimeoutSeconds == 0 {
		cfg.Dispatcher.DialTimeoutSeconds = DefaultDialTimeout
	}
	if cfg.Dispatcher.PipeBufferBytes == 0 {
		cfg.Dispatcher.PipeBufferBytes = DefaultPipeBuffer
	}
	if cfg.HealthChecks.IntervalSeconds == 0 {
		cfg.HealthChecks.IntervalSeconds = DefaultHealthInterval
	}
	if cfg.HealthChecks.TimeoutSeconds == 0 {
		cfg.HealthChecks.TimeoutSeconds = DefaultHealthTimeout
	}
	if cfg.AdminAPI.Port == 0 {
		cfg.AdminAPI.Port = DefaultAdminPort
	}
}
