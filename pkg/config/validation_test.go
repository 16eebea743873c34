package config

import (
	"strings"
	"testing"
	"time"
)

func TestValidate_ValidConfig(t *testing.T) {
	cfg := GetDefaultConfig()
	if err := Validate(cfg); err != nil {
		t.Errorf("Expected valid config, got error: %v", err)
	}
}

func TestValidate_StructTags(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"invalid log level", func(c *Config) { c.Logging.Level = "TRACE" }, "Level"},
		{"invalid log format", func(c *Config) { c.Logging.Format = "xml" }, "Format"},
		{"port out of range", func(c *Config) { c.Server.Port = 70000 }, "Port"},
		{"negative max clients", func(c *Config) { c.Server.MaxClients = -1 }, "MaxClients"},
		{"negative max quiescent", func(c *Config) { c.Server.MaxQuiescent = -time.Second }, "MaxQuiescent"},
		{"zero shutdown timeout", func(c *Config) { c.Server.ShutdownTimeout = 0 }, "ShutdownTimeout"},
		{"tiny max message", func(c *Config) { c.Server.MaxMessageSize = 8 }, "MaxMessageSize"},
		{"negative accept rate", func(c *Config) { c.Server.AcceptRate = -1 }, "AcceptRate"},
		{"unknown mode", func(c *Config) { c.Server.Mode = "forked" }, "Mode"},
		{"unknown store", func(c *Config) { c.Store.Type = "tape" }, "Type"},
		{"unknown procmap", func(c *Config) { c.ProcMap.Type = "etcd" }, "Type"},
		{"metrics port zero", func(c *Config) { c.Metrics.Port = 0 }, "Port"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := GetDefaultConfig()
			tt.mutate(cfg)

			err := Validate(cfg)
			if err == nil {
				t.Fatal("Expected validation error, got nil")
			}
			if !strings.Contains(err.Error(), tt.field) {
				t.Errorf("Expected error to mention %q, got: %v", tt.field, err)
			}
		})
	}
}

func TestValidate_LowercaseLogLevel(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Logging.Level = "debug"

	if err := Validate(cfg); err != nil {
		t.Errorf("Expected lowercase level to validate, got: %v", err)
	}
}

func TestValidate_CustomRules(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name: "metrics port clashes with server port",
			mutate: func(c *Config) {
				c.Metrics.Enabled = true
				c.Metrics.Port = c.Server.Port
			},
			wantErr: "metrics.port",
		},
		{
			name:    "burst without rate",
			mutate:  func(c *Config) { c.Server.AcceptBurst = 5 },
			wantErr: "server.accept_burst",
		},
		{
			name: "quiescence shorter than accept timeout",
			mutate: func(c *Config) {
				c.Server.AcceptTimeout = 2 * time.Second
				c.Server.MaxQuiescent = time.Second
			},
			wantErr: "server.max_quiescent",
		},
		{
			name: "ttl shorter than register interval",
			mutate: func(c *Config) {
				c.ProcMap.Enabled = true
				c.ProcMap.RegisterInterval = 10 * time.Second
				c.ProcMap.TTL = 5 * time.Second
			},
			wantErr: "procmap.ttl",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := GetDefaultConfig()
			tt.mutate(cfg)

			err := Validate(cfg)
			if err == nil {
				t.Fatal("Expected validation error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Expected error containing %q, got: %v", tt.wantErr, err)
			}
		})
	}
}

func TestValidate_MetricsSamePortDifferentHost(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Metrics.Enabled = true
	cfg.Metrics.Port = cfg.Server.Port
	cfg.Metrics.Host = "127.0.0.1"
	cfg.Server.Host = "10.0.0.1"

	if err := Validate(cfg); err != nil {
		t.Errorf("Expected distinct hosts to share a port, got: %v", err)
	}
}
