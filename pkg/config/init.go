package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// InitConfig writes a commented default configuration to the default path
// and returns that path. An existing file is only replaced when force is
// set.
func InitConfig(force bool) (string, error) {
	path := GetDefaultConfigPath()
	if err := InitConfigToPath(path, force); err != nil {
		return "", err
	}
	return path, nil
}

// InitConfigToPath writes a commented default configuration to path,
// creating parent directories as needed.
func InitConfigToPath(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config file already exists at %s (use force to overwrite)", path)
		}
	}

	content, err := generateYAMLWithComments(GetDefaultConfig())
	if err != nil {
		return fmt.Errorf("failed to generate config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// entry is one key of a generated mapping. value is either a *yaml.Node
// (nested section) or a plain value encoded by yaml.
type entry struct {
	key     string
	value   any
	comment string
}

func mapping(entries ...entry) (*yaml.Node, error) {
	node := &yaml.Node{Kind: yaml.MappingNode}
	for _, e := range entries {
		key := &yaml.Node{Kind: yaml.ScalarNode, Value: e.key, HeadComment: e.comment}

		var val *yaml.Node
		switch v := e.value.(type) {
		case *yaml.Node:
			val = v
		case time.Duration:
			val = &yaml.Node{Kind: yaml.ScalarNode, Value: v.String()}
		default:
			val = &yaml.Node{}
			if err := val.Encode(v); err != nil {
				return nil, fmt.Errorf("encode %s: %w", e.key, err)
			}
		}
		node.Content = append(node.Content, key, val)
	}
	return node, nil
}

// generateYAMLWithComments renders cfg as YAML with a comment on every
// section and on the less obvious keys.
func generateYAMLWithComments(cfg *Config) (string, error) {
	logging, err := mapping(
		entry{"level", cfg.Logging.Level, "DEBUG, INFO, WARN or ERROR"},
		entry{"format", cfg.Logging.Format, "text or json"},
		entry{"output", cfg.Logging.Output, "stdout, stderr or a file path"},
	)
	if err != nil {
		return "", err
	}

	s := cfg.Server
	server, err := mapping(
		entry{"name", s.Name, "Executable name reported by IS_ALIVE (empty: binary name)"},
		entry{"instance", s.Instance, "Instance name (empty: the port number)"},
		entry{"host", s.Host, "Bind address (empty: all interfaces)"},
		entry{"port", s.Port, ""},
		entry{"max_clients", s.MaxClients, "Admission ceiling, 0 = unbounded (DS_SERVER_MAX_CLIENTS overrides)"},
		entry{"max_quiescent", s.MaxQuiescent, "Exit after this long with no activity and no clients, 0 = never"},
		entry{"accept_timeout", s.AcceptTimeout, "Idle hook period"},
		entry{"read_timeout", s.ReadTimeout, ""},
		entry{"write_timeout", s.WriteTimeout, ""},
		entry{"deny_write_timeout", s.DenyWriteTimeout, "Bound on the SERVICE_DENIED reply"},
		entry{"shutdown_timeout", s.ShutdownTimeout, "Wait for in-flight clients before force-closing them"},
		entry{"max_message_size", s.MaxMessageSize, "Largest accepted request frame, in bytes"},
		entry{"max_accept_failures", s.MaxAcceptFailures, "Consecutive accept errors tolerated before exiting"},
		entry{"accept_rate", s.AcceptRate, "Admissions per second, 0 = unlimited"},
		entry{"accept_burst", s.AcceptBurst, ""},
		entry{"mode", s.Mode, "per_connection or inline"},
		entry{"debug", s.Debug, "Data handler failures terminate the server"},
		entry{"verbose", s.Verbose, "Log every request (implies debug)"},
	)
	if err != nil {
		return "", err
	}

	p := cfg.ProcMap
	procmap, err := mapping(
		entry{"enabled", p.Enabled, ""},
		entry{"type", p.Type, "memory or badger"},
		entry{"register_interval", p.RegisterInterval, "Minimum time between heartbeats"},
		entry{"ttl", p.TTL, "Records expire this long after the last heartbeat"},
		entry{"badger", p.Badger, ""},
	)
	if err != nil {
		return "", err
	}

	store, err := mapping(
		entry{"type", cfg.Store.Type, "memory, filesystem or s3"},
		entry{"filesystem", cfg.Store.Filesystem, ""},
		entry{"s3", cfg.Store.S3, "Also accepts endpoint, access_key_id, secret_access_key, max_retries"},
	)
	if err != nil {
		return "", err
	}

	metrics, err := mapping(
		entry{"enabled", cfg.Metrics.Enabled, ""},
		entry{"host", cfg.Metrics.Host, ""},
		entry{"port", cfg.Metrics.Port, ""},
	)
	if err != nil {
		return "", err
	}

	root, err := mapping(
		entry{"logging", logging, "Logging"},
		entry{"server", server, "DsServer listener and lifecycle"},
		entry{"procmap", procmap, "Process-liveness registry"},
		entry{"store", store, "Blob store behind the data handler"},
		entry{"metrics", metrics, "Prometheus endpoint"},
	)
	if err != nil {
		return "", err
	}

	doc := &yaml.Node{
		Kind:        yaml.DocumentNode,
		HeadComment: "DsServer Configuration File\nEnvironment variables DSSERVER_<SECTION>_<KEY> override these values.",
		Content:     []*yaml.Node{root},
	}

	out, err := yaml.Marshal(doc)
	if err != nil {
		return "", err
	}
	return string(out), nil
}
