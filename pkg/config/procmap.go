package config

import (
	"context"
	"fmt"

	"github.com/marmos91/dsserver/pkg/procmap"
	procbadger "github.com/marmos91/dsserver/pkg/procmap/badger"
	procmemory "github.com/marmos91/dsserver/pkg/procmap/memory"
	"github.com/mitchellh/mapstructure"
)

// CreateProcessRegistry builds the process registry selected by cfg.Type.
func CreateProcessRegistry(ctx context.Context, cfg *ProcMapConfig) (procmap.Registry, error) {
	switch cfg.Type {
	case "memory":
		return procmemory.New(cfg.TTL), nil
	case "badger":
		var badgerCfg struct {
			DBPath   string `mapstructure:"db_path"`
			InMemory bool   `mapstructure:"in_memory"`
		}
		if err := mapstructure.Decode(cfg.Badger, &badgerCfg); err != nil {
			return nil, fmt.Errorf("invalid badger config: %w", err)
		}
		if badgerCfg.DBPath == "" && !badgerCfg.InMemory {
			return nil, fmt.Errorf("badger db_path is required")
		}

		reg, err := procbadger.New(ctx, procbadger.Config{
			DBPath:   badgerCfg.DBPath,
			InMemory: badgerCfg.InMemory,
			TTL:      cfg.TTL,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to open badger database: %w", err)
		}
		return reg, nil
	default:
		return nil, fmt.Errorf("unknown procmap type: %q", cfg.Type)
	}
}
