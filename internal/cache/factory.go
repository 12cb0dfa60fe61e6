// ABOUTME: Selects and constructs a cache backend from a workflow's CacheConfig
// ABOUTME: Maps spec.md §6's memory/file/redis options onto the three backend constructors

package cache

import (
	"fmt"

	"github.com/loomrun/loom/pkg/types"
)

// FromConfig builds the Cache backend named by cfg.Type, or nil (caching
// disabled) when cfg.Type is empty. Per spec.md §6 recognised options.
func FromConfig(cfg types.CacheConfig) (Cache, error) {
	switch cfg.Type {
	case "":
		return nil, nil
	case "memory":
		return NewMemory(cfg.MaxSize, cfg.DefaultTTL)
	case "file":
		dir := cfg.CacheDir
		if dir == "" {
			dir = "./.loom-cache"
		}
		return NewFile(dir, cfg.DefaultTTL, true)
	case "redis":
		addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
		return NewRedis(addr, RedisConfig{
			Host:           cfg.Host,
			Port:           cfg.Port,
			DB:             cfg.DB,
			Password:       cfg.Password,
			DefaultTTL:     cfg.DefaultTTL,
			KeyPrefix:      cfg.KeyPrefix,
			MaxConnections: cfg.MaxConnections,
		}), nil
	default:
		return nil, types.NewValidationError("cache.type", fmt.Sprintf("unknown cache backend '%s'", cfg.Type), nil)
	}
}
