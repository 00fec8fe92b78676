package cache

import (
	"fmt"
	"time"

	"github.com/sitekit/sitekit/internal/config"
)

// Strategy is a declarative cache strategy choice.
type Strategy string

const (
	StrategyNone        Strategy = config.StrategyNone
	StrategyMemory      Strategy = config.StrategyMemory
	StrategyStorage     Strategy = config.StrategyStorage
	StrategyPessimistic Strategy = config.StrategyPessimistic
)

// ParseStrategy validates a strategy string.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(s) {
	case StrategyNone, StrategyMemory, StrategyStorage, StrategyPessimistic:
		return Strategy(s), nil
	case "":
		return StrategyNone, nil
	default:
		return StrategyNone, fmt.Errorf("invalid cache strategy: %q", s)
	}
}

// Resolve applies the strategy precedence: per-site override, then the
// primary context's configured strategy, then none.
func Resolve(override, primary string) Strategy {
	if s, err := ParseStrategy(override); err == nil && override != "" {
		return s
	}
	if s, err := ParseStrategy(primary); err == nil && primary != "" {
		return s
	}
	return StrategyNone
}

// Factory builds caching behaviors from declarative strategies.
type Factory struct {
	// Directory backs the storage strategy; shared across behaviors so
	// durable entries survive re-initialization.
	Directory string
}

// NewBehavior maps a strategy to a concrete caching behavior. StrategyNone
// yields (nil, nil): the caller must treat a nil behavior as "use the
// uncached client". StrategyPessimistic uses the same mechanism as memory;
// the separation lives in which client handle it is attached to.
func (f *Factory) NewBehavior(strategy Strategy, ttl time.Duration) (Behavior, error) {
	switch strategy {
	case StrategyNone:
		return nil, nil
	case StrategyMemory, StrategyPessimistic:
		return NewMemoryCache(MemoryConfig{TTL: ttl}), nil
	case StrategyStorage:
		return NewStorageCache(StorageConfig{Directory: f.Directory, TTL: ttl})
	default:
		return nil, fmt.Errorf("invalid cache strategy: %q", strategy)
	}
}
