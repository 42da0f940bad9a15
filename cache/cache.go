package cache

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/domino14/shapstack/board"
	"github.com/domino14/shapstack/config"
)

// The cache holds generated reference boards so that regenerating a board
// for a seed that was already seen is free. Cached boards are shared and
// must be treated as read-only; simulators clone them anyway.

type cache struct {
	sync.Mutex
	objects map[string]any
}

type loadFunc func(cfg *config.Config, key string) (any, error)

// GlobalObjectCache is our global object cache, of course.
var GlobalObjectCache *cache

func (c *cache) load(cfg *config.Config, key string, loadFunc loadFunc) error {
	log.Debug().Str("key", key).Msg("loading into cache")

	obj, err := loadFunc(cfg, key)
	if err != nil {
		return err
	}
	c.objects[key] = obj
	return nil
}

func (c *cache) get(cfg *config.Config, key string, loadFunc loadFunc) (any, error) {
	c.Lock()
	defer c.Unlock()
	if obj, ok := c.objects[key]; ok {
		log.Debug().Str("key", key).Msg("getting obj from cache")
		return obj, nil
	}
	if err := c.load(cfg, key, loadFunc); err != nil {
		return nil, err
	}
	return c.objects[key], nil
}

func CreateGlobalObjectCache() {
	GlobalObjectCache = &cache{objects: make(map[string]any)}
}

func Load(cfg *config.Config, name string, loadFunc loadFunc) (any, error) {
	if GlobalObjectCache == nil {
		CreateGlobalObjectCache()
	}
	return GlobalObjectCache.get(cfg, name, loadFunc)
}

func boardKey(seed int64, opts board.GenOptions) string {
	return fmt.Sprintf("board:%d:%dx%d:%d:%d", seed, opts.Width, opts.Height, opts.MaxPieces, opts.HeightBudget)
}

// Board returns the reference board generated from seed with the
// configured generation options.
func Board(cfg *config.Config, seed int64) (*board.Board, error) {
	opts := cfg.GenOptions()
	obj, err := Load(cfg, boardKey(seed, opts), func(cfg *config.Config, key string) (any, error) {
		return board.GenerateFromSeed(seed, opts)
	})
	if err != nil {
		return nil, err
	}
	return obj.(*board.Board), nil
}
