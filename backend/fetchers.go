package backend

import (
	"context"
	"strings"

	"pnp-bridge/cache"
)

// selectorsFor maps a cache category and key to the backend state selectors
// that refresh it. Keys are namespaced "category:name"; the bare name (or
// "all") selects the whole group.
func selectorsFor(cat cache.Category, key string) []string {
	name := key
	if i := strings.IndexByte(key, ':'); i >= 0 {
		name = key[i+1:]
	}
	switch cat {
	case cache.CategoryPosition:
		return []string{"toolhead"}
	case cache.CategoryGPIO:
		if name == "all" || name == "" {
			return []string{"gpio"}
		}
		return []string{"gpio " + name}
	case cache.CategorySensor:
		if name == "all" || name == "" {
			return []string{"heaters", "temperature_sensor"}
		}
		return []string{"temperature_sensor " + name}
	case cache.CategoryFan:
		return []string{"fan"}
	case cache.CategoryPWM:
		return []string{"output_pin"}
	case cache.CategoryActuator:
		return []string{"output_pin"}
	case cache.CategoryPrinterState:
		return []string{"print_stats", "idle_timeout"}
	default:
		return []string{name}
	}
}

// RegisterFetchers wires pull-based cache refresh to backend state queries
// for every hardware category.
func RegisterFetchers(sc *cache.StateCache, b MotionBackend) {
	categories := []cache.Category{
		cache.CategoryPosition,
		cache.CategoryGPIO,
		cache.CategorySensor,
		cache.CategoryFan,
		cache.CategoryPWM,
		cache.CategoryActuator,
		cache.CategoryPrinterState,
	}
	for _, cat := range categories {
		cat := cat
		sc.RegisterFetcher(cat, func(ctx context.Context, key string) (interface{}, error) {
			snap, err := b.QueryState(ctx, selectorsFor(cat, key))
			if err != nil {
				return nil, err
			}
			return map[string]interface{}(snap), nil
		})
	}
}
