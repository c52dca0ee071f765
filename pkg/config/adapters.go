package config

import (
	"fmt"

	"github.com/marmos91/dittoserve/pkg/adapter"
	httpadapter "github.com/marmos91/dittoserve/pkg/adapter/http"
	"github.com/marmos91/dittoserve/pkg/metrics"
)

// CreateAdapters creates all enabled protocol adapters from the configuration.
//
// Parameters:
//   - cfg: The complete DittoServe configuration
//   - httpMetrics: Optional HTTP metrics collector (nil = no metrics)
//
// Returns:
//   - []adapter.Adapter: List of enabled adapters ready to be added to the server
//   - error: Any error during adapter creation
func CreateAdapters(cfg *Config, httpMetrics metrics.HTTPMetrics) ([]adapter.Adapter, error) {
	var adapters []adapter.Adapter

	if cfg.Adapters.HTTP.Enabled {
		httpAdapter, err := httpadapter.New(cfg.Adapters.HTTP, httpMetrics)
		if err != nil {
			return nil, fmt.Errorf("failed to create HTTP adapter: %w", err)
		}
		adapters = append(adapters, httpAdapter)
	}

	if len(adapters) == 0 {
		return nil, fmt.Errorf("no adapters enabled in configuration")
	}

	return adapters, nil
}
