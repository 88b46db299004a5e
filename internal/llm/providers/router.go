// Package providers implements provider adapters and adapter routing.
package providers

import (
	"fmt"

	"github.com/ahrav/convhealth/internal/llm/configuration"
	llmerrors "github.com/ahrav/convhealth/internal/llm/errors"
	"github.com/ahrav/convhealth/internal/llm/transport"
)

// Supported provider identifiers.
const (
	ProviderOpenAI = "openai"
)

// NewRouter creates a router with configured provider adapters.
// Any OpenAI-compatible endpoint can be configured under the openai key.
func NewRouter(configs map[string]configuration.ProviderConfig) (transport.Router, error) {
	adapters := make(map[string]transport.ProviderAdapter)

	for name, cfg := range configs {
		switch name {
		case ProviderOpenAI:
			adapters[name] = NewOpenAIAdapter(cfg)
		default:
			return nil, fmt.Errorf("%w: %s", llmerrors.ErrUnknownProvider, name)
		}
	}
	return &router{adapters: adapters}, nil
}

type router struct {
	adapters map[string]transport.ProviderAdapter
}

// Pick selects the adapter for provider.
func (r *router) Pick(provider, _ string) (transport.ProviderAdapter, error) {
	adapter, ok := r.adapters[provider]
	if !ok {
		return nil, fmt.Errorf("%w: %s", llmerrors.ErrUnknownProvider, provider)
	}
	return adapter, nil
}
