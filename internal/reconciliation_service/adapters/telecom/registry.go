package telecom

import (
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"sync"

	"github.com/numberport/golang_services/internal/core_porting/domain"
	"github.com/numberport/golang_services/internal/platform/config"
)

// Registry resolves an operator client by the request's new-provider name.
type Registry struct {
	mu      sync.RWMutex
	clients map[string]Client
}

func NewRegistry() *Registry {
	return &Registry{clients: make(map[string]Client)}
}

// NewRegistryFromConfig builds HTTP clients for every operator with both a
// base URL and an API key. Incomplete entries are logged and skipped.
func NewRegistryFromConfig(cfgs map[string]config.TelecomConfig, httpClient *http.Client, logger *slog.Logger) *Registry {
	r := NewRegistry()
	for name, cfg := range cfgs {
		if cfg.BaseURL == "" || cfg.APIKey == "" {
			logger.Warn("Telecom provider configuration incomplete, marking unavailable", "telecom_provider", name)
			continue
		}
		r.Register(name, NewHTTPClient(key(name), cfg, httpClient, logger))
	}
	logger.Info("Telecom providers registered", "providers", r.Names())
	return r
}

func (r *Registry) Register(name string, c Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[key(name)] = c
}

// Client returns the operator client or a config-missing provider error.
func (r *Registry) Client(name string) (Client, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.clients[key(name)]
	if !ok {
		return nil, domain.NewConfigMissingError(key(name))
	}
	return c, nil
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.clients))
	for n := range r.clients {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func key(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
