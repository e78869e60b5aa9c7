package llm

import (
	"context"
	"errors"
	"fmt"
	"slices"
)

// MultiClient routes each request to the provider that serves its model.
// Models without a registered provider go to the fallback (Ollama).
type MultiClient struct {
	fallback  Client
	providers map[string]Client // "anthropic", "openai"
	routes    map[string]string // model -> provider
}

// NewMultiClient returns a router with no providers besides fallback.
func NewMultiClient(fallback Client) *MultiClient {
	return &MultiClient{
		fallback:  fallback,
		providers: map[string]Client{},
		routes:    map[string]string{},
	}
}

// AddProvider registers client under a provider name.
func (m *MultiClient) AddProvider(name string, client Client) {
	m.providers[name] = client
}

// AddModel routes model to the named provider.
func (m *MultiClient) AddModel(model, provider string) {
	m.routes[model] = provider
}

// ProviderFor reports which provider serves model. It returns "" when
// the model is routed to the fallback, including models mapped to a
// provider that was never registered.
func (m *MultiClient) ProviderFor(model string) string {
	provider := m.routes[model]
	if _, ok := m.providers[provider]; !ok {
		return ""
	}
	return provider
}

// Chat forwards the request to the client serving model.
func (m *MultiClient) Chat(ctx context.Context, model string, messages []Message, tools []map[string]any, opts Options) (*ChatResponse, error) {
	client := m.fallback
	if provider := m.ProviderFor(model); provider != "" {
		client = m.providers[provider]
	}
	if client == nil {
		return nil, fmt.Errorf("no provider configured for model %q", model)
	}
	return client.Chat(ctx, model, messages, tools, opts)
}

// Ping checks every provider that has at least one model routed to it,
// plus the fallback. Failures are joined and name their provider.
func (m *MultiClient) Ping(ctx context.Context) error {
	if m.fallback == nil && len(m.providers) == 0 {
		return errors.New("no model provider configured")
	}

	var errs []error
	if m.fallback != nil {
		if err := m.fallback.Ping(ctx); err != nil {
			errs = append(errs, fmt.Errorf("ollama: %w", err))
		}
	}
	for _, name := range m.routedProviders() {
		if err := m.providers[name].Ping(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

// routedProviders returns the registered providers that serve at least
// one model, sorted by name.
func (m *MultiClient) routedProviders() []string {
	var names []string
	for _, provider := range m.routes {
		if _, ok := m.providers[provider]; ok && !slices.Contains(names, provider) {
			names = append(names, provider)
		}
	}
	slices.Sort(names)
	return names
}
