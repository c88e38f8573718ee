package registry

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ajitpratap0/nebulaflow/pkg/connector/core"
	"github.com/ajitpratap0/nebulaflow/pkg/logger"
	"github.com/ajitpratap0/nebulaflow/pkg/nebulaerrors"
)

// Registry maps connector type tokens to reader and writer implementations
type Registry struct {
	sources      map[string]SourceFactory
	destinations map[string]DestinationFactory
	mu           sync.RWMutex
}

// SourceFactory creates a source reader instance.
type SourceFactory func() core.SourceReader

// DestinationFactory creates a destination writer instance.
type DestinationFactory func() core.DestinationWriter

// Global registry instance
var globalRegistry = NewRegistry()

// NewRegistry creates a new connector registry
func NewRegistry() *Registry {
	return &Registry{
		sources:      make(map[string]SourceFactory),
		destinations: make(map[string]DestinationFactory),
	}
}

// log resolves the global logger on use, so it follows logger.Init.
func (r *Registry) log() *zap.Logger {
	return logger.Get().With(zap.String("component", "connector_registry"))
}

// normalize makes type tokens case-insensitive.
func normalize(token string) string {
	return strings.ToLower(strings.TrimSpace(token))
}

// RegisterSource registers a source reader factory
func (r *Registry) RegisterSource(token string, factory SourceFactory) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := normalize(token)
	if _, exists := r.sources[key]; exists {
		return nebulaerrors.New(nebulaerrors.ErrorTypeConfig, fmt.Sprintf("source connector %s already registered", key))
	}

	r.sources[key] = factory
	r.log().Debug("source connector registered", zap.String("type", key))
	return nil
}

// RegisterDestination registers a destination writer factory
func (r *Registry) RegisterDestination(token string, factory DestinationFactory) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := normalize(token)
	if _, exists := r.destinations[key]; exists {
		return nebulaerrors.New(nebulaerrors.ErrorTypeConfig, fmt.Sprintf("destination connector %s already registered", key))
	}

	r.destinations[key] = factory
	r.log().Debug("destination connector registered", zap.String("type", key))
	return nil
}

// ResolveSourceReader returns the reader registered for token.
func (r *Registry) ResolveSourceReader(token string) (core.SourceReader, error) {
	r.mu.RLock()
	factory, exists := r.sources[normalize(token)]
	r.mu.RUnlock()

	if !exists {
		return nil, nebulaerrors.UnknownConnectorType(string(core.ConnectorTypeSource), token)
	}
	return factory(), nil
}

// ResolveDestinationWriter returns the writer registered for token.
func (r *Registry) ResolveDestinationWriter(token string) (core.DestinationWriter, error) {
	r.mu.RLock()
	factory, exists := r.destinations[normalize(token)]
	r.mu.RUnlock()

	if !exists {
		return nil, nebulaerrors.UnknownConnectorType(string(core.ConnectorTypeDestination), token)
	}
	return factory(), nil
}

// TestConnection opens and closes a connection through the provider's tester
// and measures wall-clock time. Every failure, including an unknown provider,
// is reported in the result.
func (r *Registry) TestConnection(ctx context.Context, provider, connectionString string) core.ConnectionTestResult {
	start := time.Now()
	result := core.ConnectionTestResult{}

	err := r.testConnection(ctx, provider, connectionString)
	result.ElapsedMs = time.Since(start).Milliseconds()
	if err != nil {
		result.ErrorMessage = nebulaerrors.Flatten(err)
		r.log().Info("connection test failed",
			zap.String("type", normalize(provider)),
			zap.Int64("elapsed_ms", result.ElapsedMs),
			zap.String("error", result.ErrorMessage))
		return result
	}

	result.Success = true
	return result
}

func (r *Registry) testConnection(ctx context.Context, provider, connectionString string) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("connection test panicked: %v", p)
		}
	}()

	tester, err := r.resolveTester(provider)
	if err != nil {
		return err
	}
	return tester.TestConnection(ctx, connectionString)
}

func (r *Registry) resolveTester(provider string) (core.ConnectionTester, error) {
	key := normalize(provider)

	r.mu.RLock()
	sf, hasSource := r.sources[key]
	df, hasDest := r.destinations[key]
	r.mu.RUnlock()

	if hasSource {
		if t, ok := sf().(core.ConnectionTester); ok {
			return t, nil
		}
	}
	if hasDest {
		if t, ok := df().(core.ConnectionTester); ok {
			return t, nil
		}
	}
	if !hasSource && !hasDest {
		return nil, nebulaerrors.UnknownConnectorType("source or destination", provider)
	}
	return nil, nebulaerrors.New(nebulaerrors.ErrorTypeValidation,
		fmt.Sprintf("connector %s does not support connection tests", key))
}

// ListSources returns the registered source tokens, sorted
func (r *Registry) ListSources() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sources := make([]string, 0, len(r.sources))
	for name := range r.sources {
		sources = append(sources, name)
	}
	sort.Strings(sources)
	return sources
}

// ListDestinations returns the registered destination tokens, sorted
func (r *Registry) ListDestinations() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	destinations := make([]string, 0, len(r.destinations))
	for name := range r.destinations {
		destinations = append(destinations, name)
	}
	sort.Strings(destinations)
	return destinations
}

// HasSource checks if a source connector is registered
func (r *Registry) HasSource(token string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.sources[normalize(token)]
	return exists
}

// HasDestination checks if a destination connector is registered
func (r *Registry) HasDestination(token string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.destinations[normalize(token)]
	return exists
}

// Clear removes all registered connectors (mainly for testing)
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.sources = make(map[string]SourceFactory)
	r.destinations = make(map[string]DestinationFactory)
}

// Global registry functions

// RegisterSource registers a source connector in the global registry
func RegisterSource(token string, factory SourceFactory) error {
	return globalRegistry.RegisterSource(token, factory)
}

// RegisterDestination registers a destination connector in the global registry
func RegisterDestination(token string, factory DestinationFactory) error {
	return globalRegistry.RegisterDestination(token, factory)
}

// ResolveSourceReader resolves a reader from the global registry
func ResolveSourceReader(token string) (core.SourceReader, error) {
	return globalRegistry.ResolveSourceReader(token)
}

// ResolveDestinationWriter resolves a writer from the global registry
func ResolveDestinationWriter(token string) (core.DestinationWriter, error) {
	return globalRegistry.ResolveDestinationWriter(token)
}

// ListSources lists available source connectors
func ListSources() []string {
	return globalRegistry.ListSources()
}

// ListDestinations lists available destination connectors
func ListDestinations() []string {
	return globalRegistry.ListDestinations()
}

// GetRegistry returns the global registry
func GetRegistry() *Registry {
	return globalRegistry
}

// ConnectorInfo provides information about a connector
type ConnectorInfo struct {
	Name         string   `json:"name"`
	Type         string   `json:"type"`
	Description  string   `json:"description"`
	Version      string   `json:"version"`
	Capabilities []string `json:"capabilities"`
	Parameters   []string `json:"parameters,omitempty"`
}

// ConnectorCatalog manages connector metadata
type ConnectorCatalog struct {
	connectors map[string]*ConnectorInfo
	mu         sync.RWMutex
}

// NewConnectorCatalog creates a new connector catalog
func NewConnectorCatalog() *ConnectorCatalog {
	return &ConnectorCatalog{
		connectors: make(map[string]*ConnectorInfo),
	}
}

func catalogKey(connectorType, name string) string {
	return connectorType + "/" + normalize(name)
}

// Register adds a connector to the catalog
func (c *ConnectorCatalog) Register(info *ConnectorInfo) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := catalogKey(info.Type, info.Name)
	if _, exists := c.connectors[key]; exists {
		return nebulaerrors.New(nebulaerrors.ErrorTypeConfig, fmt.Sprintf("connector %s already in catalog", key))
	}

	c.connectors[key] = info
	return nil
}

// Get retrieves connector information
func (c *ConnectorCatalog) Get(connectorType, name string) (*ConnectorInfo, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	info, exists := c.connectors[catalogKey(connectorType, name)]
	if !exists {
		return nil, nebulaerrors.NotFound("connector", catalogKey(connectorType, name))
	}

	return info, nil
}

// List returns all connectors in the catalog ordered by type then name
func (c *ConnectorCatalog) List() []*ConnectorInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()

	infos := make([]*ConnectorInfo, 0, len(c.connectors))
	for _, info := range c.connectors {
		infos = append(infos, info)
	}
	sort.Slice(infos, func(i, j int) bool {
		if infos[i].Type != infos[j].Type {
			return infos[i].Type > infos[j].Type
		}
		return infos[i].Name < infos[j].Name
	})
	return infos
}

// Global catalog instance
var globalCatalog = NewConnectorCatalog()

// RegisterConnectorInfo registers connector information in the global catalog
func RegisterConnectorInfo(info *ConnectorInfo) error {
	return globalCatalog.Register(info)
}

// GetConnectorInfo retrieves connector information from the global catalog
func GetConnectorInfo(connectorType, name string) (*ConnectorInfo, error) {
	return globalCatalog.Get(connectorType, name)
}

// ListConnectorInfo lists all connectors in the global catalog
func ListConnectorInfo() []*ConnectorInfo {
	return globalCatalog.List()
}
