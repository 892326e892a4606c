package scanner

import (
	"context"
	"fmt"

	"wphunter/internal/domain"
)

// Request carries the parameters for a single directory page fetch.
type Request struct {
	Page    int
	PerPage int
	Sort    string
}

// Source captures one directory namespace (plugins, themes).
type Source interface {
	Name() string
	FetchPage(ctx context.Context, req Request) ([]domain.ListingRecord, error)
}

// Registry keeps a mapping from namespace names to their sources.
type Registry struct {
	sources map[string]Source
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{sources: map[string]Source{}}
}

// Register adds or replaces a source implementation.
func (r *Registry) Register(source Source) {
	if r.sources == nil {
		r.sources = map[string]Source{}
	}
	r.sources[source.Name()] = source
}

// Resolve returns a source by namespace or an error if it is absent.
func (r *Registry) Resolve(name string) (Source, error) {
	if source, ok := r.sources[name]; ok {
		return source, nil
	}
	return nil, fmt.Errorf("directory namespace %s is not registered", name)
}
