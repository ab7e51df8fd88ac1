package support

import (
	"context"

	"github.com/gofhir/orchestra/cache"
)

// CachingSizes configures the caches of a Caching wrapper.
type CachingSizes struct {
	Profiles    int
	Validations int
}

// DefaultCachingSizes returns the default cache capacities.
func DefaultCachingSizes() CachingSizes {
	return CachingSizes{
		Profiles:    1000,
		Validations: 500,
	}
}

// Caching wraps a Source with LRU caches for resolved profiles and code
// validations. Misses (ErrNotFound/ErrNotSupported) are not cached so a
// later layer reconfiguration can still answer.
type Caching struct {
	source      Source
	profiles    *cache.Cache[string, *StructureDefinition]
	validations *cache.Cache[string, *CodeValidation]
}

// NewCaching creates a caching wrapper around source.
func NewCaching(source Source, sizes CachingSizes) *Caching {
	return &Caching{
		source:      source,
		profiles:    cache.New[string, *StructureDefinition](sizes.Profiles),
		validations: cache.New[string, *CodeValidation](sizes.Validations),
	}
}

// StructureDefinitionByURL checks the cache first, then the wrapped source.
func (c *Caching) StructureDefinitionByURL(ctx context.Context, url string) (*StructureDefinition, error) {
	if sd, ok := c.profiles.Get(url); ok {
		return sd, nil
	}

	sd, err := c.source.StructureDefinitionByURL(ctx, url)
	if err != nil {
		return nil, err
	}

	c.profiles.Set(url, sd)
	return sd, nil
}

// StructureDefinitionByType checks the cache first, then the wrapped source.
// Type lookups share the profile cache under a "type:" key prefix.
func (c *Caching) StructureDefinitionByType(ctx context.Context, resourceType string) (*StructureDefinition, error) {
	key := "type:" + resourceType

	if sd, ok := c.profiles.Get(key); ok {
		return sd, nil
	}

	sd, err := c.source.StructureDefinitionByType(ctx, resourceType)
	if err != nil {
		return nil, err
	}

	c.profiles.Set(key, sd)
	return sd, nil
}

// ValidateCode checks the cache first, then the wrapped source.
func (c *Caching) ValidateCode(ctx context.Context, system, code, valueSetURL string) (*CodeValidation, error) {
	key := system + "|" + code + "|" + valueSetURL

	if result, ok := c.validations.Get(key); ok {
		return result, nil
	}

	result, err := c.source.ValidateCode(ctx, system, code, valueSetURL)
	if err != nil {
		return nil, err
	}

	c.validations.Set(key, result)
	return result, nil
}

// Stats returns the statistics of the underlying caches.
func (c *Caching) Stats() (profiles, validations cache.Stats) {
	return c.profiles.Stats(), c.validations.Stats()
}

// Verify interface compliance
var _ Source = (*Caching)(nil)
