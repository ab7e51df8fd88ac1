package support

import (
	"context"
	"errors"
)

// Chain consults ordered layers first-match-wins. A layer answering
// ErrNotFound or ErrNotSupported passes the question to the next layer;
// any other error stops the walk.
type Chain struct {
	layers []Source
}

// NewChain creates a chain over the given layers, consulted in order.
func NewChain(layers ...Source) *Chain {
	return &Chain{layers: layers}
}

// Add appends a layer to the chain.
func (c *Chain) Add(layer Source) {
	c.layers = append(c.layers, layer)
}

// StructureDefinitionByURL tries each layer until one resolves the URL.
func (c *Chain) StructureDefinitionByURL(ctx context.Context, url string) (*StructureDefinition, error) {
	for _, layer := range c.layers {
		sd, err := layer.StructureDefinitionByURL(ctx, url)
		if err == nil && sd != nil {
			return sd, nil
		}
		if err != nil && !errors.Is(err, ErrNotFound) && !errors.Is(err, ErrNotSupported) {
			return nil, err
		}
	}
	return nil, ErrNotFound
}

// StructureDefinitionByType tries each layer until one resolves the type.
func (c *Chain) StructureDefinitionByType(ctx context.Context, resourceType string) (*StructureDefinition, error) {
	for _, layer := range c.layers {
		sd, err := layer.StructureDefinitionByType(ctx, resourceType)
		if err == nil && sd != nil {
			return sd, nil
		}
		if err != nil && !errors.Is(err, ErrNotFound) && !errors.Is(err, ErrNotSupported) {
			return nil, err
		}
	}
	return nil, ErrNotFound
}

// ValidateCode tries each layer until one can answer for the code.
func (c *Chain) ValidateCode(ctx context.Context, system, code, valueSetURL string) (*CodeValidation, error) {
	for _, layer := range c.layers {
		result, err := layer.ValidateCode(ctx, system, code, valueSetURL)
		if err == nil {
			return result, nil
		}
		if !errors.Is(err, ErrNotFound) && !errors.Is(err, ErrNotSupported) {
			return nil, err
		}
	}
	return nil, ErrNotSupported
}

// Verify interface compliance
var _ Source = (*Chain)(nil)
