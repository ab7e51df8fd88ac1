// Package loader provides the pre-populated custom-resource layer of
// the validation support chain. It parses fetched StructureDefinition
// JSON (single resources or Bundles) into the simplified support model
// and serves them by URL and by base type.
package loader
