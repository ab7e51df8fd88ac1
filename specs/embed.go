// Package specs provides the built-in default rules layer of the
// validation support chain: a set of core R4 StructureDefinitions
// embedded in the binary, so local validation has a base profile for
// common resource types without fetching anything.
package specs

import (
	"embed"
	"fmt"
	"sync"

	"github.com/gofhir/orchestra/loader"
	"github.com/gofhir/orchestra/support"
)

//go:embed r4/*.json
var r4Files embed.FS

var (
	r4Once   sync.Once
	r4Source *loader.Prepopulated
	r4Err    error
)

// Source returns the default support layer for the given FHIR version
// string ("R4"). The layer is built once from the embedded definitions
// and shared by all callers.
func Source(version string) (support.Source, error) {
	switch version {
	case "R4", "4.0", "4.0.1":
		return r4(), r4Error()
	default:
		return nil, fmt.Errorf("no embedded definitions for FHIR version %q", version)
	}
}

// DefaultSource returns the R4 default layer.
func DefaultSource() (support.Source, error) {
	return Source("R4")
}

func r4() *loader.Prepopulated {
	loadR4()
	return r4Source
}

func r4Error() error {
	loadR4()
	return r4Err
}

func loadR4() {
	r4Once.Do(func() {
		r4Source = loader.NewPrepopulated()

		entries, err := r4Files.ReadDir("r4")
		if err != nil {
			r4Err = fmt.Errorf("read embedded r4 definitions: %w", err)
			return
		}

		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}

			data, err := r4Files.ReadFile("r4/" + entry.Name())
			if err != nil {
				r4Err = fmt.Errorf("read embedded %s: %w", entry.Name(), err)
				return
			}
			if _, err := r4Source.LoadJSON(data); err != nil {
				r4Err = fmt.Errorf("load embedded %s: %w", entry.Name(), err)
				return
			}
		}
	})
}

// ResourceTypes returns the resource types carried by the embedded R4
// layer.
func ResourceTypes() []string {
	return []string{"Bundle", "Observation", "OperationOutcome", "Patient"}
}
