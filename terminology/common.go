package terminology

import (
	"context"
	"fmt"

	"github.com/gofhir/orchestra/support"
)

// CommonSource is the common terminology layer: a fixed set of core
// FHIR code systems that local validation needs without any fetching.
// Codes in systems it does not carry answer ErrNotSupported so the
// next chain layer can try.
type CommonSource struct {
	support.NullProfileSource

	systems   map[string]map[string]string // system URL -> code -> display
	valueSets map[string]string            // ValueSet URL -> system URL
}

// NewCommonSource creates the common terminology layer.
func NewCommonSource() *CommonSource {
	s := &CommonSource{
		systems:   make(map[string]map[string]string),
		valueSets: make(map[string]string),
	}

	s.add("http://hl7.org/fhir/administrative-gender",
		"http://hl7.org/fhir/ValueSet/administrative-gender",
		map[string]string{
			"male":    "Male",
			"female":  "Female",
			"other":   "Other",
			"unknown": "Unknown",
		})

	s.add("http://hl7.org/fhir/observation-status",
		"http://hl7.org/fhir/ValueSet/observation-status",
		map[string]string{
			"registered":       "Registered",
			"preliminary":      "Preliminary",
			"final":            "Final",
			"amended":          "Amended",
			"corrected":        "Corrected",
			"cancelled":        "Cancelled",
			"entered-in-error": "Entered in Error",
			"unknown":          "Unknown",
		})

	s.add("http://hl7.org/fhir/bundle-type",
		"http://hl7.org/fhir/ValueSet/bundle-type",
		map[string]string{
			"document":             "Document",
			"message":              "Message",
			"transaction":          "Transaction",
			"transaction-response": "Transaction Response",
			"batch":                "Batch",
			"batch-response":       "Batch Response",
			"history":              "History List",
			"searchset":            "Search Results",
			"collection":           "Collection",
		})

	s.add("http://hl7.org/fhir/issue-severity",
		"http://hl7.org/fhir/ValueSet/issue-severity",
		map[string]string{
			"fatal":       "Fatal",
			"error":       "Error",
			"warning":     "Warning",
			"information": "Information",
		})

	s.add("http://hl7.org/fhir/narrative-status",
		"http://hl7.org/fhir/ValueSet/narrative-status",
		map[string]string{
			"generated":  "Generated",
			"extensions": "Extensions",
			"additional": "Additional",
			"empty":      "Empty",
		})

	s.add("http://hl7.org/fhir/request-status",
		"http://hl7.org/fhir/ValueSet/request-status",
		map[string]string{
			"draft":            "Draft",
			"active":           "Active",
			"on-hold":          "On Hold",
			"revoked":          "Revoked",
			"completed":        "Completed",
			"entered-in-error": "Entered in Error",
			"unknown":          "Unknown",
		})

	return s
}

// add registers a code system and the ValueSet that mirrors it.
func (s *CommonSource) add(systemURL, valueSetURL string, codes map[string]string) {
	s.systems[systemURL] = codes
	s.valueSets[valueSetURL] = systemURL
}

// ValidateCode implements support.TerminologySource.
func (s *CommonSource) ValidateCode(ctx context.Context, system, code, valueSetURL string) (*support.CodeValidation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if code == "" {
		return &support.CodeValidation{Valid: false, Message: "code is empty"}, nil
	}

	valueSetURL = stripVersion(valueSetURL)

	// A ValueSet we carry pins the system to check against.
	if valueSetURL != "" {
		mapped, ok := s.valueSets[valueSetURL]
		if !ok {
			return nil, support.ErrNotSupported
		}
		if system != "" && system != mapped {
			return &support.CodeValidation{
				Valid:   false,
				Message: fmt.Sprintf("system %q is not part of ValueSet %q", system, valueSetURL),
				Code:    code,
				System:  system,
			}, nil
		}
		system = mapped
	}

	if system == "" {
		return nil, support.ErrNotSupported
	}

	codes, ok := s.systems[system]
	if !ok {
		return nil, support.ErrNotSupported
	}

	if display, ok := codes[code]; ok {
		return &support.CodeValidation{Valid: true, Display: display, Code: code, System: system}, nil
	}

	return &support.CodeValidation{
		Valid:   false,
		Message: fmt.Sprintf("code %q not found in CodeSystem %q", code, system),
		Code:    code,
		System:  system,
	}, nil
}

// Systems returns the URLs of the carried code systems.
func (s *CommonSource) Systems() []string {
	urls := make([]string, 0, len(s.systems))
	for url := range s.systems {
		urls = append(urls, url)
	}
	return urls
}

// Verify interface compliance
var _ support.Source = (*CommonSource)(nil)
