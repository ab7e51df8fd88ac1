package rules

import (
	"context"
	"strings"
	"testing"

	"github.com/gofhir/orchestra/support"
)

type stubSource struct {
	byURL    map[string]*support.StructureDefinition
	byType   map[string]*support.StructureDefinition
	validate func(system, code, valueSetURL string) (*support.CodeValidation, error)
}

func (s *stubSource) StructureDefinitionByURL(_ context.Context, url string) (*support.StructureDefinition, error) {
	if sd, ok := s.byURL[url]; ok {
		return sd, nil
	}
	return nil, support.ErrNotFound
}

func (s *stubSource) StructureDefinitionByType(_ context.Context, resourceType string) (*support.StructureDefinition, error) {
	if sd, ok := s.byType[resourceType]; ok {
		return sd, nil
	}
	return nil, support.ErrNotFound
}

func (s *stubSource) ValidateCode(_ context.Context, system, code, valueSetURL string) (*support.CodeValidation, error) {
	if s.validate != nil {
		return s.validate(system, code, valueSetURL)
	}
	return nil, support.ErrNotSupported
}

var _ support.Source = (*stubSource)(nil)

func observationDefinition() *support.StructureDefinition {
	return &support.StructureDefinition{
		URL:  "http://hl7.org/fhir/StructureDefinition/Observation",
		Type: "Observation",
		Snapshot: []support.ElementDefinition{
			{Path: "Observation", Min: 0, Max: "*"},
			{Path: "Observation.status", Min: 1, Max: "1", Binding: &support.Binding{
				Strength: "required",
				ValueSet: "http://hl7.org/fhir/ValueSet/observation-status",
			}},
			{Path: "Observation.code", Min: 1, Max: "1"},
			{Path: "Observation.value[x]", Min: 0, Max: "1"},
		},
	}
}

func patientDefinition() *support.StructureDefinition {
	return &support.StructureDefinition{
		URL:  "http://hl7.org/fhir/StructureDefinition/Patient",
		Type: "Patient",
		Snapshot: []support.ElementDefinition{
			{Path: "Patient", Min: 0, Max: "*", Constraints: []support.Constraint{{
				Key:        "pat-gender",
				Severity:   "error",
				Human:      "A patient must state a gender",
				Expression: "gender.exists()",
			}}},
			{Path: "Patient.gender", Min: 0, Max: "1"},
			{Path: "Patient.birthDate", Min: 0, Max: "1"},
		},
	}
}

func bundleDefinition() *support.StructureDefinition {
	return &support.StructureDefinition{
		URL:  "http://hl7.org/fhir/StructureDefinition/Bundle",
		Type: "Bundle",
		Snapshot: []support.ElementDefinition{
			{Path: "Bundle", Min: 0, Max: "*"},
			{Path: "Bundle.type", Min: 1, Max: "1"},
			{Path: "Bundle.entry", Min: 0, Max: "*"},
		},
	}
}

func newTestEngine() *Engine {
	return New(&stubSource{
		byURL: map[string]*support.StructureDefinition{
			"http://hl7.org/fhir/StructureDefinition/Observation": observationDefinition(),
		},
		byType: map[string]*support.StructureDefinition{
			"Observation": observationDefinition(),
			"Patient":     patientDefinition(),
			"Bundle":      bundleDefinition(),
		},
	})
}

func findMessage(out *Outcome, code string) (Message, bool) {
	for _, m := range out.Messages {
		if m.Code == code {
			return m, true
		}
	}
	return Message{}, false
}

func TestValidate_ParseError(t *testing.T) {
	engine := newTestEngine()

	if _, err := engine.Validate(context.Background(), []byte("{not json"), ""); err == nil {
		t.Error("Validate() = nil error for malformed JSON; want parse error")
	}
}

func TestValidate_UnresolvableProfile(t *testing.T) {
	engine := newTestEngine()

	_, err := engine.Validate(context.Background(),
		[]byte(`{"resourceType":"Observation"}`),
		"http://example.com/fhir/StructureDefinition/missing")
	if err == nil {
		t.Fatal("Validate() = nil error for an unresolvable profile; want error")
	}
	if !strings.Contains(err.Error(), "missing") {
		t.Errorf("error %q does not name the profile", err)
	}
}

func TestValidate_MissingResourceType(t *testing.T) {
	engine := newTestEngine()

	out, err := engine.Validate(context.Background(), []byte(`{"status":"final"}`), "")
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if out.Successful() {
		t.Error("Successful() = true for resource without resourceType")
	}
	if m, ok := findMessage(out, CodeStructure); !ok || !strings.Contains(m.Text, "resourceType") {
		t.Errorf("messages = %v; want structure message about resourceType", out.Messages)
	}
}

func TestValidate_RequiredElements(t *testing.T) {
	engine := newTestEngine()

	out, err := engine.Validate(context.Background(),
		[]byte(`{"resourceType":"Observation"}`), "")
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}

	if out.Successful() {
		t.Error("Successful() = true for Observation missing status and code")
	}
	if got := out.ErrorCount(); got != 2 {
		t.Errorf("ErrorCount() = %d; want 2 (status, code)", got)
	}
	m, ok := findMessage(out, CodeRequired)
	if !ok {
		t.Fatalf("no required-element message in %v", out.Messages)
	}
	if m.Path != "Observation.status" && m.Path != "Observation.code" {
		t.Errorf("message path = %q; want a missing Observation element", m.Path)
	}
}

func TestValidate_CardinalityRepeat(t *testing.T) {
	engine := newTestEngine()

	out, err := engine.Validate(context.Background(),
		[]byte(`{"resourceType":"Observation","status":["final","amended"],"code":{"text":"bp"}}`), "")
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}

	m, ok := findMessage(out, CodeStructure)
	if !ok {
		t.Fatalf("no structure message in %v", out.Messages)
	}
	if !strings.Contains(m.Text, "repeats") {
		t.Errorf("message = %q; want a cardinality finding", m.Text)
	}
}

func TestValidate_UnknownElement(t *testing.T) {
	engine := newTestEngine()

	out, err := engine.Validate(context.Background(),
		[]byte(`{"resourceType":"Observation","status":"final","code":{"text":"bp"},"bogus":1}`), "")
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}

	// Unknown elements warn, they do not fail the resource.
	if !out.Successful() {
		t.Errorf("Successful() = false; messages = %v", out.Messages)
	}
	m, ok := findMessage(out, CodeStructure)
	if !ok || !strings.Contains(m.Text, "bogus") {
		t.Errorf("messages = %v; want unknown-element warning for bogus", out.Messages)
	}
}

func TestValidate_ChoiceElement(t *testing.T) {
	engine := newTestEngine()

	out, err := engine.Validate(context.Background(),
		[]byte(`{"resourceType":"Observation","status":"final","code":{"text":"bp"},"valueQuantity":{"value":120}}`), "")
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}

	for _, m := range out.Messages {
		if strings.Contains(m.Text, "valueQuantity") {
			t.Errorf("valueQuantity flagged: %v", m)
		}
	}
}

func TestValidate_RequiredBinding(t *testing.T) {
	source := &stubSource{
		byType: map[string]*support.StructureDefinition{
			"Observation": observationDefinition(),
		},
		validate: func(system, code, valueSetURL string) (*support.CodeValidation, error) {
			if code == "final" {
				return &support.CodeValidation{Valid: true, Code: code}, nil
			}
			return &support.CodeValidation{Valid: false, Message: "unknown code " + code}, nil
		},
	}
	engine := New(source)

	t.Run("valid code", func(t *testing.T) {
		out, err := engine.Validate(context.Background(),
			[]byte(`{"resourceType":"Observation","status":"final","code":{"text":"bp"}}`), "")
		if err != nil {
			t.Fatalf("Validate() error = %v", err)
		}
		if !out.Successful() {
			t.Errorf("Successful() = false; messages = %v", out.Messages)
		}
	})

	t.Run("invalid code", func(t *testing.T) {
		out, err := engine.Validate(context.Background(),
			[]byte(`{"resourceType":"Observation","status":"bogus","code":{"text":"bp"}}`), "")
		if err != nil {
			t.Fatalf("Validate() error = %v", err)
		}
		m, ok := findMessage(out, CodeCodeInvalid)
		if !ok {
			t.Fatalf("no code-invalid message in %v", out.Messages)
		}
		if m.Path != "Observation.status" {
			t.Errorf("message path = %q; want Observation.status", m.Path)
		}
	})

	t.Run("terminology not covered", func(t *testing.T) {
		uncovered := New(&stubSource{
			byType: map[string]*support.StructureDefinition{
				"Observation": observationDefinition(),
			},
		})
		out, err := uncovered.Validate(context.Background(),
			[]byte(`{"resourceType":"Observation","status":"whatever","code":{"text":"bp"}}`), "")
		if err != nil {
			t.Fatalf("Validate() error = %v", err)
		}
		if _, ok := findMessage(out, CodeCodeInvalid); ok {
			t.Errorf("uncovered binding produced a finding: %v", out.Messages)
		}
	})
}

func TestValidate_Constraints(t *testing.T) {
	engine := newTestEngine()

	t.Run("violated", func(t *testing.T) {
		out, err := engine.Validate(context.Background(),
			[]byte(`{"resourceType":"Patient"}`), "")
		if err != nil {
			t.Fatalf("Validate() error = %v", err)
		}
		m, ok := findMessage(out, CodeInvariant)
		if !ok {
			t.Fatalf("no invariant message in %v", out.Messages)
		}
		if m.Key != "pat-gender" {
			t.Errorf("message key = %q; want pat-gender", m.Key)
		}
		if m.Severity != SeverityError {
			t.Errorf("message severity = %q; want error", m.Severity)
		}
	})

	t.Run("satisfied", func(t *testing.T) {
		out, err := engine.Validate(context.Background(),
			[]byte(`{"resourceType":"Patient","gender":"female"}`), "")
		if err != nil {
			t.Fatalf("Validate() error = %v", err)
		}
		if _, ok := findMessage(out, CodeInvariant); ok {
			t.Errorf("satisfied invariant reported: %v", out.Messages)
		}
	})

	t.Run("expressions cached", func(t *testing.T) {
		if got := engine.CachedExpressions(); got != 1 {
			t.Errorf("CachedExpressions() = %d; want 1", got)
		}
	})
}

func TestValidate_UncompilableConstraint(t *testing.T) {
	source := &stubSource{
		byType: map[string]*support.StructureDefinition{
			"Patient": {
				URL:  "http://hl7.org/fhir/StructureDefinition/Patient",
				Type: "Patient",
				Snapshot: []support.ElementDefinition{
					{Path: "Patient", Constraints: []support.Constraint{{
						Key:        "bad-1",
						Severity:   "error",
						Human:      "broken",
						Expression: "((",
					}}},
				},
			},
		},
	}
	engine := New(source)

	out, err := engine.Validate(context.Background(),
		[]byte(`{"resourceType":"Patient"}`), "")
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}

	// An unevaluable constraint degrades to a warning.
	if !out.Successful() {
		t.Errorf("Successful() = false; messages = %v", out.Messages)
	}
	m, ok := findMessage(out, CodeInvariant)
	if !ok || m.Severity != SeverityWarning {
		t.Errorf("messages = %v; want invariant warning", out.Messages)
	}
}

func TestValidate_BundleEntries(t *testing.T) {
	engine := newTestEngine()

	t.Run("entry missing resourceType", func(t *testing.T) {
		out, err := engine.Validate(context.Background(),
			[]byte(`{"resourceType":"Bundle","type":"collection","entry":[{"resource":{"status":"final"}}]}`), "")
		if err != nil {
			t.Fatalf("Validate() error = %v", err)
		}
		m, ok := findMessage(out, CodeStructure)
		if !ok {
			t.Fatalf("no structure message in %v", out.Messages)
		}
		if !strings.HasPrefix(m.Path, "Bundle.entry[0].resource") {
			t.Errorf("message path = %q; want Bundle.entry[0].resource prefix", m.Path)
		}
	})

	t.Run("entry validated against its own type", func(t *testing.T) {
		out, err := engine.Validate(context.Background(),
			[]byte(`{"resourceType":"Bundle","type":"collection","entry":[{"resource":{"resourceType":"Observation","code":{"text":"bp"}}}]}`), "")
		if err != nil {
			t.Fatalf("Validate() error = %v", err)
		}
		m, ok := findMessage(out, CodeRequired)
		if !ok {
			t.Fatalf("no required-element message in %v", out.Messages)
		}
		if m.Path != "Bundle.entry[0].resource.status" {
			t.Errorf("message path = %q; want Bundle.entry[0].resource.status", m.Path)
		}
	})

	t.Run("valid entries", func(t *testing.T) {
		out, err := engine.Validate(context.Background(),
			[]byte(`{"resourceType":"Bundle","type":"collection","entry":[{"resource":{"resourceType":"Patient","gender":"other"}}]}`), "")
		if err != nil {
			t.Fatalf("Validate() error = %v", err)
		}
		if !out.Successful() {
			t.Errorf("Successful() = false; messages = %v", out.Messages)
		}
	})
}

func TestValidate_UnknownResourceType(t *testing.T) {
	engine := newTestEngine()

	out, err := engine.Validate(context.Background(),
		[]byte(`{"resourceType":"Medication"}`), "")
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}

	// No definition available means nothing to check; warn only.
	if !out.Successful() {
		t.Errorf("Successful() = false; messages = %v", out.Messages)
	}
	if m, ok := findMessage(out, CodeStructure); !ok || !strings.Contains(m.Text, "Medication") {
		t.Errorf("messages = %v; want missing-definition warning", out.Messages)
	}
}
