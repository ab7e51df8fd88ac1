package loader

import (
	"context"
	"errors"
	"testing"

	"github.com/gofhir/orchestra/support"
)

const patientSDJSON = `{
  "resourceType": "StructureDefinition",
  "url": "http://hl7.org/fhir/StructureDefinition/Patient",
  "name": "Patient",
  "type": "Patient",
  "kind": "resource",
  "snapshot": {
    "element": [
      {"id": "Patient", "path": "Patient", "min": 0, "max": "*"},
      {"id": "Patient.gender", "path": "Patient.gender", "min": 0, "max": "1",
       "type": [{"code": "code"}],
       "binding": {"strength": "required", "valueSet": "http://hl7.org/fhir/ValueSet/administrative-gender"}}
    ]
  }
}`

const profileBundleJSON = `{
  "resourceType": "Bundle",
  "type": "collection",
  "entry": [
    {"resource": {
      "resourceType": "StructureDefinition",
      "url": "http://example.org/fhir/StructureDefinition/us-lab-patient",
      "name": "USLabPatient",
      "type": "Patient",
      "kind": "resource",
      "baseDefinition": "http://hl7.org/fhir/StructureDefinition/Patient"
    }},
    {"resource": {"resourceType": "ValueSet", "url": "http://example.org/vs"}}
  ]
}`

func TestPrepopulated_LoadJSONSingle(t *testing.T) {
	p := NewPrepopulated()

	n, err := p.LoadJSON([]byte(patientSDJSON))
	if err != nil {
		t.Fatalf("LoadJSON() error = %v", err)
	}
	if n != 1 {
		t.Errorf("LoadJSON() = %d definitions; want 1", n)
	}

	ctx := context.Background()

	sd, err := p.StructureDefinitionByURL(ctx, "http://hl7.org/fhir/StructureDefinition/Patient")
	if err != nil {
		t.Fatalf("StructureDefinitionByURL() error = %v", err)
	}
	if sd.Name != "Patient" {
		t.Errorf("Name = %q; want Patient", sd.Name)
	}
	if len(sd.Snapshot) != 2 {
		t.Fatalf("Snapshot has %d elements; want 2", len(sd.Snapshot))
	}

	gender := sd.Snapshot[1]
	if gender.Binding == nil || gender.Binding.Strength != "required" {
		t.Errorf("gender binding = %+v; want required strength", gender.Binding)
	}
	if len(gender.Types) != 1 || gender.Types[0].Code != "code" {
		t.Errorf("gender types = %+v; want [code]", gender.Types)
	}
}

func TestPrepopulated_BaseTypeIndexing(t *testing.T) {
	p := NewPrepopulated()
	if _, err := p.LoadJSON([]byte(patientSDJSON)); err != nil {
		t.Fatalf("LoadJSON(base) error = %v", err)
	}
	if _, err := p.LoadJSON([]byte(profileBundleJSON)); err != nil {
		t.Fatalf("LoadJSON(bundle) error = %v", err)
	}

	ctx := context.Background()

	// The profile must not shadow the base definition for the type.
	sd, err := p.StructureDefinitionByType(ctx, "Patient")
	if err != nil {
		t.Fatalf("StructureDefinitionByType() error = %v", err)
	}
	if sd.URL != "http://hl7.org/fhir/StructureDefinition/Patient" {
		t.Errorf("type lookup resolved %q; want the base definition", sd.URL)
	}

	// The profile is still reachable by URL.
	if _, err := p.StructureDefinitionByURL(ctx, "http://example.org/fhir/StructureDefinition/us-lab-patient"); err != nil {
		t.Errorf("profile lookup by URL error = %v", err)
	}
}

func TestPrepopulated_LoadBundleSkipsOtherResources(t *testing.T) {
	p := NewPrepopulated()

	n, err := p.LoadJSON([]byte(profileBundleJSON))
	if err != nil {
		t.Fatalf("LoadJSON() error = %v", err)
	}
	if n != 1 {
		t.Errorf("LoadJSON(bundle) = %d definitions; want 1 (ValueSet entry skipped)", n)
	}
	if p.Count() != 1 {
		t.Errorf("Count() = %d; want 1", p.Count())
	}
}

func TestPrepopulated_NotFound(t *testing.T) {
	p := NewPrepopulated()

	_, err := p.StructureDefinitionByURL(context.Background(), "http://example.org/missing")
	if !errors.Is(err, support.ErrNotFound) {
		t.Errorf("error = %v; want ErrNotFound", err)
	}
}

func TestPrepopulated_LoadJSONErrors(t *testing.T) {
	p := NewPrepopulated()

	if _, err := p.LoadJSON([]byte("not json")); err == nil {
		t.Error("LoadJSON(garbage) = nil; want error")
	}
	if _, err := p.LoadJSON([]byte(`{"resourceType":"Patient"}`)); err == nil {
		t.Error("LoadJSON(Patient) = nil; want unsupported resourceType error")
	}
	if _, err := p.LoadJSON([]byte(`{"resourceType":"StructureDefinition"}`)); err == nil {
		t.Error("LoadJSON(definition without url) = nil; want error")
	}
}
