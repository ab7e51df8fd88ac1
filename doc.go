// Package orchestra is a FHIR validation orchestration core.
//
// It batches payloads into sessions, validates each payload against a
// selected set of interchangeable validation engines, and retains the
// validated sessions as process history. Three engine variants are
// provided: a local rule engine that evaluates payloads against a
// layered support chain assembled from fetched reference resources, a
// no-op embedded reference baseline, and a remote engine delegating to
// an external HTTP validation service.
//
// Engine instances are memoized by an EngineRegistry keyed on
// (engine type, profile URL): every caller observes the same instance
// for the process lifetime, including under concurrent first access.
//
// Typical use:
//
//	o := orchestra.New()
//	session, err := o.NewSession().
//		WithPayloads(payload).
//		WithProfileURL(profileURL).
//		AddLocalRuleEngine().
//		Build()
//	if err != nil {
//		// unknown engine type requested
//	}
//	o.Orchestrate(ctx, session)
//	for _, result := range session.Results() {
//		// inspect result.Valid and result.Issues
//	}
//
// Engine selection can also come from an external strategy descriptor,
// JSON shaped as {"engines": ["HAPI", "HL7-Official-API"]}; malformed
// descriptors never fail the builder, they accumulate diagnostics.
package orchestra
