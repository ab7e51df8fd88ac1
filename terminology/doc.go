// Package terminology provides the terminology layers of the
// validation support chain.
//
// The package provides:
//   - CommonSource: hand-built common FHIR code systems (gender,
//     observation status, bundle type, and friends)
//   - MemorySource: codes loaded dynamically from fetched CodeSystem
//     and ValueSet resources
//
// Both implement support.Source and are meant to be layered in a
// support.Chain, common first.
package terminology
