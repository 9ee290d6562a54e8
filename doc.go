// Package fhircodec provides:
//
// - A catalogue-driven JSON codec for the FHIR resource model (Serialize/Deserialize/DeserializePolymorphic)
// - Flattened inheritance, choice[x] fields, and primitive "_name" sidecars
// - resourceType accepted anywhere in an object, written first on output
// - A stable error model via Issues (JSON Pointer, code, message)
// - Streaming over Source/Sink with duplicate-key/depth/size enforcement
//
// Design policy:
// - Keep only public APIs in the root package; put detailed implementations under internal/.
// - Place token drivers under source/, catalogue documents under catalogue/, and the CLI under cmd/fhircodec.
// - Build the Catalogue once; a Codec compiled from it is shared read-only by every call.
//
// Typical usage:
//
//	cat, err := r4core.Catalogue()
//	c := fhircodec.MustCodec(cat)
//	rec, err := c.Unmarshal(ctx, data, nil)        // polymorphic, by resourceType
//	pat, err := c.Unmarshal(ctx, data, cat.Type("Patient"))
//	out, err := c.Marshal(ctx, rec)                // canonical, resourceType first
package fhircodec
