// Package uor implements the canonical object model for Universal Object
// References.
//
// A UOR object is a namespaced, typed JSON document addressed by a reference
// of the form uor://<namespace>/<type>/<id>. Every object carries a canonical
// representation: a deterministic, basis-independent encoding of its logical
// data that is byte-identical for equal logical content regardless of key
// order or observer frame. The package provides:
//
//   - Reference parsing and formatting
//   - Canonicalize: the deterministic encoding of an object's data
//   - VerifyCoherence: recompute-and-compare against the stored canonical
//     form, reporting drift instead of repairing it
//   - Project: derive an observer-frame view without touching the canonical
//     representation or object identity
package uor
