// Package pool keeps brick textures resident on the GPU under a byte budget.
//
// Every texture is charged to a ledger when it is created and credited when
// it is destroyed, so the sum of resident texture sizes never exceeds the
// effective limit after an upload returns. The limit is either fixed or
// derived from the free memory a [Meter] reports.
//
// Textures whose source data changed are marked for delayed deletion
// instead of being destroyed at once; they are the first to go when space
// is needed and are freed in bulk by [Pool.Collect].
package pool
