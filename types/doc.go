// Package types defines the shared data model of the study-buddy core:
// documents, chunks, retrieval results, the closed intent-category set,
// conversation exchanges, and the unified error taxonomy.
//
// The package is dependency-free by design so that every other package can
// import it without cycles.
package types
