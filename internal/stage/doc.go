// Package stage defines the processing stages a URL moves through and
// resolves which of them remain for a cached entry. The resolver is the
// skip logic: prior progress recorded in the cache is never repeated.
package stage
