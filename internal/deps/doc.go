// Package deps verifies the external tools the pipeline shells out to are
// installed before any work starts.
package deps
