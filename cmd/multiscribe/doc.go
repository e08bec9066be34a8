// Package main hosts the multiscribe CLI entrypoint and command graph.
//
// The Cobra-based command tree resolves configuration, opens the URL cache,
// wires the external tool services, and drives the processing pipeline. Keep
// this package lean: add new functionality by extending the internal
// packages first, then surface it through dedicated commands or flags here.
package main
