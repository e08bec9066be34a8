// Package services hosts shared plumbing for external collaborator packages:
// sentinel error markers with a Wrap helper that tags failures for
// classification, and context annotation helpers carrying the batch ID, stage
// name, and source URL for structured logging.
package services
