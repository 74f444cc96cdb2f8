// Package notifications publishes render job outcomes to ntfy.
//
// NewService returns a no-op implementation when no topic is configured, so
// the workflow can always call through the Service interface. Each outcome
// (completed, failed, cancelled) can be toggled individually in config.toml.
package notifications
