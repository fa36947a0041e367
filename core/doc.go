// Package core defines the shared data model of the runtime: the event
// stream vocabulary, agent and tool contracts, per-invocation tool context
// and the coded error taxonomy used across all components.
package core
