// Package model defines the provider-agnostic abstractions and concrete
// helpers for interacting with language / reasoning models inside the runtime.
//
// Core goals:
//   - Unify streaming generation behind a single channel-based interface
//   - Normalize tool / function call representation (ToolDefinition, ToolCall)
//   - Keep request/response shapes minimal and transport independent
//   - Facilitate lightweight mocking for tests (MockModel)
//
// Providers (Anthropic, OpenAI, Gemini) implement the Model interface from
// this package so higher layers (engine, tools) remain decoupled from vendor
// SDKs.
package model
