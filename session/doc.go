// Package session houses conversation history storage. The engine reads the
// accumulated message history for a conversation before each turn and appends
// the normalized messages the turn produced.
//
// Add additional backends (Redis, Postgres, Firestore, etc.) in sub-packages
// without changing any calling code - only the wiring layer needs to decide
// which implementation to instantiate.
package session
