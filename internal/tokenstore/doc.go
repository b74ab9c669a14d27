// Package tokenstore provides persistent storage abstractions for the
// current token pair.
//
// Supports four storage backends with different durability and deployment
// tradeoffs:
//   - Memory: Volatile per-process storage, gone when the process exits
//   - File: Local filesystem storage with atomic writes and secure permissions
//   - Keyring: OS-native credential storage (macOS Keychain, Windows Credential Manager, etc.)
//   - Redis: Shared storage for horizontally scaled server processes
//
// The backend is a construction-time decision made from configuration; callers
// only ever see the TokenStore interface. All backends serialize the token
// pair as a single JSON document so a write is atomic with respect to reads:
// a reader never observes a half-written pair.
package tokenstore
