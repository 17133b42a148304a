// Package ledger owns the persisted controller state.
//
// The state is one fixed-width record encoded little-endian behind a version
// byte. Handlers receive it by pointer; nothing in this package holds it
// globally.
package ledger
