// Package storage is the persistence gateway behind the in-memory state.
//
// It persists three record sets: user settings, the pending post queue and
// referral edges. The in-memory repositories are authoritative; saves here
// are full write-through replacements, never partial updates.
package storage
