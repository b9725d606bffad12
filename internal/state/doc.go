// Package state holds the bot's working set: user settings, the staged-post
// queue and referral edges. Each repository owns an in-memory authoritative
// cache mirrored to the storage gateway on every mutation.
package state
