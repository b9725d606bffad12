// Package publish implements the deferred-publish scheduler: one gate and
// one drain loop per user, feeding that user's staged posts to their publish
// channel under a minimum cool-down, plus the immediate publish/remove
// operations that race those loops safely.
package publish
