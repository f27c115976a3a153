// Package dedupe drops redelivered webhook messages.
//
// Messaging platforms retry webhook deliveries they consider unacknowledged,
// so the same message id can arrive more than once. Window remembers ids
// for a TTL and reports repeats, letting the gateway dispatch each message
// once.
package dedupe
