// Package pool implements Pool<Backend> from spec.md 4.5: a fixed-size set
// of backend connections, created eagerly, leased round-robin while
// skipping unhealthy members, and repaired in the background with
// exponential backoff when a lease comes back reporting connection loss.
package pool
