// Package session provides the session cache that backs authsession controllers.
//
// A slot holds the last known state of the backend's current-user endpoint for one
// cookie holder. Slots are keyed by endpoint identity ([Key]); every controller
// mounted on the same key observes one logical slot through [Cache.Subscribe].
//
// # Implementations
//
//   - [MemoryCache] keeps slots in process memory.
//   - [RedisCache] keeps slots in Redis and fans stores out over pub/sub so that
//     controllers in other processes observe them. Entries are stored in a small
//     versioned binary frame ([Encode], [Decode]); decoders accept older versions.
//
// # What this package must NOT do
//
//   - Import authsession or talk to the auth backend.
//   - Decide redirects or interpret policies.
package session
