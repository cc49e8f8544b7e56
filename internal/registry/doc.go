// Package registry tracks every live connection: its id, its
// authenticated or guest identity, and the room it currently occupies.
//
// The registry exclusively owns connection records. All accessors return
// value copies; unregistering an unknown id is a no-op so disconnect
// races never raise.
package registry
