// Package room maintains the in-memory catalog of chat rooms: the
// seeded default group rooms, user-created group rooms, and derived
// direct-message rooms, together with their membership sets.
//
// Membership is tracked by identity key, not by connection, so several
// connections held by one user share a single membership slot. All
// mutation happens under one lock with insert-if-absent semantics;
// concurrent attempts to create the same direct room yield one room.
package room
