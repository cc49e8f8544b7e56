// Package server owns the WebSocket edge: handshake admission,
// token verification, the per-connection read and write pumps, and the
// health endpoint. Everything behind the socket is delegated to the
// router.
package server
