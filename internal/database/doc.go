// Package database provides the PostgreSQL connection pool for the
// message store. Room and connection state is in-memory only; the
// database holds persisted chat messages.
package database
