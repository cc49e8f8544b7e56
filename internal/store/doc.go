// Package store persists chat messages.
//
// The engine treats the store as a synchronous external collaborator:
// Append and FetchRecent are the only blocking I/O in the message path,
// and failures surface to the sender as generic internal errors while
// full detail stays in the server log.
package store
