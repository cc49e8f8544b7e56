// Package receipt tracks read receipts and per-user unread counts.
// Receipts are idempotent on (message, user): only the first mark for a
// pair is recorded and announced. Group rooms announce read updates to
// the whole room; direct rooms notify only the counterpart.
package receipt
