// Package store provides SQLite-backed durable storage for the
// attendance engine.
//
// One database holds everything the engine must keep transactionally
// co-located: the nonce ledger that backs replay rejection, attendance
// records, the priority-ordered sync operation queue, the full-sync
// checkpoint, and resolved canonical entity states.
//
// Record creation and queue enqueue always share a transaction, so a
// crash between the two writes cannot strand a record outside the
// queue.
package store
