// Package uploadqueue persists processed sessions awaiting upload in SQLite
// and dispatches them to an uploader with bounded parallelism.
//
// A drain takes a snapshot of the whole queue and clears it in one statement.
// Every item that fails to upload is re-inserted with an identical payload and
// its attempt counter incremented; there is no retry cap. Items whose attempt
// counter passes a threshold are reported as stuck so an operator can step in.
package uploadqueue
