// Package workflow turns recorder events into processed sessions and upload
// drains.
//
// The Manager keeps one ordered lane per active room: a FIFO of events and a
// goroutine that handles them one at a time, so start, file and end events
// for a room are applied in arrival order while different rooms proceed in
// parallel. A finished session is drained from the tracker, judged by the
// decision engine and, when accepted, handed to the pipeline on a pool
// bounded by processing.workers. Successful jobs notify listener webhooks
// and land in the upload queue.
//
// The upload scheduler drains the queue once a day at upload.schedule, once
// on start when upload.run_on_start is set, and whenever TriggerDrain is
// called (auto_upload after each job, or the drain API).
package workflow
