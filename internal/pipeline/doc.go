// Package pipeline turns a finished session's recordings into output videos.
//
// A run moves through four stages, each logged with a stage field, timed in
// prometheus and wrapped in a trace span:
//
//   - stage: copy the recordings into <work_dir>/<room>_<start> as record<i>.<ext>
//   - merge: concatenate parts into record.flv and merge chat logs (multipart off)
//   - subtitle: compile each chat log into an .ass subtitle file
//   - composite: burn subtitles into out<i>.flv, or rename when there are none
//
// External tools run through Runner with argv slices, a fixed timeout and
// captured output. Success is decided by verifying the expected output file,
// not by the exit status.
package pipeline
