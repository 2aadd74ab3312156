// Package upload turns a queued item into a platform upload.
//
// Uploader resolves the destination channel, renders the room's title,
// description and dynamic templates, and hands the pages to a Client. The
// YouTube client is the production implementation; tests substitute fakes.
package upload
