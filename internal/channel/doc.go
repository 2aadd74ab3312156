// Package channel decides where on the upload platform a session lands.
//
// A Resolver combines the room rule, the recorder-area mapping of the YAML
// catalog and any matching conditions into an Assignment. The catalog file is
// optional and can be edited while the daemon runs; Watch reloads it and keeps
// the last good copy when an edit does not parse.
package channel
