// Package live models recorder webhook events and the broadcast sessions they
// describe.
//
// Session values are built once per session end and never mutated. Condition
// matching addresses session fields through the Attribute table so that
// configuration can be validated against a closed set of names at load time.
package live
