// Command afterlive runs the recording post-processing daemon and offers
// operator commands for inspecting the upload queue, checking the host and
// authorising the upload account.
package main
