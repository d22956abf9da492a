// Package transfer performs the opaque bulk copy of a repository's full ref
// set from the source instance to the destination instance.
package transfer
