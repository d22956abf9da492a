// Package migrate implements the migration workflow that replicates a group
// tree and its repositories from one hosting instance to another, driving each
// repository through a skip/transfer/verify state machine with durable status.
package migrate
