// Package gitlabapi provides a minimal client for the v4 group and project
// REST API consumed on both the source and destination hosting instances.
package gitlabapi
