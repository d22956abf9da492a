// Package state persists per-repository migration status records so external
// tooling can inspect progress and resume interrupted runs.
package state
