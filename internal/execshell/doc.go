// Package execshell executes git commands through a typed wrapper that logs
// command lifecycles and surfaces structured results to callers.
package execshell
