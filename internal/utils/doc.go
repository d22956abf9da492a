// Package utils exposes reusable helpers consumed by the migration command.
//
// It houses the ConfigurationLoader and LoggerFactory abstractions that
// integrate Viper, environment variables, and zap logging for the CLI, plus
// small context and writer helpers shared across packages.
package utils
