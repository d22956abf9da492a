package migrate

import (
	"fmt"
	"strings"
)

const (
	sourceURLFieldNameConstant          = "source.url"
	sourceGroupFieldNameConstant        = "source.group"
	sourceTokenFieldNameConstant        = "source.token"
	destinationURLFieldNameConstant     = "destination.url"
	destinationGroupFieldNameConstant   = "destination.group"
	destinationTokenFieldNameConstant   = "destination.token"
	stateFileFieldNameConstant          = "state_file"
	requiredValueMessageConstant        = "value required"
	defaultStateFileNameConstant        = "migration-status.yaml"
	defaultRunLogFileNameConstant       = "migration-run.log"
	defaultErrorLogFileNameConstant     = "migration-errors.log"
	configurationKeySeparatorConstant   = "."
	stateFileConfigurationKeyConstant   = "state_file"
	runLogConfigurationKeyConstant      = "run_log"
	errorLogConfigurationKeyConstant    = "error_log"
	dryRunConfigurationKeyConstant      = "dry_run"
)

// InvalidInputError describes migration configuration validation failures.
type InvalidInputError struct {
	FieldName string
	Message   string
}

// Error describes the invalid input.
func (inputError InvalidInputError) Error() string {
	return fmt.Sprintf("%s: %s", inputError.FieldName, inputError.Message)
}

// EndpointConfiguration identifies one hosting instance and the group tree on it.
type EndpointConfiguration struct {
	URL   string `mapstructure:"url"`
	Group string `mapstructure:"group"`
	Token string `mapstructure:"token"`
}

// CommandConfiguration captures persisted configuration for the migrate command.
type CommandConfiguration struct {
	Source           EndpointConfiguration `mapstructure:"source"`
	Destination      EndpointConfiguration `mapstructure:"destination"`
	SkipRepositories []string              `mapstructure:"skip_repositories"`
	LegacyPrefix     string                `mapstructure:"legacy_prefix"`
	StateFilePath    string                `mapstructure:"state_file"`
	RunLogPath       string                `mapstructure:"run_log"`
	ErrorLogPath     string                `mapstructure:"error_log"`
	DryRun           bool                  `mapstructure:"dry_run"`
}

// DefaultCommandConfiguration returns baseline configuration values for migration.
func DefaultCommandConfiguration() CommandConfiguration {
	return CommandConfiguration{
		StateFilePath: defaultStateFileNameConstant,
		RunLogPath:    defaultRunLogFileNameConstant,
		ErrorLogPath:  defaultErrorLogFileNameConstant,
	}
}

// DefaultConfigurationValues exposes migration defaults keyed beneath the provided configuration key.
func DefaultConfigurationValues(configurationKey string) map[string]any {
	return map[string]any{
		configurationKey + configurationKeySeparatorConstant + stateFileConfigurationKeyConstant: defaultStateFileNameConstant,
		configurationKey + configurationKeySeparatorConstant + runLogConfigurationKeyConstant:    defaultRunLogFileNameConstant,
		configurationKey + configurationKeySeparatorConstant + errorLogConfigurationKeyConstant:  defaultErrorLogFileNameConstant,
		configurationKey + configurationKeySeparatorConstant + dryRunConfigurationKeyConstant:    false,
	}
}

// Sanitize trims configured values and removes empty skip entries.
func (configuration CommandConfiguration) Sanitize() CommandConfiguration {
	sanitized := configuration
	sanitized.Source = configuration.Source.sanitize()
	sanitized.Destination = configuration.Destination.sanitize()
	sanitized.LegacyPrefix = strings.TrimSpace(configuration.LegacyPrefix)
	sanitized.StateFilePath = strings.TrimSpace(configuration.StateFilePath)
	sanitized.RunLogPath = strings.TrimSpace(configuration.RunLogPath)
	sanitized.ErrorLogPath = strings.TrimSpace(configuration.ErrorLogPath)

	sanitizedSkipRepositories := make([]string, 0, len(configuration.SkipRepositories))
	for _, skipCandidate := range configuration.SkipRepositories {
		trimmedCandidate := strings.TrimSpace(skipCandidate)
		if len(trimmedCandidate) == 0 {
			continue
		}
		sanitizedSkipRepositories = append(sanitizedSkipRepositories, trimmedCandidate)
	}
	if len(sanitizedSkipRepositories) == 0 {
		sanitizedSkipRepositories = nil
	}
	sanitized.SkipRepositories = sanitizedSkipRepositories

	return sanitized
}

// Validate reports the first missing required configuration value.
func (configuration CommandConfiguration) Validate() error {
	requiredValues := []struct {
		fieldName  string
		fieldValue string
	}{
		{fieldName: sourceURLFieldNameConstant, fieldValue: configuration.Source.URL},
		{fieldName: sourceGroupFieldNameConstant, fieldValue: configuration.Source.Group},
		{fieldName: sourceTokenFieldNameConstant, fieldValue: configuration.Source.Token},
		{fieldName: destinationURLFieldNameConstant, fieldValue: configuration.Destination.URL},
		{fieldName: destinationGroupFieldNameConstant, fieldValue: configuration.Destination.Group},
		{fieldName: destinationTokenFieldNameConstant, fieldValue: configuration.Destination.Token},
		{fieldName: stateFileFieldNameConstant, fieldValue: configuration.StateFilePath},
	}

	for _, requiredValue := range requiredValues {
		if len(strings.TrimSpace(requiredValue.fieldValue)) == 0 {
			return InvalidInputError{FieldName: requiredValue.fieldName, Message: requiredValueMessageConstant}
		}
	}

	return nil
}

func (endpoint EndpointConfiguration) sanitize() EndpointConfiguration {
	sanitized := endpoint
	sanitized.URL = strings.TrimRight(strings.TrimSpace(endpoint.URL), groupPathSeparatorConstant)
	sanitized.Group = strings.Trim(strings.TrimSpace(endpoint.Group), groupPathSeparatorConstant)
	sanitized.Token = strings.TrimSpace(endpoint.Token)
	return sanitized
}
