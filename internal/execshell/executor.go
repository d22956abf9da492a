package execshell

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

const (
	gitCommandNameConstant                 = "git"
	loggerRequiredMessageConstant          = "logger must be provided"
	commandRunnerRequiredMessageConstant   = "command runner must be provided"
	commandFailureTemplateConstant         = "%s command failed with exit code %d"
	commandFailureWithStderrSuffixTemplate = ": %s"
	executionFailureTemplateConstant       = "unable to execute %s: %w"
	commandStartedMessageConstant          = "Shell command started"
	commandCompletedMessageConstant        = "Shell command completed"
	commandFieldNameConstant               = "command"
	argumentsFieldNameConstant             = "arguments"
	workingDirectoryFieldNameConstant      = "working_directory"
	exitCodeFieldNameConstant              = "exit_code"
	argumentsJoinSeparatorConstant         = " "
)

// CommandName identifies the executable invoked by the shell executor.
type CommandName string

// CommandGit names the git executable.
const CommandGit CommandName = CommandName(gitCommandNameConstant)

// CommandDetails captures the arguments and environment for one invocation.
type CommandDetails struct {
	Arguments        []string
	WorkingDirectory string
}

// ShellCommand couples an executable name with its invocation details.
type ShellCommand struct {
	Name    CommandName
	Details CommandDetails
}

// ExecutionResult captures the observable outcome of a command invocation.
type ExecutionResult struct {
	StandardOutput string
	StandardError  string
	ExitCode       int
}

// CommandFailedError reports a command completing with a non-zero exit code.
type CommandFailedError struct {
	Command ShellCommand
	Result  ExecutionResult
}

// Error describes the failed command including trimmed standard error output.
func (failure CommandFailedError) Error() string {
	message := fmt.Sprintf(commandFailureTemplateConstant, failure.Command.Name, failure.Result.ExitCode)
	trimmedStandardError := strings.TrimSpace(failure.Result.StandardError)
	if len(trimmedStandardError) > 0 {
		message += fmt.Sprintf(commandFailureWithStderrSuffixTemplate, trimmedStandardError)
	}
	return message
}

// CommandRunner abstracts the operating system execution of shell commands.
type CommandRunner interface {
	Run(executionContext context.Context, command ShellCommand) (ExecutionResult, error)
}

// ShellExecutor runs git commands and logs their lifecycle.
type ShellExecutor struct {
	logger        *zap.Logger
	commandRunner CommandRunner
}

var (
	errLoggerRequired        = errors.New(loggerRequiredMessageConstant)
	errCommandRunnerRequired = errors.New(commandRunnerRequiredMessageConstant)
)

// NewShellExecutor constructs a ShellExecutor with the provided collaborators.
func NewShellExecutor(logger *zap.Logger, commandRunner CommandRunner) (*ShellExecutor, error) {
	if logger == nil {
		return nil, errLoggerRequired
	}
	if commandRunner == nil {
		return nil, errCommandRunnerRequired
	}

	return &ShellExecutor{logger: logger, commandRunner: commandRunner}, nil
}

// ExecuteGit runs a git command described by the provided details.
//
// A non-zero exit code is returned as a CommandFailedError carrying the full
// execution result so callers can classify the failure.
func (executor *ShellExecutor) ExecuteGit(executionContext context.Context, details CommandDetails) (ExecutionResult, error) {
	command := ShellCommand{Name: CommandGit, Details: details}

	executor.logger.Debug(
		commandStartedMessageConstant,
		zap.String(commandFieldNameConstant, string(command.Name)),
		zap.String(argumentsFieldNameConstant, strings.Join(details.Arguments, argumentsJoinSeparatorConstant)),
		zap.String(workingDirectoryFieldNameConstant, details.WorkingDirectory),
	)

	executionResult, runError := executor.commandRunner.Run(executionContext, command)
	if runError != nil {
		return ExecutionResult{}, fmt.Errorf(executionFailureTemplateConstant, command.Name, runError)
	}

	executor.logger.Debug(
		commandCompletedMessageConstant,
		zap.String(commandFieldNameConstant, string(command.Name)),
		zap.Int(exitCodeFieldNameConstant, executionResult.ExitCode),
	)

	if executionResult.ExitCode != 0 {
		return executionResult, CommandFailedError{Command: command, Result: executionResult}
	}

	return executionResult, nil
}
