package transfer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/temirov/gmig/internal/execshell"
)

const (
	gitCloneSubcommandConstant            = "clone"
	gitPushSubcommandConstant             = "push"
	gitMirrorFlagConstant                 = "--mirror"
	mirrorDirectoryNameConstant           = "mirror.git"
	workspacePatternConstant              = "gmig-transfer-*"
	gitExecutorRequiredMessageConstant    = "git executor not configured"
	workspaceCreationErrorTemplate        = "unable to create transfer workspace: %w"
	hiddenRefRejectionMarkerConstant      = "deny updating a hidden ref"
	remoteRejectedMarkerConstant          = "[remote rejected]"
	mergeRequestRefMarkerConstant         = "refs/merge-requests/"
	mirrorClonedMessageConstant           = "Mirror clone completed"
	mirrorPushedMessageConstant           = "Mirror push completed"
	hiddenRefRejectionToleratedMessage    = "Mirror push rejected only hidden refs"
	transferSourceFieldNameConstant       = "source_url"
	transferDestinationFieldNameConstant  = "destination_url"
)

// Outcome captures the observable result of one transfer invocation.
type Outcome struct {
	OK                bool
	RejectedHiddenRef bool
	Detail            string
}

// GitExecutor abstracts git command execution for the transferrer.
type GitExecutor interface {
	ExecuteGit(executionContext context.Context, details execshell.CommandDetails) (execshell.ExecutionResult, error)
}

// GitMirrorTransferrer copies repositories with a mirror clone followed by a mirror push.
type GitMirrorTransferrer struct {
	logger      *zap.Logger
	gitExecutor GitExecutor
}

var errGitExecutorRequired = errors.New(gitExecutorRequiredMessageConstant)

// NewGitMirrorTransferrer constructs a transferrer using the provided git executor.
func NewGitMirrorTransferrer(logger *zap.Logger, gitExecutor GitExecutor) (*GitMirrorTransferrer, error) {
	if gitExecutor == nil {
		return nil, errGitExecutorRequired
	}

	resolvedLogger := logger
	if resolvedLogger == nil {
		resolvedLogger = zap.NewNop()
	}

	return &GitMirrorTransferrer{logger: resolvedLogger, gitExecutor: gitExecutor}, nil
}

// Transfer mirrors every ref from the source repository URL to the destination repository URL.
//
// A push rejected solely on server-internal hidden refs (merge request refs)
// is reported as a successful outcome with RejectedHiddenRef set, since the
// destination cannot accept those refs by policy.
func (transferrer *GitMirrorTransferrer) Transfer(executionContext context.Context, sourceURL string, destinationURL string) (Outcome, error) {
	workspaceDirectory, workspaceError := os.MkdirTemp("", workspacePatternConstant)
	if workspaceError != nil {
		return Outcome{}, fmt.Errorf(workspaceCreationErrorTemplate, workspaceError)
	}
	defer os.RemoveAll(workspaceDirectory)

	mirrorDirectory := filepath.Join(workspaceDirectory, mirrorDirectoryNameConstant)

	cloneResult, cloneError := transferrer.gitExecutor.ExecuteGit(executionContext, execshell.CommandDetails{
		Arguments: []string{gitCloneSubcommandConstant, gitMirrorFlagConstant, sourceURL, mirrorDirectory},
	})
	if cloneError != nil {
		var commandFailure execshell.CommandFailedError
		if errors.As(cloneError, &commandFailure) {
			return Outcome{OK: false, Detail: cloneResult.StandardError}, nil
		}
		return Outcome{}, cloneError
	}

	transferrer.logger.Debug(mirrorClonedMessageConstant, zap.String(transferSourceFieldNameConstant, sourceURL))

	pushResult, pushError := transferrer.gitExecutor.ExecuteGit(executionContext, execshell.CommandDetails{
		Arguments:        []string{gitPushSubcommandConstant, gitMirrorFlagConstant, destinationURL},
		WorkingDirectory: mirrorDirectory,
	})
	if pushError != nil {
		var commandFailure execshell.CommandFailedError
		if !errors.As(pushError, &commandFailure) {
			return Outcome{}, pushError
		}

		if isHiddenRefRejection(pushResult.StandardError) {
			transferrer.logger.Warn(
				hiddenRefRejectionToleratedMessage,
				zap.String(transferDestinationFieldNameConstant, destinationURL),
			)
			return Outcome{OK: true, RejectedHiddenRef: true, Detail: pushResult.StandardError}, nil
		}

		return Outcome{OK: false, Detail: pushResult.StandardError}, nil
	}

	transferrer.logger.Debug(mirrorPushedMessageConstant, zap.String(transferDestinationFieldNameConstant, destinationURL))

	return Outcome{OK: true}, nil
}

// isHiddenRefRejection reports whether push stderr only complains about
// server-internal hidden refs being rejected.
func isHiddenRefRejection(standardError string) bool {
	if !strings.Contains(standardError, hiddenRefRejectionMarkerConstant) &&
		!strings.Contains(standardError, mergeRequestRefMarkerConstant) {
		return false
	}

	for _, errorLine := range strings.Split(standardError, "\n") {
		if !strings.Contains(errorLine, remoteRejectedMarkerConstant) {
			continue
		}
		if strings.Contains(errorLine, mergeRequestRefMarkerConstant) || strings.Contains(errorLine, hiddenRefRejectionMarkerConstant) {
			continue
		}
		return false
	}

	return true
}
