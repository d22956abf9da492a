package migrate

import "fmt"

const (
	groupNotFoundErrorTemplateConstant      = "group %s not found on %s"
	parentGroupMissingErrorTemplateConstant = "parent group %s does not exist on the destination"
	groupCreateFailedErrorTemplateConstant  = "unable to create destination group %s: %v"
	invalidRepositoryErrorTemplateConstant  = "repository %s is invalid: %s"
	transferFailedErrorTemplateConstant     = "transfer of %s failed: %s"
	verificationFailedErrorTemplateConstant = "destination project %s not visible after %d verification attempts"
)

// GroupNotFoundError reports a group path that neither lookup strategy located.
type GroupNotFoundError struct {
	BaseURL   string
	GroupPath string
}

// Error describes the missing group.
func (notFoundError GroupNotFoundError) Error() string {
	return fmt.Sprintf(groupNotFoundErrorTemplateConstant, notFoundError.GroupPath, notFoundError.BaseURL)
}

// ParentGroupMissingError reports an absent destination parent group.
//
// The destination root group must pre-exist; it is never auto-created.
type ParentGroupMissingError struct {
	ParentPath string
}

// Error describes the missing parent group.
func (missingError ParentGroupMissingError) Error() string {
	return fmt.Sprintf(parentGroupMissingErrorTemplateConstant, missingError.ParentPath)
}

// GroupCreateFailedError reports a failed destination group creation.
type GroupCreateFailedError struct {
	TargetPath string
	Cause      error
}

// Error describes the failed creation.
func (createError GroupCreateFailedError) Error() string {
	return fmt.Sprintf(groupCreateFailedErrorTemplateConstant, createError.TargetPath, createError.Cause)
}

// Unwrap exposes the underlying cause.
func (createError GroupCreateFailedError) Unwrap() error {
	return createError.Cause
}

// InvalidRepositoryError reports a repository record missing a usable identity.
type InvalidRepositoryError struct {
	RepositoryURL string
	Reason        string
}

// Error describes the integrity failure.
func (invalidError InvalidRepositoryError) Error() string {
	return fmt.Sprintf(invalidRepositoryErrorTemplateConstant, invalidError.RepositoryURL, invalidError.Reason)
}

// TransferFailedError reports a transfer collaborator failure outside the benign class.
type TransferFailedError struct {
	RepositoryPath string
	Detail         string
}

// Error describes the failed transfer.
func (transferError TransferFailedError) Error() string {
	return fmt.Sprintf(transferFailedErrorTemplateConstant, transferError.RepositoryPath, transferError.Detail)
}

// VerificationFailedError reports a transferred repository that never became visible.
type VerificationFailedError struct {
	TargetPath string
	Attempts   int
}

// Error describes the exhausted verification retries.
func (verificationError VerificationFailedError) Error() string {
	return fmt.Sprintf(verificationFailedErrorTemplateConstant, verificationError.TargetPath, verificationError.Attempts)
}
