package publish

import (
	"errors"
	"fmt"

	"github.com/ojfbot/daily-logger/internal/githost"
)

// Status is the terminal state of one repository's publish attempt.
type Status string

const (
	StatusDone     Status = "done"
	StatusSkipped  Status = "skipped"  // branch and open pull request already exist
	StatusOrphaned Status = "orphaned" // branch exists upstream with no open pull request
	StatusFailed   Status = "failed"
	StatusDryRun   Status = "dry_run"
)

// Step names the publish stage that produced an error.
type Step string

const (
	StepCheckBranch Step = "check_branch"
	StepClone       Step = "clone"
	StepCheckout    Step = "checkout"
	StepApply       Step = "apply"
	StepCommit      Step = "commit"
	StepPush        Step = "push"
	StepOpenPR      Step = "open_pr"
)

// StepError records which publish stage failed.
type StepError struct {
	Step Step
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%s: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// Outcome is the result of publishing one repository.
type Outcome struct {
	Repo        string
	Status      Status
	Branch      string
	Edits       int
	Commit      string
	PullRequest *githost.PullRequest
	Err         error
}

// FailedStep returns the step recorded in Err, or "" when there is none.
func (o Outcome) FailedStep() Step {
	var se *StepError
	if errors.As(o.Err, &se) {
		return se.Step
	}
	return ""
}

// PullRequestURL returns the pull request link, if any.
func (o Outcome) PullRequestURL() string {
	if o.PullRequest == nil {
		return ""
	}
	return o.PullRequest.URL
}
