package pipeline

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/ojfbot/daily-logger/internal/publish"
	"github.com/ojfbot/daily-logger/internal/stale"
)

// Report summarizes one run.
type Report struct {
	RunID           string                   `json:"run_id"`
	Date            string                   `json:"date"`
	DryRun          bool                     `json:"dry_run"`
	StartedAt       time.Time                `json:"started_at"`
	FinishedAt      time.Time                `json:"finished_at"`
	Repositories    int                      `json:"repositories"`
	Commits         int                      `json:"commits"`
	Candidates      map[stale.Kind]int       `json:"candidates"`
	Proposals       map[stale.Confidence]int `json:"proposals"`
	ProposalsByKind map[stale.Kind]int       `json:"proposals_by_kind"`
	OracleErrors    int                      `json:"oracle_errors"`
	Discarded       int                      `json:"discarded"`
	Overlaps        int                      `json:"overlaps"`
	Repos           []RepoReport             `json:"repos"`
}

// RepoReport is one repository's publish outcome.
type RepoReport struct {
	Repo        string         `json:"repo"`
	Status      publish.Status `json:"status"`
	Branch      string         `json:"branch"`
	Edits       int            `json:"edits"`
	Commit      string         `json:"commit,omitempty"`
	PullRequest string         `json:"pull_request,omitempty"`
	Step        publish.Step   `json:"step,omitempty"`
	Error       string         `json:"error,omitempty"`
}

func newReport(runID, date string, dryRun bool) *Report {
	return &Report{
		RunID:           runID,
		Date:            date,
		DryRun:          dryRun,
		StartedAt:       time.Now().UTC(),
		Candidates:      map[stale.Kind]int{},
		Proposals:       map[stale.Confidence]int{},
		ProposalsByKind: map[stale.Kind]int{},
		Repos:           []RepoReport{},
	}
}

func (r *Report) countCandidates(cands []stale.Candidate) {
	for _, c := range cands {
		r.Candidates[c.Kind]++
	}
}

func (r *Report) countProposals(props []stale.Proposal) {
	for _, p := range props {
		r.Proposals[p.Confidence]++
		r.ProposalsByKind[p.Kind]++
	}
}

func (r *Report) addOutcome(o publish.Outcome) {
	rr := RepoReport{
		Repo:        o.Repo,
		Status:      o.Status,
		Branch:      o.Branch,
		Edits:       o.Edits,
		Commit:      o.Commit,
		PullRequest: o.PullRequestURL(),
		Step:        o.FailedStep(),
	}
	if o.Err != nil {
		rr.Error = o.Err.Error()
	}
	r.Repos = append(r.Repos, rr)
}

// StatusCounts tallies repository outcomes by status.
func (r *Report) StatusCounts() map[publish.Status]int {
	out := make(map[publish.Status]int)
	for _, repo := range r.Repos {
		out[repo.Status]++
	}
	return out
}

// TotalCandidates sums candidates over all kinds.
func (r *Report) TotalCandidates() int {
	n := 0
	for _, v := range r.Candidates {
		n += v
	}
	return n
}

// TotalProposals sums proposals over all tiers.
func (r *Report) TotalProposals() int {
	n := 0
	for _, v := range r.Proposals {
		n += v
	}
	return n
}

// WriteFile writes the report as indented JSON.
func (r *Report) WriteFile(path string) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding report: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("writing report: %w", err)
	}
	return nil
}
