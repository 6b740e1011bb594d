// Package stale defines the values that flow through a cleanup run.
//
// A Candidate is a region of a repository file that may have drifted from
// the code it describes. A Proposal is a Candidate the oracle confirmed as
// stale, carrying a concrete line-range edit and a confidence tier. Low
// confidence never reaches a Proposal.
package stale
