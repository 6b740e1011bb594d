package publish

import "github.com/ojfbot/daily-logger/internal/stale"

// RepoGroup is every proposal targeting one repository.
type RepoGroup struct {
	Repo      string
	Proposals []stale.Proposal
}

// Group partitions proposals by repository. Repositories appear in
// first-seen order and proposals keep their relative order, so every input
// proposal lands in exactly one group.
func Group(proposals []stale.Proposal) []RepoGroup {
	index := make(map[string]int)
	var groups []RepoGroup
	for _, p := range proposals {
		i, ok := index[p.Repo]
		if !ok {
			i = len(groups)
			index[p.Repo] = i
			groups = append(groups, RepoGroup{Repo: p.Repo})
		}
		groups[i].Proposals = append(groups[i].Proposals, p)
	}
	return groups
}
