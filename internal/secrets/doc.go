// Package secrets redacts credentials from repository text before it is sent
// to the oracle. Detection uses the gitleaks default ruleset plus a short list
// of self-identifying token prefixes that are always enforced.
package secrets
