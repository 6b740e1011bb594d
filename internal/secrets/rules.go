package secrets

import "regexp"

// rule is a pattern checked in addition to the gitleaks ruleset.
type rule struct {
	id      string
	pattern *regexp.Regexp
}

// prefixRules are token formats whose prefix identifies them outright.
var prefixRules = []rule{
	{"github-token", regexp.MustCompile(`gh[pousr]_[A-Za-z0-9]{36}`)},
	{"github-fine-grained", regexp.MustCompile(`github_pat_[A-Za-z0-9_]{22,}`)},
	{"gitlab-token", regexp.MustCompile(`glpat-[A-Za-z0-9\-]{20,}`)},
	{"openai-key", regexp.MustCompile(`sk-(?:proj-)?[A-Za-z0-9_\-]{32,}`)},
	{"anthropic-key", regexp.MustCompile(`sk-ant-[A-Za-z0-9_\-]{32,}`)},
	{"aws-access-key-id", regexp.MustCompile(`(?:A3T[A-Z0-9]|AKIA|ASIA)[A-Z0-9]{16}`)},
	{"private-key", regexp.MustCompile(`-----BEGIN (?:RSA |DSA |EC |OPENSSH |PGP )?PRIVATE KEY(?:[- ]BLOCK)?-----`)},
}
