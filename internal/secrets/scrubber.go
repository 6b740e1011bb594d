package secrets

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/zricethezav/gitleaks/v8/detect"
)

// Redaction replaces each detected secret.
const Redaction = "[REDACTED]"

// Result is the outcome of scrubbing one text.
type Result struct {
	Text  string         // input with every secret replaced by Redaction
	Lines []int          // 1-based lines that held a secret, ascending
	Rules map[string]int // finding counts per rule id
}

// Clean reports whether nothing was redacted.
func (r Result) Clean() bool {
	return len(r.Lines) == 0
}

// HasLine reports whether any line in [start, end] held a secret.
func (r Result) HasLine(start, end int) bool {
	i := sort.SearchInts(r.Lines, start)
	return i < len(r.Lines) && r.Lines[i] <= end
}

// Scrubber detects and redacts secrets. Safe for concurrent use.
type Scrubber struct {
	mu        sync.Mutex
	detector  *detect.Detector
	allowlist *Allowlist
}

// New builds a scrubber around the gitleaks default configuration.
func New() (*Scrubber, error) {
	detector, err := detect.NewDetectorDefaultConfig()
	if err != nil {
		return nil, fmt.Errorf("loading gitleaks config: %w", err)
	}
	return &Scrubber{detector: detector}, nil
}

// WithAllowlist returns s with values matching a exempted from redaction.
func (s *Scrubber) WithAllowlist(a *Allowlist) *Scrubber {
	if s == nil {
		return &Scrubber{allowlist: a}
	}
	s.allowlist = a
	return s
}

// Scrub redacts secrets in content.
func (s *Scrubber) Scrub(content string) Result {
	found := make(map[string]string) // secret -> rule id
	for _, r := range prefixRules {
		for _, m := range r.pattern.FindAllString(content, -1) {
			found[m] = r.id
		}
	}

	if s != nil && s.detector != nil {
		s.mu.Lock()
		findings := s.detector.DetectString(content)
		s.mu.Unlock()
		for _, f := range findings {
			if f.Secret != "" {
				if _, ok := found[f.Secret]; !ok {
					found[f.Secret] = f.RuleID
				}
			}
		}
	}

	if s != nil {
		for secret := range found {
			if s.allowlist.Allows(secret) {
				delete(found, secret)
			}
		}
	}

	res := Result{Text: content, Rules: make(map[string]int)}
	if len(found) == 0 {
		return res
	}

	// Longest first so a secret that contains another is replaced whole.
	secrets := make([]string, 0, len(found))
	for secret := range found {
		secrets = append(secrets, secret)
	}
	sort.Slice(secrets, func(i, j int) bool { return len(secrets[i]) > len(secrets[j]) })

	lines := make(map[int]bool)
	for _, secret := range secrets {
		for _, ln := range linesOf(content, secret) {
			lines[ln] = true
		}
		res.Rules[found[secret]]++
		res.Text = strings.ReplaceAll(res.Text, secret, Redaction)
	}

	for ln := range lines {
		res.Lines = append(res.Lines, ln)
	}
	sort.Ints(res.Lines)
	return res
}

// linesOf returns the 1-based lines on which needle starts.
func linesOf(content, needle string) []int {
	var out []int
	offset := 0
	for {
		i := strings.Index(content[offset:], needle)
		if i < 0 {
			return out
		}
		pos := offset + i
		out = append(out, strings.Count(content[:pos], "\n")+1)
		offset = pos + len(needle)
	}
}
