package secrets

import (
	"errors"
	"fmt"
	"regexp"

	"github.com/BurntSushi/toml"
)

// ErrInvalidAllowlist is returned for unparsable allowlist files or patterns.
var ErrInvalidAllowlist = errors.New("invalid allowlist")

// Allowlist holds patterns for values that look like secrets but are not,
// such as documented example keys. It uses the gitleaks file layout:
//
//	[allowlist]
//	regexes = ['''EXAMPLE_KEY_.*''']
type Allowlist struct {
	Regexes []*regexp.Regexp
}

// LoadAllowlist reads an allowlist TOML file.
func LoadAllowlist(path string) (*Allowlist, error) {
	var file allowlistFile
	if _, err := toml.DecodeFile(path, &file); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidAllowlist, path, err)
	}
	return file.compile(path)
}

// ParseAllowlist parses allowlist TOML content.
func ParseAllowlist(content string) (*Allowlist, error) {
	var file allowlistFile
	if _, err := toml.Decode(content, &file); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAllowlist, err)
	}
	return file.compile("inline")
}

type allowlistFile struct {
	Allowlist struct {
		Regexes []string `toml:"regexes"`
	} `toml:"allowlist"`
}

func (f allowlistFile) compile(source string) (*Allowlist, error) {
	a := &Allowlist{}
	for _, p := range f.Allowlist.Regexes {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("%w: pattern %q in %s: %v", ErrInvalidAllowlist, p, source, err)
		}
		a.Regexes = append(a.Regexes, re)
	}
	return a, nil
}

// Allows reports whether value matches an allowlist pattern.
func (a *Allowlist) Allows(value string) bool {
	if a == nil {
		return false
	}
	for _, re := range a.Regexes {
		if re.MatchString(value) {
			return true
		}
	}
	return false
}
