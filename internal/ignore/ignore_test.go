package ignore

import (
	"testing"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/stretchr/testify/assert"
)

func TestParseLine(t *testing.T) {
	tests := []struct {
		name     string
		line     string
		expected string
	}{
		{"empty line", "", ""},
		{"whitespace only", "   ", ""},
		{"comment", "# generated code", ""},
		{"negation skipped", "!keep.go", ""},
		{"file glob", "*.pb.go", "**/*.pb.go"},
		{"bare directory", "node_modules", "**/node_modules/**"},
		{"trailing slash", "third_party/", "**/third_party/**"},
		{"nested path", "web/legacy", "web/legacy/**"},
		{"rooted directory", "/dist", "dist/**"},
		{"rooted file", "/CHANGELOG.md", "CHANGELOG.md"},
		{"double star", "**/build", "**/build/**"},
		{"file with extension", "schema.sql", "**/schema.sql"},
		{"crlf", "vendor\r", "**/vendor/**"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, parseLine(tt.line))
		})
	}
}

func TestParse(t *testing.T) {
	content := "# sweep exclusions\nvendor\n*.pb.go\n\nvendor/\n!vendor/keep.go\n/scripts/\n"

	got := Parse(content)
	assert.Equal(t, []string{"**/vendor/**", "**/*.pb.go", "scripts/**"}, got)
	assert.Empty(t, Parse(""))
}

func TestParse_PatternsMatch(t *testing.T) {
	patterns := Parse("vendor\n*.pb.go\n/scripts/\n")

	match := func(path string) bool {
		for _, p := range patterns {
			if ok, _ := doublestar.Match(p, path); ok {
				return true
			}
		}
		return false
	}

	assert.True(t, match("vendor/lib/a.go"))
	assert.True(t, match("svc/vendor/x.go"))
	assert.True(t, match("api/v1/user.pb.go"))
	assert.True(t, match("scripts/release.sh"))
	assert.False(t, match("cmd/scripts/run.sh"))
	assert.False(t, match("internal/app.go"))
}
