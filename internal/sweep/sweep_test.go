package sweep

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ojfbot/daily-logger/internal/activity"
	"github.com/ojfbot/daily-logger/internal/githost"
	"github.com/ojfbot/daily-logger/internal/stale"
)

type fakeSource struct {
	files   map[string]string                // repo/path -> content
	commits map[string][]githost.ChangedFile // sha -> files
	errs    map[string]error                 // repo/path -> read error
	reads   []string
}

func (f *fakeSource) CommitFiles(_ context.Context, _ string, sha string) ([]githost.ChangedFile, error) {
	files, ok := f.commits[sha]
	if !ok {
		return nil, githost.ErrNotFound
	}
	return files, nil
}

func (f *fakeSource) ReadFile(_ context.Context, repo, path string) (string, error) {
	key := repo + "/" + path
	f.reads = append(f.reads, key)
	if err := f.errs[key]; err != nil {
		return "", err
	}
	content, ok := f.files[key]
	if !ok {
		return "", githost.ErrNotFound
	}
	return content, nil
}

func testOptions() Options {
	return Options{
		DocFiles:      []string{"README.md", "CLAUDE.md"},
		TagPatterns:   []string{"TODO", "FIXME", "HACK", "XXX"},
		FixMarkers:    []string{"FIXME", "XXX"},
		MaxCommits:    10,
		MaxFiles:      20,
		MinDocLength:  20,
		MinTagText:    10,
		ContextRadius: 8,
		SourceGlobs:   []string{"**/*.{go,ts,tsx,js}"},
		IgnoreGlobs:   []string{"**/node_modules/**", "**/*.min.js"},
		DigestCommits: 20,
		DigestBytes:   4000,
	}
}

func newSweeper(t *testing.T, src Source) *Sweeper {
	t.Helper()
	s, err := New(src, testOptions())
	require.NoError(t, err)
	return s
}

func fooTS() string {
	lines := make([]string, 20)
	for i := range lines {
		lines[i] = fmt.Sprintf("const v%d = %d;", i+1, i+1)
	}
	lines[11] = "// TODO: remove fallback once migrated"
	return strings.Join(lines, "\n") + "\n"
}

func TestNew_Errors(t *testing.T) {
	opts := testOptions()
	opts.TagPatterns = nil
	_, err := New(&fakeSource{}, opts)
	assert.Error(t, err)

	opts = testOptions()
	opts.SourceGlobs = []string{"src/[unclosed"}
	_, err = New(&fakeSource{}, opts)
	assert.Error(t, err)
}

func TestNumberLines(t *testing.T) {
	assert.Equal(t, "1 | a\n2 | b\n3 | c", NumberLines([]string{"a", "b", "c"}, 1))
	assert.Equal(t, "5 | x", NumberLines([]string{"x"}, 5))
	assert.Empty(t, NumberLines(nil, 1))
}

func TestDocCandidate_ContextCompleteness(t *testing.T) {
	s := newSweeper(t, &fakeSource{})

	var lines []string
	for i := 0; i < 57; i++ {
		lines = append(lines, fmt.Sprintf("line %d of the readme", i+1))
	}
	content := strings.Join(lines, "\n") + "\n"

	c, ok := s.DocCandidate("core", "README.md", content, "- abc fix")
	require.True(t, ok)
	assert.Equal(t, 1, c.StartLine)
	assert.Equal(t, 57, c.EndLine)
	assert.Equal(t, stale.KindDocFile, c.Kind)
	assert.Equal(t, content, c.Original)

	numbered := strings.Split(c.Context, "\n")
	require.Len(t, numbered, 57)
	for i, l := range numbered {
		assert.True(t, strings.HasPrefix(l, fmt.Sprintf("%d | ", i+1)), "line %d: %q", i+1, l)
	}
}

func TestDocCandidate_TooShort(t *testing.T) {
	s := newSweeper(t, &fakeSource{})
	_, ok := s.DocCandidate("core", "README.md", "# core\n", "")
	assert.False(t, ok)
}

func TestWindow_Clipping(t *testing.T) {
	start, end := Window(1, 3, 8)
	assert.Equal(t, 1, start)
	assert.Equal(t, 3, end)

	start, end = Window(3, 3, 8)
	assert.Equal(t, 1, start)
	assert.Equal(t, 3, end)

	start, end = Window(12, 20, 8)
	assert.Equal(t, 4, start)
	assert.Equal(t, 20, end)

	start, end = Window(50, 100, 8)
	assert.Equal(t, 42, start)
	assert.Equal(t, 58, end)
}

func TestTagCandidates(t *testing.T) {
	s := newSweeper(t, &fakeSource{})
	content := strings.Join([]string{
		"// FIXME: handle the retry storm properly",
		"func f() {}",
		"// TODO: short",
		"\t// TODO(ojf): drop the v1 adapter after cutover",
		"// HACK tolerate missing headers from proxy",
		"todo: lowercase is not a marker at all",
		"const TODOS = 3 // no text after marker",
	}, "\n")

	got := s.TagCandidates("core", "src/a.go", content, "- abc change")
	require.Len(t, got, 3)

	assert.Equal(t, 1, got[0].StartLine)
	assert.Equal(t, stale.KindFixme, got[0].Kind)
	// line 1 of a 7-line file: window starts at 1, never before it
	assert.True(t, strings.HasPrefix(got[0].Context, "1 | // FIXME"))
	assert.True(t, strings.HasSuffix(got[0].Context, "7 | const TODOS = 3 // no text after marker"))

	assert.Equal(t, 4, got[1].StartLine)
	assert.Equal(t, 4, got[1].EndLine)
	assert.Equal(t, stale.KindTodo, got[1].Kind)
	assert.Equal(t, "\t// TODO(ojf): drop the v1 adapter after cutover", got[1].Original)

	assert.Equal(t, 5, got[2].StartLine)
	assert.Equal(t, stale.KindTodo, got[2].Kind)
	assert.Equal(t, "- abc change", got[2].RecentCommits)
}

func TestTagCandidates_NoSpaceAfterColon(t *testing.T) {
	s := newSweeper(t, &fakeSource{})
	content := "package main\n// TODO:remove fallback once migrated\n// FIXME:x\n"

	got := s.TagCandidates("core", "src/a.go", content, "")
	require.Len(t, got, 1, "short text stays below the length gate")
	assert.Equal(t, 2, got[0].StartLine)
	assert.Equal(t, stale.KindTodo, got[0].Kind)
	assert.Equal(t, "// TODO:remove fallback once migrated", got[0].Original)
}

func TestTagCandidates_LastLineWindow(t *testing.T) {
	s := newSweeper(t, &fakeSource{})
	content := "a\nb\n// XXX: this path leaks a file handle"

	got := s.TagCandidates("core", "src/a.go", content, "")
	require.Len(t, got, 1)
	assert.Equal(t, 3, got[0].StartLine)
	assert.Equal(t, "1 | a\n2 | b\n3 | // XXX: this path leaks a file handle", got[0].Context)
}

func TestSweep_ConcreteScenario(t *testing.T) {
	src := &fakeSource{
		files: map[string]string{
			"core/src/foo.ts": fooTS(),
		},
		commits: map[string][]githost.ChangedFile{
			"abc1234": {{Path: "src/foo.ts", Status: "modified"}},
		},
	}
	s := newSweeper(t, src)

	feed := &activity.Feed{Date: "2026-10-14", Repos: []activity.Repo{{
		Name:    "core",
		Commits: []activity.Commit{{Hash: "abc1234", Message: "remove fallback", Repo: "core"}},
	}}}

	got := s.Sweep(context.Background(), feed)
	require.Len(t, got, 1)
	c := got[0]
	assert.Equal(t, "core", c.Repo)
	assert.Equal(t, "src/foo.ts", c.FilePath)
	assert.Equal(t, 12, c.StartLine)
	assert.Equal(t, 12, c.EndLine)
	assert.Equal(t, "// TODO: remove fallback once migrated", c.Original)
	assert.Equal(t, "- abc1234 remove fallback", c.RecentCommits)

	window := strings.Split(c.Context, "\n")
	assert.Len(t, window, 17)
	assert.True(t, strings.HasPrefix(window[0], "4 | "))
	assert.True(t, strings.HasPrefix(window[16], "20 | "))
}

func TestSweep_NoCommitsShortCircuits(t *testing.T) {
	src := &fakeSource{files: map[string]string{"core/README.md": strings.Repeat("docs ", 100)}}
	s := newSweeper(t, src)

	got := s.Sweep(context.Background(), &activity.Feed{Repos: []activity.Repo{{Name: "core"}}})
	assert.Empty(t, got)
	assert.Empty(t, src.reads, "no remote reads without recent commits")
}

func TestSweep_FileSelectionAndFailures(t *testing.T) {
	src := &fakeSource{
		files: map[string]string{
			"core/README.md":               strings.Repeat("a long enough readme line\n", 5),
			"core/src/keep.go":             "// TODO: remove the legacy flag parser\n",
			"core/node_modules/x/index.js": "// TODO: vendored code is never swept\n",
			"core/web/app.min.js":          "// TODO: minified code is never swept\n",
			"core/docs/guide.md":           "// TODO: markdown is not a source file\n",
		},
		commits: map[string][]githost.ChangedFile{
			"c1": {
				{Path: "src/keep.go", Status: "modified"},
				{Path: "src/gone.go", Status: "removed"},
				{Path: "node_modules/x/index.js", Status: "modified"},
			},
			"c2": {
				{Path: "web/app.min.js", Status: "added"},
				{Path: "docs/guide.md", Status: "modified"},
				{Path: "src/broken.go", Status: "modified"},
				{Path: "src/keep.go", Status: "modified"},
			},
		},
		errs: map[string]error{"core/src/broken.go": errors.New("decode failure")},
	}
	s := newSweeper(t, src)

	feed := &activity.Feed{Repos: []activity.Repo{{
		Name: "core",
		Commits: []activity.Commit{
			{Hash: "c1", Message: "one"},
			{Hash: "c2", Message: "two"},
			{Hash: "missing", Message: "three"},
		},
	}}}

	got := s.Sweep(context.Background(), feed)
	require.Len(t, got, 2)
	assert.Equal(t, "README.md", got[0].FilePath)
	assert.Equal(t, stale.KindDocFile, got[0].Kind)
	assert.Equal(t, "src/keep.go", got[1].FilePath)

	assert.NotContains(t, src.reads, "core/src/gone.go")
	assert.NotContains(t, src.reads, "core/node_modules/x/index.js")
	assert.Contains(t, src.reads, "core/src/broken.go")
	assert.Equal(t, 1, countOf(src.reads, "core/src/keep.go"))
}

func TestSweep_MaxFiles(t *testing.T) {
	changed := make([]githost.ChangedFile, 5)
	files := map[string]string{}
	for i := range changed {
		path := fmt.Sprintf("src/f%d.go", i)
		changed[i] = githost.ChangedFile{Path: path, Status: "modified"}
		files["core/"+path] = "// TODO: this is a long enough tag text\n"
	}
	src := &fakeSource{files: files, commits: map[string][]githost.ChangedFile{"c1": changed}}

	opts := testOptions()
	opts.MaxFiles = 2
	s, err := New(src, opts)
	require.NoError(t, err)

	got := s.SweepRepo(context.Background(), activity.Repo{Name: "core", Commits: []activity.Commit{{Hash: "c1"}}})
	assert.Len(t, got, 2)
}

func TestSweep_RepositoryIgnoreFile(t *testing.T) {
	src := &fakeSource{
		files: map[string]string{
			"core/.cleanerignore":  "# generated\n*.pb.go\nlegacy/\n",
			"core/api/user.pb.go":  "// TODO: regenerate once the proto settles\n",
			"core/legacy/old.go":   "// TODO: delete this package entirely\n",
			"core/internal/new.go": "// TODO: wire the new scheduler here\n",
		},
		commits: map[string][]githost.ChangedFile{"c1": {
			{Path: "api/user.pb.go", Status: "modified"},
			{Path: "legacy/old.go", Status: "modified"},
			{Path: "internal/new.go", Status: "modified"},
		}},
	}
	s := newSweeper(t, src)

	got := s.SweepRepo(context.Background(), activity.Repo{Name: "core", Commits: []activity.Commit{{Hash: "c1"}}})
	require.Len(t, got, 1)
	assert.Equal(t, "internal/new.go", got[0].FilePath)
	assert.NotContains(t, src.reads, "core/api/user.pb.go")
	assert.NotContains(t, src.reads, "core/legacy/old.go")
}

func countOf(list []string, v string) int {
	n := 0
	for _, s := range list {
		if s == v {
			n++
		}
	}
	return n
}
