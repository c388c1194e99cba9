package changelog

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `# Changelog

## [3.0.0] - 2024-05-01

### Breaking Changes
- Removed ` + "`requests.post`" + `
- Dropped Python 3.7

### Added
- New timeout argument

## 2.1.0

Fixed a bug in retries.

## v2.0.0 (2023-01-15)
Initial release of the 2.x line.

## Unreleased
`

func TestParseMarkdown(t *testing.T) {
	entries := ParseMarkdown(sample)
	require.Len(t, entries, 3)

	assert.Equal(t, "3.0.0", entries[0].Version)
	assert.Equal(t, "2024-05-01", entries[0].Date)
	assert.Contains(t, entries[0].Content, "Dropped Python 3.7")

	assert.Equal(t, "2.1.0", entries[1].Version)
	assert.Empty(t, entries[1].Date)
	assert.Equal(t, "Fixed a bug in retries.", entries[1].Content)

	assert.Equal(t, "2.0.0", entries[2].Version)
	assert.Equal(t, "2023-01-15", entries[2].Date)
	// Non-version headers stay in the preceding entry's body.
	assert.Equal(t, "Initial release of the 2.x line.\n\n## Unreleased", entries[2].Content)
}

func TestParseMarkdown_NoHeaders(t *testing.T) {
	assert.Empty(t, ParseMarkdown("just some text\nwithout versions\n"))
}

func TestFilterRange(t *testing.T) {
	entries := []Entry{
		{Version: "3.0.0"},
		{Version: "2.1.0"},
		{Version: "2.0.0"},
		{Version: "nightly-build"},
	}

	got := FilterRange(entries, "2.0.0", "3.0.0")
	require.Len(t, got, 3)
	assert.Equal(t, "3.0.0", got[0].Version, "upper bound is inclusive")
	assert.Equal(t, "2.1.0", got[1].Version)
	assert.Equal(t, "nightly-build", got[2].Version, "unparseable versions are kept")

	assert.Len(t, FilterRange(entries, "", "2.1.0"), 3)
	assert.Len(t, FilterRange(entries, "garbage", "3.0.0"), 4)
}

func TestExtractBreakingChanges(t *testing.T) {
	entries := ParseMarkdown(sample)
	got := ExtractBreakingChanges(entries[0])
	assert.Equal(t, []string{
		"Removed `requests.post`",
		"Dropped Python 3.7",
		"### Breaking Changes",
		"- Removed `requests.post`",
	}, got)
}

func TestExtractBreakingChanges_Limit(t *testing.T) {
	content := ""
	for i := 0; i < 15; i++ {
		content += "- removed thing " + string(rune('a'+i)) + "\n"
	}
	assert.Len(t, ExtractBreakingChanges(Entry{Content: content}), 10)
}

func TestExtractReleaseNotes(t *testing.T) {
	desc := "# mylib\n\nA library.\n\n## Release Notes\n\n- fixed things\n\n## License\nMIT\n"
	assert.Equal(t, "## Release Notes\n\n- fixed things", ExtractReleaseNotes(desc))

	long := make([]byte, 800)
	for i := range long {
		long[i] = 'x'
	}
	assert.Len(t, ExtractReleaseNotes(string(long)), 500)

	accented := strings.Repeat("x", 499) + strings.Repeat("é", 10)
	notes := ExtractReleaseNotes(accented)
	assert.Len(t, notes, 499)
	assert.True(t, utf8.ValidString(notes))
}

func TestTruncateUTF8(t *testing.T) {
	assert.Equal(t, "short", truncateUTF8("short", 10))
	assert.Equal(t, "ab", truncateUTF8("ab€", 4), "three-byte rune is dropped whole")
	assert.Equal(t, "ab€", truncateUTF8("ab€d", 5))
	assert.Equal(t, "", truncateUTF8("€", 2))
}
