package settings

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func keys(b *Board) []string {
	out := make([]string, len(b.Columns))
	for i, c := range b.Columns {
		out[i] = c.Key
	}
	return out
}

func TestDefault(t *testing.T) {
	b := Default()
	assert.Equal(t, DefaultName, b.Name)
	assert.Equal(t, DefaultTheme, b.Theme)
	assert.True(t, b.UseVirtualization)
	assert.Equal(t, []string{"To Do", "Doing", "Done"}, keys(b))
	assert.Equal(t, "to-do", b.Columns[0].Slug)
	require.NoError(t, b.Validate())
}

func TestLoad_MissingFile(t *testing.T) {
	b, warns := Load(filepath.Join(t.TempDir(), FileName))
	require.Len(t, warns, 1)
	assert.Equal(t, LevelInfo, warns[0].Level)
	assert.Contains(t, warns[0].Message, "No horizon.json file found")
	assert.Equal(t, Default(), b)
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	require.NoError(t, os.WriteFile(path, []byte(`{
		"name": "Sprint 12",
		"storyDirectory": "stories",
		"theme": "light",
		"columns": ["Backlog", "Done"],
		"useVirtualization": false
	}`), 0o644))

	b, warns := Load(path)
	assert.Empty(t, warns)
	assert.Equal(t, "Sprint 12", b.Name)
	assert.Equal(t, "stories", b.StoryDirectory)
	assert.Equal(t, "light", b.Theme)
	assert.Equal(t, []string{"Backlog", "Done"}, keys(b))
	assert.False(t, b.UseVirtualization)
}

func TestResolve_UnknownThemeFallsBack(t *testing.T) {
	b, warns := Resolve([]byte(`{"columns": ["Todo"], "theme": "nonexistent"}`))
	require.NotNil(t, b)
	assert.Equal(t, DefaultTheme, b.Theme)
	palette, _ := Theme(DefaultTheme)
	assert.Equal(t, palette, b.Colors)
	assert.Equal(t, []string{"Todo"}, keys(b))
	require.Len(t, warns, 1)
	assert.Equal(t, LevelWarning, warns[0].Level)
}

func TestResolve_ParseErrorReturnsDefaults(t *testing.T) {
	b, warns := Resolve([]byte(`{"columns": [`))
	assert.Equal(t, Default(), b)
	require.Len(t, warns, 1)
	assert.Equal(t, LevelError, warns[0].Level)
}

func TestResolve_ColorOverridesWinPerKey(t *testing.T) {
	b, warns := Resolve([]byte(`{"theme": "dark", "colors": {"header": "#000000", "storyId": "#123456"}}`))
	assert.Empty(t, warns)
	dark, _ := Theme("dark")
	assert.Equal(t, "#000000", b.Colors.Header)
	assert.Equal(t, "#123456", b.Colors.StoryID)
	assert.Equal(t, dark.PageBg, b.Colors.PageBg)
	assert.Equal(t, dark.CardBg, b.Colors.CardBg)
}

func TestResolve_ObjectColumnsKeepOrder(t *testing.T) {
	b, warns := Resolve([]byte(`{"columns": {
		"zeta": {"label": "Inbox", "color": "#ff0000"},
		"alpha": null,
		"Mid Way": {}
	}}`))
	assert.Empty(t, warns)
	require.Len(t, b.Columns, 3)
	assert.Equal(t, []string{"zeta", "alpha", "Mid Way"}, keys(b))
	assert.Equal(t, "Inbox", b.Columns[0].Label)
	assert.Equal(t, "#ff0000", b.Columns[0].Color)
	assert.Equal(t, "alpha", b.Columns[1].Label)
	assert.Equal(t, "mid-way", b.Columns[2].Slug)
}

func TestResolve_InvalidColumns(t *testing.T) {
	cases := map[string]string{
		"empty list":     `{"columns": []}`,
		"not a list":     `{"columns": "To Do"}`,
		"number entries": `{"columns": [1, 2]}`,
		"blank name":     `{"columns": ["To Do", "  "]}`,
		"no slug":        `{"columns": ["!!!"]}`,
		"bad map value":  `{"columns": {"To Do": "x"}}`,
		"slug collision": `{"columns": ["To Do", "to-do"]}`,
		"empty map":      `{"columns": {}}`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			b, warns := Resolve([]byte(raw))
			assert.Equal(t, DefaultColumns, keys(b))
			require.Len(t, warns, 1)
			assert.Contains(t, warns[0].Message, "Invalid columns")
		})
	}
}

func TestResolve_NonBooleanVirtualization(t *testing.T) {
	b, warns := Resolve([]byte(`{"useVirtualization": "yes"}`))
	assert.True(t, b.UseVirtualization)
	assert.Len(t, warns, 1)

	b, warns = Resolve([]byte(`{"useVirtualization": false}`))
	assert.False(t, b.UseVirtualization)
	assert.Empty(t, warns)
}

func TestResolve_FieldsIndependent(t *testing.T) {
	// A bad field never discards the good ones.
	b, warns := Resolve([]byte(`{"name": "Ops", "columns": 7, "theme": "sakura"}`))
	assert.Equal(t, "Ops", b.Name)
	assert.Equal(t, "sakura", b.Theme)
	assert.Equal(t, DefaultColumns, keys(b))
	assert.Len(t, warns, 1)
}

func TestBoardColumnLookup(t *testing.T) {
	b := Default()
	c, ok := b.Column("Doing")
	require.True(t, ok)
	assert.Equal(t, "doing", c.Slug)
	_, ok = b.Column("Nope")
	assert.False(t, ok)
}

func TestBoardValidate_RejectsUnknownTheme(t *testing.T) {
	b := Default()
	b.Theme = "neon"
	assert.Error(t, b.Validate())
}
