package settings

// Colors is a board palette. Empty fields mean "not set".
type Colors struct {
	Header      string `json:"header,omitempty"`
	HeaderText  string `json:"headerText,omitempty"`
	Column      string `json:"column,omitempty"`
	ColumnText  string `json:"columnText,omitempty"`
	StoryID     string `json:"storyId,omitempty"`
	StoryText   string `json:"storyText,omitempty"`
	CardBg      string `json:"cardBg,omitempty"`
	CardBgHover string `json:"cardBgHover,omitempty"`
	ColumnBg    string `json:"columnBg,omitempty"`
	PageBg      string `json:"pageBg,omitempty"`
}

// Merge returns c with every non-empty field of over applied on top.
func (c Colors) Merge(over Colors) Colors {
	pick := func(base, o string) string {
		if o != "" {
			return o
		}
		return base
	}
	return Colors{
		Header:      pick(c.Header, over.Header),
		HeaderText:  pick(c.HeaderText, over.HeaderText),
		Column:      pick(c.Column, over.Column),
		ColumnText:  pick(c.ColumnText, over.ColumnText),
		StoryID:     pick(c.StoryID, over.StoryID),
		StoryText:   pick(c.StoryText, over.StoryText),
		CardBg:      pick(c.CardBg, over.CardBg),
		CardBgHover: pick(c.CardBgHover, over.CardBgHover),
		ColumnBg:    pick(c.ColumnBg, over.ColumnBg),
		PageBg:      pick(c.PageBg, over.PageBg),
	}
}

// DefaultTheme is used when no theme, or an unknown one, is configured.
const DefaultTheme = "dracula"

var themes = map[string]Colors{
	"light": {
		Header: "#ffffff", HeaderText: "#333333",
		Column: "#ffffff", ColumnText: "#333333",
		StoryID: "#454f7a", StoryText: "#333333",
		CardBg: "#ffffff", CardBgHover: "#f0f0f0",
		ColumnBg: "#f9f9f9", PageBg: "#f0f0f0",
	},
	"dark": {
		Header: "#252526", HeaderText: "#ffffff",
		Column: "#3e3e3e", ColumnText: "#ffffff",
		StoryID: "#ffc273", StoryText: "#d4d4d4",
		CardBg: "#1e1e1e", CardBgHover: "#3e3e3e",
		ColumnBg: "#303030", PageBg: "#1e1e1e",
	},
	"sunset": {
		Header: "#7C444F", HeaderText: "#ffffff",
		Column: "#E16A54", ColumnText: "#333333",
		StoryID: "#E16A54", StoryText: "#ffffff",
		CardBg: "#2c3e50", CardBgHover: "#485e75",
		ColumnBg: "#7C444F", PageBg: "#2c3e50",
	},
	"halloween": {
		Header: "#2d3436", HeaderText: "#fdcb6e",
		Column: "#636e72", ColumnText: "#fdcb6e",
		StoryID: "#fdcb6e", StoryText: "#ff7675",
		CardBg: "#2d3436", CardBgHover: "#636e72",
		ColumnBg: "#474c4f", PageBg: "#2d3436",
	},
	"dracula": {
		Header: "#282a36", HeaderText: "#c45c5c",
		Column: "#282a36", ColumnText: "#c45c5c",
		StoryID: "#ad2424", StoryText: "#f8f8f2",
		CardBg: "#44475a", CardBgHover: "#6272a4",
		ColumnBg: "#383a4c", PageBg: "#1c1d21",
	},
	"synthwave": {
		Header: "#2b213a", HeaderText: "#ff7edb",
		Column: "#453b63", ColumnText: "#ff7edb",
		StoryID: "#ff7edb", StoryText: "#f0eff1",
		CardBg: "#34294f", CardBgHover: "#453b63",
		ColumnBg: "#2d2241", PageBg: "#241b2f",
	},
	"sakura": {
		Header: "#ffd7e9", HeaderText: "#5d576b",
		Column: "#ffd7e9", ColumnText: "#5d576b",
		StoryID: "#ff85a2", StoryText: "#5d576b",
		CardBg: "#ffeef8", CardBgHover: "#ffe0f0",
		ColumnBg: "#f7e4ed", PageBg: "#fff5fa",
	},
}

// Theme returns the palette for name and whether it exists.
func Theme(name string) (Colors, bool) {
	c, ok := themes[name]
	return c, ok
}

// ThemeNames lists the known theme names.
func ThemeNames() []string {
	return []string{"light", "dark", "sunset", "halloween", "dracula", "synthwave", "sakura"}
}
