// Package board joins resolved settings and per-column stories into a
// renderable view.
package board

import (
	"github.com/starford/horizon/internal/models"
	"github.com/starford/horizon/internal/settings"
)

// Fallback colors used when neither the palette nor an override sets a key.
var fallbackColors = settings.Colors{
	Header:      "#333333",
	HeaderText:  "#ffffff",
	Column:      "#252526",
	ColumnText:  "#ffffff",
	StoryID:     "#007acc",
	StoryText:   "#cccccc",
	CardBg:      "#2d2d2d",
	CardBgHover: "#3e3e3e",
	ColumnBg:    "#1e1e1e",
	PageBg:      "#1e1e1e",
}

// View is the renderable board. It is rebuilt on every refresh.
type View struct {
	BoardName   string             `json:"boardName"`
	Theme       string             `json:"theme"`
	Colors      settings.Colors    `json:"colors"`
	Virtualized bool               `json:"virtualized"`
	Columns     []ColumnView       `json:"columns"`
	Notices     []settings.Warning `json:"notices"`
}

// ColumnView is one lane of the board.
type ColumnView struct {
	Key       string         `json:"key"`
	Label     string         `json:"label"`
	Slug      string         `json:"slug"`
	Color     string         `json:"color"`
	TextColor string         `json:"textColor"`
	Stories   []models.Story `json:"stories"`
}

// StoryCount returns the number of stories on the board.
func (v *View) StoryCount() int {
	n := 0
	for _, c := range v.Columns {
		n += len(c.Stories)
	}
	return n
}

// Assemble builds the view for b from columns (column key → stories).
// Columns appear in configuration order and stories keep the order they
// were given in. Keys of columns missing from the map get no stories.
// Assemble performs no I/O and does not modify its inputs.
func Assemble(b *settings.Board, columns map[string][]models.Story) *View {
	colors := fallbackColors.Merge(b.Colors)
	v := &View{
		BoardName:   b.Name,
		Theme:       b.Theme,
		Colors:      colors,
		Virtualized: b.UseVirtualization,
		Columns:     make([]ColumnView, 0, len(b.Columns)),
		Notices:     []settings.Warning{},
	}
	if v.BoardName == "" {
		v.BoardName = settings.DefaultName
	}
	for _, col := range b.Columns {
		label := col.Label
		if label == "" {
			label = col.Key
		}
		color := col.Color
		if color == "" {
			color = colors.Column
		}
		stories := make([]models.Story, len(columns[col.Key]))
		copy(stories, columns[col.Key])
		v.Columns = append(v.Columns, ColumnView{
			Key:       col.Key,
			Label:     label,
			Slug:      col.Slug,
			Color:     color,
			TextColor: colors.ColumnText,
			Stories:   stories,
		})
	}
	return v
}
