// Package settings resolves the board settings file (horizon.json) into a
// fully-populated Board. Resolution never fails: missing or malformed
// fields fall back to defaults and are reported as warnings.
package settings

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/starford/horizon/internal/models"
	"github.com/starford/horizon/internal/slug"
)

// FileName is the default name of the board settings file.
const FileName = "horizon.json"

// DefaultName is the board name used when none is configured.
const DefaultName = "Horizon Board"

// DefaultColumns are used when the columns field is missing or invalid.
var DefaultColumns = []string{"To Do", "Doing", "Done"}

// Level classifies a Warning.
type Level string

// Warning levels.
const (
	LevelInfo    Level = "info"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Warning is a non-fatal notice produced while resolving settings.
type Warning struct {
	Level   Level  `json:"level"`
	Message string `json:"message"`
}

// Board is the resolved board configuration.
type Board struct {
	Name              string          `json:"name"`
	StoryDirectory    string          `json:"storyDirectory"`
	Theme             string          `json:"theme"`
	Colors            Colors          `json:"colors"`
	Columns           []models.Column `json:"columns"`
	UseVirtualization bool            `json:"useVirtualization"`
}

// Column returns the configured column with the given key.
func (b *Board) Column(key string) (models.Column, bool) {
	for _, c := range b.Columns {
		if c.Key == key {
			return c, true
		}
	}
	return models.Column{}, false
}

// Validate checks the invariants a resolved Board must hold.
func (b *Board) Validate() error {
	names := make([]any, 0, len(themes))
	for _, n := range ThemeNames() {
		names = append(names, n)
	}
	if err := validation.ValidateStruct(b,
		validation.Field(&b.Name, validation.Required),
		validation.Field(&b.Theme, validation.Required, validation.In(names...)),
	); err != nil {
		return err
	}
	return validateColumns(b.Columns)
}

// Default returns the default board configuration.
func Default() *Board {
	palette, _ := Theme(DefaultTheme)
	return &Board{
		Name:              DefaultName,
		StoryDirectory:    "",
		Theme:             DefaultTheme,
		Colors:            palette,
		Columns:           columnsFromNames(DefaultColumns),
		UseVirtualization: true,
	}
}

// Load reads and resolves the settings file at path.
func Load(path string) (*Board, []Warning) {
	name := filepath.Base(path)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Default(), []Warning{{
				Level:   LevelInfo,
				Message: fmt.Sprintf("No %s file found. Using default settings.", name),
			}}
		}
		return Default(), []Warning{{
			Level:   LevelError,
			Message: fmt.Sprintf("Error reading %s file. Using default settings: %v", name, err),
		}}
	}
	return Resolve(data)
}

// Resolve turns a raw settings payload into a Board, substituting defaults
// for every missing or structurally invalid field.
func Resolve(raw []byte) (*Board, []Warning) {
	b := Default()
	var warnings []Warning
	warn := func(level Level, format string, args ...any) {
		warnings = append(warnings, Warning{Level: level, Message: fmt.Sprintf(format, args...)})
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		warn(LevelError, "Error reading %s file. Using default settings: %v", FileName, err)
		return b, warnings
	}

	if s, ok := stringField(fields, "name"); ok && strings.TrimSpace(s) != "" {
		b.Name = s
	}

	if v, present := fields["storyDirectory"]; present {
		if s, ok := stringField(fields, "storyDirectory"); ok {
			b.StoryDirectory = strings.TrimSpace(s)
		} else if !isNull(v) {
			warn(LevelWarning, "Invalid storyDirectory in %s. Ignoring it.", FileName)
		}
	}

	if v, present := fields["theme"]; present && !isNull(v) {
		s, ok := stringField(fields, "theme")
		switch {
		case !ok:
			warn(LevelWarning, "Invalid theme in %s. Using %q.", FileName, DefaultTheme)
		case s == "":
		default:
			if _, known := Theme(s); known {
				b.Theme = s
			} else {
				warn(LevelWarning, "Unknown theme %q in %s. Using %q.", s, FileName, DefaultTheme)
			}
		}
	}
	palette, _ := Theme(b.Theme)

	var overrides Colors
	if v, present := fields["colors"]; present && !isNull(v) {
		if err := json.Unmarshal(v, &overrides); err != nil {
			warn(LevelWarning, "Invalid colors in %s. Using theme colors.", FileName)
			overrides = Colors{}
		}
	}
	b.Colors = palette.Merge(overrides)

	if v, present := fields["columns"]; present {
		cols, err := parseColumns(v)
		if err == nil {
			err = validateColumns(cols)
		}
		if err != nil {
			warn(LevelWarning, "Invalid columns in %s. Using default columns: %v", FileName, err)
		} else {
			b.Columns = cols
		}
	}

	if v, present := fields["useVirtualization"]; present && !isNull(v) {
		var flag bool
		if err := json.Unmarshal(v, &flag); err != nil {
			warn(LevelWarning, "Invalid useVirtualization in %s. Using %t.", FileName, b.UseVirtualization)
		} else {
			b.UseVirtualization = flag
		}
	}

	return b, warnings
}

// columnSpec is the per-column value of the object form of "columns".
type columnSpec struct {
	Label string `json:"label"`
	Color string `json:"color"`
}

// parseColumns resolves the union-typed columns field (a sequence of names
// or an ordered mapping of name → {label, color}) into canonical columns.
func parseColumns(raw json.RawMessage) ([]models.Column, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, errors.New("empty value")
	}
	switch trimmed[0] {
	case '[':
		var names []string
		if err := json.Unmarshal(trimmed, &names); err != nil {
			return nil, fmt.Errorf("column list must contain only strings: %w", err)
		}
		return columnsFromNames(names), nil
	case '{':
		om := orderedmap.New[string, *columnSpec]()
		if err := json.Unmarshal(trimmed, om); err != nil {
			return nil, fmt.Errorf("column map values must be objects: %w", err)
		}
		cols := make([]models.Column, 0, om.Len())
		for pair := om.Oldest(); pair != nil; pair = pair.Next() {
			col := models.Column{Key: pair.Key, Label: pair.Key, Slug: slug.Make(pair.Key)}
			if spec := pair.Value; spec != nil {
				if strings.TrimSpace(spec.Label) != "" {
					col.Label = spec.Label
				}
				col.Color = spec.Color
			}
			cols = append(cols, col)
		}
		return cols, nil
	default:
		return nil, errors.New("columns must be a list or an object")
	}
}

// validateColumns rejects empty column sets, blank names, names without a
// usable slug and slug collisions.
func validateColumns(cols []models.Column) error {
	if len(cols) == 0 {
		return errors.New("no columns configured")
	}
	seen := make(map[string]string, len(cols))
	for _, c := range cols {
		if err := validation.Validate(strings.TrimSpace(c.Key), validation.Required); err != nil {
			return fmt.Errorf("column name: %w", err)
		}
		if err := validation.Validate(c.Slug, validation.Required.Error("has no usable characters")); err != nil {
			return fmt.Errorf("column %q: %w", c.Key, err)
		}
		if prev, dup := seen[c.Slug]; dup {
			return fmt.Errorf("columns %q and %q share the index slug %q", prev, c.Key, c.Slug)
		}
		seen[c.Slug] = c.Key
	}
	return nil
}

func columnsFromNames(names []string) []models.Column {
	cols := make([]models.Column, 0, len(names))
	for _, n := range names {
		cols = append(cols, models.Column{Key: n, Label: n, Slug: slug.Make(n)})
	}
	return cols
}

func stringField(fields map[string]json.RawMessage, key string) (string, bool) {
	v, ok := fields[key]
	if !ok {
		return "", false
	}
	var s string
	if err := json.Unmarshal(v, &s); err != nil {
		return "", false
	}
	return s, true
}

func isNull(v json.RawMessage) bool {
	return string(bytes.TrimSpace(v)) == "null"
}
