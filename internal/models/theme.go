// internal/models/theme.go
package models

import (
	"fmt"
	"strings"
)

// Theme selects the stylistic mode of a generation.
type Theme string

const (
	ThemeFuturistic Theme = "futuristic"
	ThemeHaunted    Theme = "haunted"
)

// DefaultTheme is preselected in the UI.
const DefaultTheme = ThemeFuturistic

// Themes lists every theme in display order.
func Themes() []Theme {
	return []Theme{ThemeFuturistic, ThemeHaunted}
}

// ParseTheme accepts a theme name in any case; empty means DefaultTheme.
func ParseTheme(s string) (Theme, error) {
	switch Theme(strings.ToLower(strings.TrimSpace(s))) {
	case "":
		return DefaultTheme, nil
	case ThemeFuturistic:
		return ThemeFuturistic, nil
	case ThemeHaunted:
		return ThemeHaunted, nil
	default:
		return "", fmt.Errorf("unknown theme %q", s)
	}
}

// Label is the human-readable name.
func (t Theme) Label() string {
	switch t {
	case ThemeHaunted:
		return "Haunted"
	default:
		return "Futuristic"
	}
}

// Placeholder is the example prompt shown in an empty prompt box.
func (t Theme) Placeholder() string {
	if t == ThemeHaunted {
		return "Describe your haunted design... e.g., 'A gothic cathedral with floating buttresses and a bell tower made of swirling shadow.'"
	}
	return "Describe your futuristic design... e.g., 'A skyscraper made of liquid metal that reshapes with the wind, with drone landing pads.'"
}

// ThemeInfo is the API view of a theme.
type ThemeInfo struct {
	ID          Theme  `json:"id"`
	Label       string `json:"label"`
	Placeholder string `json:"placeholder"`
	Default     bool   `json:"default"`
}

// ThemeCatalog returns ThemeInfo for every theme.
func ThemeCatalog() []ThemeInfo {
	out := make([]ThemeInfo, 0, 2)
	for _, t := range Themes() {
		out = append(out, ThemeInfo{
			ID:          t,
			Label:       t.Label(),
			Placeholder: t.Placeholder(),
			Default:     t == DefaultTheme,
		})
	}
	return out
}
