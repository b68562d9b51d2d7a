package render

import (
	"image/color"
	"sort"
	"strings"
)

// Theme is a pair of square colours.
type Theme struct {
	Name  string
	Light color.RGBA
	Dark  color.RGBA
}

const DefaultTheme = "classic"

var themes = map[string]Theme{
	"classic": {Name: "classic", Light: color.RGBA{233, 207, 163, 255}, Dark: color.RGBA{187, 136, 96, 255}},
	"green":   {Name: "green", Light: color.RGBA{238, 238, 210, 255}, Dark: color.RGBA{118, 150, 86, 255}},
	"blue":    {Name: "blue", Light: color.RGBA{222, 227, 230, 255}, Dark: color.RGBA{140, 162, 173, 255}},
}

// LookupTheme falls back to the classic theme for unknown names.
func LookupTheme(name string) Theme {
	if t, ok := themes[strings.ToLower(strings.TrimSpace(name))]; ok {
		return t
	}
	return themes[DefaultTheme]
}

func KnownTheme(name string) bool {
	_, ok := themes[strings.ToLower(strings.TrimSpace(name))]
	return ok
}

func ThemeNames() []string {
	out := make([]string, 0, len(themes))
	for name := range themes {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
