package model

// DefaultLanguageColor is used for languages missing from the palette,
// same fallback as the Github language card
const DefaultLanguageColor = "#858585"

// OtherLanguageName labels the bucket of languages grouped below the
// visibility threshold when grouping is enabled
const OtherLanguageName = "Other"

// DefaultPalette covers the most common languages so rendering still has
// sensible colors when the remote linguist table cannot be fetched.
// Values come from the linguist color table
var DefaultPalette = map[string]string{
	"Assembly":         "#6E4C13",
	"C":                "#555555",
	"C#":               "#178600",
	"C++":              "#f34b7d",
	"CSS":              "#663399",
	"Clojure":          "#db5855",
	"CoffeeScript":     "#244776",
	"Dart":             "#00B4AB",
	"Dockerfile":       "#384d54",
	"Elixir":           "#6e4a7e",
	"Elm":              "#60B5CC",
	"Erlang":           "#B83998",
	"Go":               "#00ADD8",
	"HCL":              "#844FBA",
	"HTML":             "#e34c26",
	"Haskell":          "#5e5086",
	"Java":             "#b07219",
	"JavaScript":       "#f1e05a",
	"Jupyter Notebook": "#DA5B0B",
	"Kotlin":           "#A97BFF",
	"Lua":              "#000080",
	"Makefile":         "#427819",
	"Nix":              "#7e7eff",
	"OCaml":            "#ef7a08",
	"PHP":              "#4F5D95",
	"Perl":             "#0298c3",
	"PowerShell":       "#012456",
	"Python":           "#3572A5",
	"R":                "#198CE7",
	"Ruby":             "#701516",
	"Rust":             "#dea584",
	"SCSS":             "#c6538c",
	"Scala":            "#c22d40",
	"Shell":            "#89e051",
	"Svelte":           "#ff3e00",
	"Swift":            "#F05138",
	"TeX":              "#3D6117",
	"TypeScript":       "#3178c6",
	"Vim Script":       "#199f4b",
	"Vue":              "#41b883",
	"Zig":              "#ec915c",
}

// ColorFor looks up a language color in the given palette,
// falling back to the built-in palette then to the default color
func ColorFor(palette map[string]string, language string) string {
	if color, found := palette[language]; found && color != "" {
		return color
	}

	if color, found := DefaultPalette[language]; found {
		return color
	}

	return DefaultLanguageColor
}
