package output

import (
	"github.com/charmbracelet/lipgloss"
)

// Color palette.
var (
	// ColorCyan is used for library names.
	ColorCyan = lipgloss.Color("14")

	// ColorYellow is used for newer versions.
	ColorYellow = lipgloss.Color("220")

	// ColorRed is used for missing dependencies.
	ColorRed = lipgloss.Color("196")
)

var (
	// StyleNoun styles identifiable nouns: library names and package URLs.
	StyleNoun = lipgloss.NewStyle().Foreground(ColorCyan)

	// StyleDim styles secondary details such as defines and paths.
	StyleDim = lipgloss.NewStyle().Faint(true)

	// StyleNewer styles a version that is newer than the installed one.
	StyleNewer = lipgloss.NewStyle().Foreground(ColorYellow)

	// StyleMissing styles a dependency nothing provides.
	StyleMissing = lipgloss.NewStyle().Foreground(ColorRed)
)
