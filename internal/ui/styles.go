package ui

import (
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"

	"github.com/unkn0wn-root/wscls/internal/session"
)

type styles struct {
	status    lipgloss.Style
	statusErr lipgloss.Style
	label     lipgloss.Style
	focused   lipgloss.Style
	blurred   lipgloss.Style
	levels    map[session.Level]lipgloss.Style
}

// colorEnabled reports whether output may be colored; NO_COLOR disables it.
func colorEnabled() bool {
	_, set := os.LookupEnv("NO_COLOR")
	return !set
}

func newStyles(color bool) styles {
	if !color {
		lipgloss.SetColorProfile(termenv.Ascii)
	}
	border := lipgloss.RoundedBorder()
	return styles{
		status:    lipgloss.NewStyle().Foreground(lipgloss.Color("252")).Background(lipgloss.Color("236")).Padding(0, 1),
		statusErr: lipgloss.NewStyle().Foreground(lipgloss.Color("231")).Background(lipgloss.Color("124")).Padding(0, 1),
		label:     lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("229")).Background(lipgloss.Color("63")).Padding(0, 1),
		focused:   lipgloss.NewStyle().Border(border).BorderForeground(lipgloss.Color("63")),
		blurred:   lipgloss.NewStyle().Border(border).BorderForeground(lipgloss.Color("240")),
		levels: map[session.Level]lipgloss.Style{
			session.LevelInfo:     lipgloss.NewStyle(),
			session.LevelSent:     lipgloss.NewStyle().Foreground(lipgloss.Color("111")),
			session.LevelReceived: lipgloss.NewStyle().Foreground(lipgloss.Color("80")),
			session.LevelWarn:     lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
			session.LevelError:    lipgloss.NewStyle().Foreground(lipgloss.Color("203")),
			session.LevelSuccess:  lipgloss.NewStyle().Foreground(lipgloss.Color("78")),
		},
	}
}
