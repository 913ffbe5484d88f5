package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/justestif/spotify-now-playing/internal/spotify"
)

const barWidth = 30

var styles = newPalette("#1DB954", "#FFFFFF", "#B3B3B3", "#E05252", "#626262")

type palette struct {
	ok     lipgloss.Style
	title  lipgloss.Style
	muted  lipgloss.Style
	err    lipgloss.Style
	help   lipgloss.Style
	filled lipgloss.Style
	empty  lipgloss.Style
	box    lipgloss.Style
}

func newPalette(accent, text, muted, errColor, help string) *palette {
	return &palette{
		ok:     newStyle(accent).Bold(true),
		title:  newStyle(text).Bold(true),
		muted:  newStyle(muted),
		err:    newStyle(errColor).Bold(true),
		help:   newStyle(help).Italic(true),
		filled: newStyle(accent),
		empty:  newStyle(help),
		box: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color(accent)).
			Padding(0, 1),
	}
}

func newStyle(fg string) lipgloss.Style {
	return lipgloss.NewStyle().Foreground(lipgloss.Color(fg))
}

// renderTrack draws the current track as a bordered card.
func renderTrack(ct *spotify.CurrentTrack) string {
	if ct.NotPlaying() {
		return styles.box.Render(styles.muted.Render("No track currently playing"))
	}

	t := ct.Track
	state := styles.ok.Render("▶ Playing")
	if !ct.IsPlaying {
		state = styles.muted.Render("⏸ Paused")
	}

	lines := []string{
		state,
		styles.title.Render(t.Title),
		styles.muted.Render(t.Artist + " · " + t.Album),
		"",
		progressBar(spotify.ProgressPercent(t), barWidth) + " " +
			styles.muted.Render(fmt.Sprintf("%s / %s", spotify.FormatDuration(t.ProgressMs), spotify.FormatDuration(t.DurationMs))),
	}
	if t.AlbumArtURL != "" {
		lines = append(lines, styles.help.Render(t.AlbumArtURL))
	}
	return styles.box.Render(lipgloss.JoinVertical(lipgloss.Left, lines...))
}

func renderError(err error) string {
	return styles.err.Render("Error: ") + err.Error()
}

// progressBar renders pct (0-100) as a bar of width cells.
func progressBar(pct float64, width int) string {
	filled := int(pct/100*float64(width) + 0.5)
	filled = max(0, min(filled, width))
	return styles.filled.Render(strings.Repeat("━", filled)) +
		styles.empty.Render(strings.Repeat("─", width-filled))
}
