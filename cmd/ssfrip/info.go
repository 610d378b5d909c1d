package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/user-none/satsound/imageloader"
)

type styles struct {
	title lipgloss.Style
	key   lipgloss.Style
	value lipgloss.Style
	image lipgloss.Style
}

func newStyles() styles {
	return styles{
		title: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.ANSIColor(3)),
		key:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.ANSIColor(4)),
		value: lipgloss.NewStyle().Foreground(lipgloss.ANSIColor(7)),
		image: lipgloss.NewStyle().Foreground(lipgloss.ANSIColor(6)),
	}
}

// formatInfo renders the track name, its image layout and its tags, one
// tag per line with keys padded to a common width. Library references are
// left out of the tag list.
func formatInfo(res *imageloader.Result, st styles) string {
	var b strings.Builder
	b.WriteString(st.title.Render(res.Name))
	b.WriteByte('\n')
	b.WriteString(st.image.Render(fmt.Sprintf("image %#x-%#x (%d bytes)",
		res.Image.Start, res.Image.Start+uint32(len(res.Image.Data)), len(res.Image.Data))))
	b.WriteByte('\n')

	tags := res.File.Tags
	var keys []string
	width := 0
	for _, k := range tags.Keys() {
		if strings.HasPrefix(strings.ToLower(k), "_lib") {
			continue
		}
		keys = append(keys, k)
		width = max(width, len(k))
	}

	keyCol := st.key.Width(width + 2)
	for _, k := range keys {
		lines := strings.Split(tags.Get(k), "\n")
		for i, line := range lines {
			label := ""
			if i == 0 {
				label = k
			}
			b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, keyCol.Render(label), st.value.Render(line)))
			b.WriteByte('\n')
		}
	}
	return strings.TrimRight(b.String(), "\n")
}
