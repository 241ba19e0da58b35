package main

import (
	"fmt"
	"strings"

	"github.com/rivo/tview"

	"github.com/tasteshift/live/internal/domain"
	"github.com/tasteshift/live/internal/live"
	"github.com/tasteshift/live/internal/media"
)

func statusColor(s domain.Status) string {
	switch s {
	case domain.StatusConnected:
		return "green"
	case domain.StatusConnecting:
		return "yellow"
	default:
		return "red"
	}
}

// renderHeader formats the status part of the overlay with tview color tags.
func renderHeader(o live.Overlay, counter *media.Counter) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[::b]%s[::-]  [%s]● %s[white]", tview.Escape(o.Title), statusColor(o.Status), o.Status)
	if o.Role == domain.RoleBroadcaster {
		fmt.Fprintf(&b, "  viewers connected: %d", o.Links)
	}
	if o.Muted {
		b.WriteString("  [red]muted[white]")
	}
	fmt.Fprintf(&b, "\n👀 %d  ❤ %d", o.Meta.Viewers, o.Meta.Likes)
	if counter != nil {
		fmt.Fprintf(&b, "  frames %d  audio %d", counter.Video(), counter.Audio())
	}
	b.WriteString("\n")
	if o.Error != "" {
		fmt.Fprintf(&b, "[red]%s[white]\n", tview.Escape(o.Error))
	}
	for _, n := range o.Notices {
		fmt.Fprintf(&b, "[yellow]%s[white]\n", tview.Escape(n))
	}
	if o.Warning != "" {
		fmt.Fprintf(&b, "[orange]%s[white]\n", tview.Escape(o.Warning))
	}
	if o.Closable {
		b.WriteString("[gray]Session ended. Press Esc to close.[white]\n")
	}
	return b.String()
}

func renderComments(cs []domain.Comment) string {
	var b strings.Builder
	for _, c := range cs {
		fmt.Fprintf(&b, "[blue]%s[white]: %s\n", tview.Escape(c.Author), tview.Escape(c.Text))
	}
	return b.String()
}

// renderPlain is the single line printed in plain mode.
func renderPlain(o live.Overlay) string {
	parts := []string{fmt.Sprintf("[%s] %s", o.Status, o.Title)}
	if o.Error != "" {
		parts = append(parts, "error: "+o.Error)
	}
	parts = append(parts, o.Notices...)
	if o.Warning != "" {
		parts = append(parts, o.Warning)
	}
	if o.Muted {
		parts = append(parts, "muted")
	}
	parts = append(parts, fmt.Sprintf("viewers %d likes %d comments %d", o.Meta.Viewers, o.Meta.Likes, len(o.Meta.Comments)))
	return strings.Join(parts, " | ")
}
