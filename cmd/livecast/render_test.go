package main

import (
	"strings"
	"testing"

	"github.com/tasteshift/live/internal/domain"
	"github.com/tasteshift/live/internal/live"
)

func TestRenderHeader(t *testing.T) {
	tests := []struct {
		name    string
		overlay live.Overlay
		want    []string
		notWant []string
	}{
		{
			name: "broadcaster on simulated feed",
			overlay: live.Overlay{
				Title:   "Live: tasteshift-chef",
				Role:    domain.RoleBroadcaster,
				Status:  domain.StatusConnected,
				Notices: []string{live.NoticeSimulated, "Camera permission denied"},
				Links:   2,
				Meta:    domain.LiveMetadata{Viewers: 4, Likes: 3},
			},
			want:    []string{"connected", "viewers connected: 2", "Camera permission denied", "👀 4", "❤ 3"},
			notWant: []string{"Press Esc", "muted"},
		},
		{
			name: "muted viewer",
			overlay: live.Overlay{
				Title:  "Live: tasteshift-chef",
				Role:   domain.RoleViewer,
				Status: domain.StatusConnected,
				Muted:  true,
			},
			want:    []string{"connected", "[red]muted"},
			notWant: []string{"viewers connected"},
		},
		{
			name: "viewer after the stream ended",
			overlay: live.Overlay{
				Title:    "Live: tasteshift-chef",
				Role:     domain.RoleViewer,
				Status:   domain.StatusError,
				Error:    "Stream ended or not found",
				Warning:  live.WarningInsecure,
				Closable: true,
			},
			want:    []string{"[red]Stream ended or not found", "Insecure connection", "Press Esc"},
			notWant: []string{"viewers connected"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := renderHeader(tt.overlay, nil)
			for _, w := range tt.want {
				if !strings.Contains(got, w) {
					t.Errorf("missing %q in %q", w, got)
				}
			}
			for _, w := range tt.notWant {
				if strings.Contains(got, w) {
					t.Errorf("unexpected %q in %q", w, got)
				}
			}
		})
	}
}

func TestRenderCommentsEscapes(t *testing.T) {
	got := renderComments([]domain.Comment{{Author: "ann", Text: "[red]not a tag"}})
	if strings.Contains(got, ": [red]not") {
		t.Fatalf("comment text must be escaped: %q", got)
	}
}

func TestRenderPlain(t *testing.T) {
	got := renderPlain(live.Overlay{
		Title:  "Live: tasteshift-chef",
		Status: domain.StatusConnecting,
		Meta:   domain.LiveMetadata{Viewers: 1, Comments: []domain.Comment{{Author: "a", Text: "b"}}},
	})
	want := "[connecting] Live: tasteshift-chef | viewers 1 likes 0 comments 1"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}
