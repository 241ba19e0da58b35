package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/tasteshift/live/internal/domain"
	"github.com/tasteshift/live/internal/live"
	"github.com/tasteshift/live/internal/media"
)

type presenter struct {
	plain   bool
	author  string
	counter *media.Counter
}

// present shows the view until the user quits, ctx ends or, in plain mode,
// the session ends.
func present(ctx context.Context, v *live.View, p presenter) error {
	if p.plain {
		return presentPlain(ctx, v, p)
	}
	return presentOverlay(ctx, v, p)
}

func presentOverlay(ctx context.Context, v *live.View, p presenter) error {
	app := tview.NewApplication()

	header := tview.NewTextView().
		SetDynamicColors(true).
		SetWordWrap(true)
	header.SetBorder(true).SetTitle(" TasteShift Live ")

	comments := tview.NewTextView().
		SetDynamicColors(true).
		SetWordWrap(true).
		SetScrollable(true)
	comments.SetBorder(true).SetTitle(" Comments ")

	help := "Enter comment · F2 like · F3 mute · Esc quit"
	if v.Overlay().Role == domain.RoleBroadcaster {
		help = "Enter comment · F2 like · F3 mute · F4 interrupt · Esc quit"
	}
	input := tview.NewInputField().
		SetLabel(p.author + " ❯❯ ").
		SetFieldWidth(0).
		SetAcceptanceFunc(tview.InputFieldMaxLength(256))

	flex := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(header, 7, 0, false).
		AddItem(comments, 0, 1, false).
		AddItem(input, 1, 0, true).
		AddItem(tview.NewTextView().SetText(help), 1, 0, false)

	draw := func(o live.Overlay) {
		header.SetText(renderHeader(o, p.counter))
		comments.SetText(renderComments(o.Meta.Comments))
		comments.ScrollToEnd()
	}
	draw(v.Overlay())
	v.OnChange(func(o live.Overlay) {
		app.QueueUpdateDraw(func() { draw(o) })
	})

	input.SetDoneFunc(func(key tcell.Key) {
		if key != tcell.KeyEnter {
			return
		}
		text := strings.TrimSpace(input.GetText())
		if text == "" {
			return
		}
		v.PostComment(ctx, p.author, text)
		input.SetText("")
	})
	app.SetInputCapture(func(ev *tcell.EventKey) *tcell.EventKey {
		switch ev.Key() {
		case tcell.KeyEscape:
			app.Stop()
			return nil
		case tcell.KeyF2:
			v.PostLike(ctx)
			return nil
		case tcell.KeyF3:
			v.ToggleMute()
			return nil
		case tcell.KeyF4:
			_ = v.Session().Interrupt()
			return nil
		}
		return ev
	})

	go func() {
		<-ctx.Done()
		app.Stop()
	}()

	return app.SetRoot(flex, true).SetFocus(input).Run()
}

// presentPlain prints overlay changes and reads comments from stdin. A line
// of "/like" sends a like and "/mute" toggles the audio.
func presentPlain(ctx context.Context, v *live.View, p presenter) error {
	changes := make(chan live.Overlay, 16)
	v.OnChange(func(o live.Overlay) {
		select {
		case changes <- o:
		default:
		}
	})

	lines := make(chan string)
	go func() {
		sc := bufio.NewScanner(os.Stdin)
		for sc.Scan() {
			lines <- sc.Text()
		}
		close(lines)
	}()

	last := ""
	show := func(o live.Overlay) {
		if s := renderPlain(o); s != last {
			fmt.Println(s)
			last = s
		}
	}
	show(v.Overlay())

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-v.Session().Done():
			show(v.Overlay())
			return nil
		case o := <-changes:
			show(o)
		case line, ok := <-lines:
			if !ok {
				lines = nil
				continue
			}
			switch text := strings.TrimSpace(line); text {
			case "":
			case "/like":
				v.PostLike(ctx)
			case "/mute":
				v.ToggleMute()
			default:
				v.PostComment(ctx, p.author, text)
			}
		}
	}
}
