// Package tui is the interactive terminal front end: a URL form with inline
// validation, a format selector, subtitle and advanced options, a progress bar
// and the session log.
package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/JakeFAU/ytdl-client/internal/heartbeat"
	"github.com/JakeFAU/ytdl-client/internal/job"
	evt "github.com/JakeFAU/ytdl-client/internal/progress"
	"github.com/JakeFAU/ytdl-client/internal/session"
)

const refreshEvery = 500 * time.Millisecond

// Controller is the session surface the UI drives.
type Controller interface {
	Snapshot() session.State
	SetURL(rawURL string) error
	SetOptions(format job.Format, includeSubtitles bool, advanced job.AdvancedOptions) error
	Submit() error
	Retry() error
	ClearLogs() error
	FetchMetadata(ctx context.Context, rawURL string) (job.Metadata, error)
	SaveArtifact(ctx context.Context) (string, error)
}

// Notifier receives user interactions for the activity heartbeat.
type Notifier interface {
	Notify(i heartbeat.Interaction)
}

type field int

const (
	fieldURL field = iota
	fieldFormat
	fieldSubtitles
	fieldCookies
	fieldProxy
	fieldTemplate
)

var advancedKeys = []string{job.OptionCookies, job.OptionProxy, job.OptionOutputTemplate}

type (
	refreshMsg  struct{ last evt.Kind }
	tickMsg     time.Time
	metadataMsg struct {
		meta job.Metadata
		err  error
	}
	savedMsg struct {
		uri string
		err error
	}
)

// Model is the bubbletea model for one session.
type Model struct {
	ctx    context.Context
	ctrl   Controller
	notify Notifier

	url       textinput.Model
	advanced  []textinput.Model
	focus     field
	formatIdx int
	subtitles bool
	showAdv   bool

	bar    progress.Model
	state  session.State
	notice string
	err    string
	width  int
}

// New builds a Model. notify may be nil.
func New(ctx context.Context, ctrl Controller, notify Notifier) Model {
	url := textinput.New()
	url.Prompt = "> "
	url.Placeholder = "https://www.youtube.com/watch?v=..."
	url.CharLimit = 2048
	url.Width = 60
	url.Focus()

	adv := make([]textinput.Model, len(advancedKeys))
	for i, key := range advancedKeys {
		in := textinput.New()
		in.Prompt = "> "
		in.Placeholder = key
		in.CharLimit = 1024
		in.Width = 60
		adv[i] = in
	}

	return Model{
		ctx:      ctx,
		ctrl:     ctrl,
		notify:   notify,
		url:      url,
		advanced: adv,
		bar:      progress.New(progress.WithDefaultGradient()),
		state:    ctrl.Snapshot(),
	}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, tick())
}

func tick() tea.Cmd {
	return tea.Tick(refreshEvery, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.bar.Width = clampInt(msg.Width-8, 20, 80)
		return m, nil
	case tea.MouseMsg:
		m.interact(mouseInteraction(msg))
		return m, nil
	case refreshMsg:
		m.state = m.ctrl.Snapshot()
		return m, nil
	case tickMsg:
		m.state = m.ctrl.Snapshot()
		return m, tick()
	case metadataMsg:
		m.state = m.ctrl.Snapshot()
		if msg.err != nil {
			m.err = msg.err.Error()
		}
		return m, nil
	case savedMsg:
		m.state = m.ctrl.Snapshot()
		if msg.err != nil {
			m.err = msg.err.Error()
			return m, nil
		}
		m.err = ""
		m.notice = "Saved to " + msg.uri
		return m, nil
	case tea.KeyMsg:
		m.interact(heartbeat.KeyPress)
		return m.updateKey(msg)
	}
	return m, nil
}

func (m Model) updateKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := strings.ToLower(msg.String())
	switch key {
	case "ctrl+c", "esc":
		return m, tea.Quit
	case "tab", "down":
		return m.move(1), nil
	case "shift+tab", "up":
		return m.move(-1), nil
	case "enter":
		return m.submit(), nil
	case "ctrl+r":
		m.err = errText(m.ctrl.Retry())
		m.state = m.ctrl.Snapshot()
		return m, nil
	case "ctrl+l":
		m.err = errText(m.ctrl.ClearLogs())
		m.state = m.ctrl.Snapshot()
		return m, nil
	case "ctrl+a":
		m.showAdv = !m.showAdv
		if !m.showAdv && m.focus >= fieldCookies {
			m = m.focusOn(fieldURL)
		}
		return m, nil
	case "ctrl+t":
		return m, m.fetchMetadata()
	case "ctrl+s":
		return m, m.save()
	}

	switch m.focus {
	case fieldFormat:
		switch key {
		case "left", "h":
			m.formatIdx = (m.formatIdx + len(job.Formats) - 1) % len(job.Formats)
		case "right", "l", " ", "space":
			m.formatIdx = (m.formatIdx + 1) % len(job.Formats)
		}
		return m, nil
	case fieldSubtitles:
		switch key {
		case "left", "right", "h", "l", " ", "space":
			m.subtitles = !m.subtitles
		case "y":
			m.subtitles = true
		case "n":
			m.subtitles = false
		}
		return m, nil
	case fieldURL:
		var cmd tea.Cmd
		before := m.url.Value()
		m.url, cmd = m.url.Update(msg)
		if m.url.Value() != before {
			// The controller keeps the inline URL error; the return value
			// duplicates it.
			_ = m.ctrl.SetURL(m.url.Value())
			m.state = m.ctrl.Snapshot()
		}
		return m, cmd
	default:
		i := int(m.focus - fieldCookies)
		var cmd tea.Cmd
		m.advanced[i], cmd = m.advanced[i].Update(msg)
		return m, cmd
	}
}

func (m Model) interact(i heartbeat.Interaction) {
	if m.notify != nil && i != "" {
		m.notify.Notify(i)
	}
}

func mouseInteraction(msg tea.MouseMsg) heartbeat.Interaction {
	switch {
	case tea.MouseEvent(msg).IsWheel():
		return heartbeat.Scroll
	case msg.Action == tea.MouseActionPress:
		return heartbeat.PointerDown
	case msg.Action == tea.MouseActionRelease:
		return heartbeat.Click
	case msg.Action == tea.MouseActionMotion:
		return heartbeat.PointerMove
	default:
		return ""
	}
}

func (m Model) lastField() field {
	if m.showAdv {
		return fieldTemplate
	}
	return fieldSubtitles
}

func (m Model) move(delta int) Model {
	n := int(m.lastField()) + 1
	next := (int(m.focus) + delta + n) % n
	return m.focusOn(field(next))
}

func (m Model) focusOn(f field) Model {
	m.focus = f
	m.url.Blur()
	for i := range m.advanced {
		m.advanced[i].Blur()
	}
	switch {
	case f == fieldURL:
		m.url.Focus()
	case f >= fieldCookies:
		m.advanced[f-fieldCookies].Focus()
	}
	return m
}

func (m Model) options() job.AdvancedOptions {
	opts := job.AdvancedOptions{}
	for i, key := range advancedKeys {
		if v := strings.TrimSpace(m.advanced[i].Value()); v != "" {
			opts[key] = v
		}
	}
	return opts
}

func (m Model) submit() Model {
	m.notice = ""
	if err := m.ctrl.SetOptions(job.Formats[m.formatIdx], m.subtitles, m.options()); err != nil {
		m.err = err.Error()
		return m
	}
	err := m.ctrl.Submit()
	m.state = m.ctrl.Snapshot()
	m.err = ""
	if err != nil && m.state.URLError == "" {
		m.err = err.Error()
	}
	return m
}

func (m Model) fetchMetadata() tea.Cmd {
	ctx, ctrl, url := m.ctx, m.ctrl, m.url.Value()
	return func() tea.Msg {
		meta, err := ctrl.FetchMetadata(ctx, url)
		return metadataMsg{meta: meta, err: err}
	}
}

func (m Model) save() tea.Cmd {
	ctx, ctrl := m.ctx, m.ctrl
	return func() tea.Msg {
		uri, err := ctrl.SaveArtifact(ctx)
		return savedMsg{uri: uri, err: err}
	}
}

func errText(err error) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, session.ErrRetryNotAllowed) {
		return "Nothing to retry"
	}
	return err.Error()
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := int(d / time.Hour)
	mnt := int(d%time.Hour) / int(time.Minute)
	s := int(d%time.Minute) / int(time.Second)
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, mnt, s)
	}
	return fmt.Sprintf("%d:%02d", mnt, s)
}
