// Package ui provides the Bubble Tea terminal interface for the player.
package ui

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/jacbz/lisztnup/internal/audio"
	"github.com/jacbz/lisztnup/internal/player"
)

// seekStep is how far the arrow keys move the playhead.
const seekStep = 5 * time.Second

// uiTick is the snapshot sampling interval.
const uiTick = 100 * time.Millisecond

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#F8B500")).
			MarginBottom(1)

	trackStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#4ECDC4"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#6C757D"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	meterStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#95E1A3"))
)

// meterBars is the number of spectrum bars drawn under the progress bar.
const meterBars = 24

// Model is the Bubble Tea model for the player UI.
type Model struct {
	session  *player.Session
	tracks   []audio.AssetReference
	index    int
	progress progress.Model
	spinner  spinner.Model

	snap    player.Snapshot
	loadErr error
	width   int
	quit    bool
}

// NewModel creates a UI over an existing session and playlist. The playlist
// must be non-empty.
func NewModel(session *player.Session, tracks []audio.AssetReference) Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("#F8B500"))

	prog := progress.New(progress.WithDefaultGradient())
	prog.Width = 50

	return Model{
		session:  session,
		tracks:   tracks,
		progress: prog,
		spinner:  sp,
	}
}

type (
	tickMsg time.Time

	trackLoadedMsg struct {
		index int
		err   error
	}
)

func tick() tea.Cmd {
	return tea.Tick(uiTick, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// loadTrack kicks off a load for the playlist entry and autoplays it once
// ready. Stale results are discarded by the session itself.
func (m Model) loadTrack(index int) tea.Cmd {
	session, ref := m.session, m.tracks[index]
	return func() tea.Msg {
		err := session.Load(context.Background(), ref)
		if err == nil {
			session.Play()
		}
		return trackLoadedMsg{index: index, err: err}
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, tick(), m.loadTrack(0))
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.progress.Width = msg.Width - 10
		if m.progress.Width > 70 {
			m.progress.Width = 70
		}
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tickMsg:
		m.snap = m.session.Snapshot()
		return m, tick()

	case trackLoadedMsg:
		// Superseded loads are routine when the user skips quickly.
		if msg.err != nil && !errors.Is(msg.err, player.ErrSuperseded) {
			m.loadErr = msg.err
		} else if msg.index == m.index {
			m.loadErr = nil
		}
		return m, nil
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		m.quit = true
		m.session.Destroy()
		return m, tea.Quit

	case " ":
		if m.snap.State == player.StatePlaying {
			m.session.Pause()
		} else {
			m.session.Play()
		}

	case "r":
		m.session.Replay()

	case "left":
		m.session.Seek(m.snap.Position - seekStep)

	case "right":
		m.session.Seek(m.snap.Position + seekStep)

	case "n":
		if m.index < len(m.tracks)-1 {
			m.index++
			m.loadErr = nil
			return m, m.loadTrack(m.index)
		}

	case "b":
		if m.index > 0 {
			m.index--
			m.loadErr = nil
			return m, m.loadTrack(m.index)
		}
	}
	return m, nil
}

func (m Model) View() string {
	if m.quit {
		return ""
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("lisztnup"))
	b.WriteString("\n\n")

	track := m.tracks[m.index]
	label := track.Title
	if label == "" {
		label = track.ID
	}
	if track.Artist != "" {
		label = track.Artist + " · " + label
	}
	b.WriteString(trackStyle.Render(label))
	b.WriteString(dimStyle.Render(fmt.Sprintf("  (%d/%d)", m.index+1, len(m.tracks))))
	b.WriteString("\n\n")

	switch {
	case m.loadErr != nil:
		b.WriteString(errorStyle.Render("load failed: " + m.loadErr.Error()))
		b.WriteString("\n")
	case m.snap.State == player.StateLoading, m.snap.State == player.StateIdle:
		b.WriteString(m.spinner.View())
		b.WriteString(dimStyle.Render(" loading..."))
		b.WriteString("\n")
	default:
		b.WriteString(m.progress.ViewAs(m.snap.Progress))
		b.WriteString("\n")
		b.WriteString(dimStyle.Render(fmt.Sprintf("%s / %s  [%s]",
			formatDuration(m.snap.Position),
			formatDuration(m.snap.Length),
			m.snap.State)))
		b.WriteString("\n")
		if bars := renderMeter(m.snap.Spectrum); bars != "" {
			b.WriteString(meterStyle.Render(bars))
			b.WriteString("\n")
		}
	}

	b.WriteString("\n")
	b.WriteString(dimStyle.Render("space pause/resume · r replay · ←/→ seek · n/b next/prev · q quit"))
	b.WriteString("\n")
	return b.String()
}

// renderMeter compresses FFT magnitudes into a row of block characters.
func renderMeter(spectrum []float64) string {
	if len(spectrum) == 0 {
		return ""
	}
	blocks := []rune(" ▁▂▃▄▅▆▇█")
	binSize := len(spectrum) / meterBars
	if binSize == 0 {
		binSize = 1
	}
	var b strings.Builder
	for i := 0; i < meterBars && i*binSize < len(spectrum); i++ {
		sum := 0.0
		n := 0
		for j := i * binSize; j < (i+1)*binSize && j < len(spectrum); j++ {
			sum += spectrum[j]
			n++
		}
		// Log scale keeps quiet content visible without pegging loud bins.
		level := math.Log1p(sum/float64(n)) / math.Log1p(50)
		idx := int(level * float64(len(blocks)-1))
		if idx >= len(blocks) {
			idx = len(blocks) - 1
		}
		b.WriteRune(blocks[idx])
	}
	return b.String()
}

func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	return fmt.Sprintf("%d:%02d", int(d.Minutes()), int(d.Seconds())%60)
}
