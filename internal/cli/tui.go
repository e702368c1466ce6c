package cli

import (
	"fmt"
	"image"
	"image/color"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/matzehuels/pixelmorph/pkg/morph"
)

const (
	barWidth       = 32
	maxPreviewSide = 32
)

var (
	barFullStyle  = lipgloss.NewStyle().Foreground(colorCyan)
	barEmptyStyle = lipgloss.NewStyle().Foreground(colorDim)
	labelStyle    = lipgloss.NewStyle().Foreground(colorGray).Width(10)
)

// =============================================================================
// Messages
// =============================================================================

type progressMsg morph.Progress

type frameMsg struct {
	status  morph.Status
	preview *thumbnail
}

type doneMsg struct{ err error }

// =============================================================================
// MorphModel - Interactive morph progress
// =============================================================================

// MorphModel is the bubbletea model shown while a morph is solved and
// recorded. The morph runs elsewhere and reports through Send; quitting the
// model early calls Cancel.
type MorphModel struct {
	Source, Target string
	Cancel         func()

	stage    morph.Stage
	fraction float64
	cacheHit bool
	status   morph.Status
	preview  *thumbnail
	err      error
	done     bool
	quit     bool
}

// NewMorphModel creates a model for morphing source into target.
func NewMorphModel(source, target string, cancel func()) MorphModel {
	return MorphModel{Source: source, Target: target, Cancel: cancel, stage: morph.StageSampling}
}

// Interrupted reports whether the user quit before the morph finished.
func (m MorphModel) Interrupted() bool { return m.quit && !m.done }

func (m MorphModel) Init() tea.Cmd {
	return nil
}

func (m MorphModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			m.quit = true
			if m.Cancel != nil {
				m.Cancel()
			}
			return m, tea.Quit
		}
	case progressMsg:
		m.stage = msg.Stage
		m.fraction = msg.Fraction
		if msg.Stage == morph.StageSolved {
			m.cacheHit = msg.CacheHit
		}
	case frameMsg:
		m.stage = msg.status.Stage
		m.status = msg.status
		if msg.preview != nil {
			m.preview = msg.preview
		}
	case doneMsg:
		m.done = true
		m.err = msg.err
		return m, tea.Quit
	}
	return m, nil
}

func (m MorphModel) View() string {
	var b strings.Builder

	b.WriteString(StyleTitle.Render("Morphing "))
	b.WriteString(StyleValue.Render(m.Source))
	b.WriteString(StyleDim.Render(" " + iconArrow + " "))
	b.WriteString(StyleValue.Render(m.Target))
	b.WriteString("\n")
	b.WriteString(listDimStyle.Render("q quit"))
	b.WriteString("\n\n")

	b.WriteString(labelStyle.Render("stage"))
	b.WriteString(StyleHighlight.Render(string(m.stage)))
	b.WriteString("\n")

	switch m.stage {
	case morph.StageSampling, morph.StageCost, morph.StageSolving:
		b.WriteString(labelStyle.Render("progress"))
		b.WriteString(progressBar(m.fraction, barWidth))
		b.WriteString(StyleDim.Render(fmt.Sprintf(" %3.0f%%", m.fraction*100)))
		b.WriteString("\n")
	default:
		s := m.status
		b.WriteString(labelStyle.Render("settled"))
		b.WriteString(progressBar(ratio(s.SettledCount, s.Particles), barWidth))
		b.WriteString(StyleDim.Render(fmt.Sprintf(" %d/%d", s.SettledCount, s.Particles)))
		b.WriteString("\n")
		b.WriteString(labelStyle.Render("frame"))
		b.WriteString(StyleNumber.Render(fmt.Sprintf("%d", s.Frame)))
		b.WriteString("\n")
		b.WriteString(labelStyle.Render("cost"))
		b.WriteString(StyleNumber.Render(fmt.Sprintf("%.4f", s.Cost)))
		if m.cacheHit {
			b.WriteString(" " + styleCached.Render(iconCached))
		}
		b.WriteString("\n")
	}

	if m.preview != nil {
		b.WriteString("\n")
		b.WriteString(m.preview.render())
	}
	if m.err != nil {
		b.WriteString("\n")
		b.WriteString(styleIconError.Render(iconError) + " " + m.err.Error())
		b.WriteString("\n")
	}
	return b.String()
}

// =============================================================================
// Helpers
// =============================================================================

// listDimStyle styles key hints.
var listDimStyle = lipgloss.NewStyle().Foreground(colorDim)

func progressBar(f float64, width int) string {
	f = min(max(f, 0), 1)
	full := int(f * float64(width))
	return barFullStyle.Render(strings.Repeat("█", full)) +
		barEmptyStyle.Render(strings.Repeat("░", width-full))
}

func ratio(n, d int) float64 {
	if d == 0 {
		return 0
	}
	return float64(n) / float64(d)
}

// thumbnail is a downsampled frame drawn with half-block characters, two
// pixel rows per text line.
type thumbnail struct {
	w, h int
	pix  []color.RGBA
}

// newThumbnail samples img on a side×side lattice, side being at most
// maxPreviewSide.
func newThumbnail(img *image.RGBA, side int) *thumbnail {
	side = min(side, maxPreviewSide)
	b := img.Bounds()
	t := &thumbnail{w: side, h: side, pix: make([]color.RGBA, side*side)}
	for y := 0; y < side; y++ {
		for x := 0; x < side; x++ {
			px := b.Min.X + (2*x+1)*b.Dx()/(2*side)
			py := b.Min.Y + (2*y+1)*b.Dy()/(2*side)
			t.pix[y*side+x] = img.RGBAAt(px, py)
		}
	}
	return t
}

func (t *thumbnail) render() string {
	var b strings.Builder
	for y := 0; y < t.h; y += 2 {
		for x := 0; x < t.w; x++ {
			top := t.pix[y*t.w+x]
			bottom := top
			if y+1 < t.h {
				bottom = t.pix[(y+1)*t.w+x]
			}
			b.WriteString(lipgloss.NewStyle().
				Foreground(hexColor(top)).
				Background(hexColor(bottom)).
				Render("▀"))
		}
		b.WriteString("\n")
	}
	return b.String()
}

func hexColor(c color.RGBA) lipgloss.Color {
	return lipgloss.Color(fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B))
}
