package cli

import (
	"image"
	"image/color"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"

	"github.com/matzehuels/pixelmorph/pkg/morph"
)

func TestMorphModelProgress(t *testing.T) {
	m := NewMorphModel("a.png", "b.png", nil)

	next, _ := m.Update(progressMsg(morph.Progress{ID: uuid.New(), Stage: morph.StageSolving, Fraction: 0.5}))
	m = next.(MorphModel)
	if m.stage != morph.StageSolving || m.fraction != 0.5 {
		t.Errorf("stage, fraction = %s, %v; want solving, 0.5", m.stage, m.fraction)
	}
	if view := m.View(); !strings.Contains(view, "50%") {
		t.Errorf("View() should show solve progress, got:\n%s", view)
	}

	next, _ = m.Update(progressMsg(morph.Progress{Stage: morph.StageSolved, CacheHit: true}))
	m = next.(MorphModel)
	next, _ = m.Update(frameMsg{status: morph.Status{Stage: morph.StageAnimating, Frame: 7, Particles: 4, SettledCount: 2}})
	m = next.(MorphModel)
	view := m.View()
	if !strings.Contains(view, "2/4") {
		t.Errorf("View() should show settled count, got:\n%s", view)
	}
	if !strings.Contains(view, iconCached) {
		t.Errorf("View() should mark cache hits, got:\n%s", view)
	}
}

func TestMorphModelQuitCancels(t *testing.T) {
	cancelled := false
	m := NewMorphModel("a.png", "b.png", func() { cancelled = true })

	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	m = next.(MorphModel)
	if !cancelled {
		t.Error("quitting should cancel the morph")
	}
	if cmd == nil {
		t.Error("quitting should return tea.Quit")
	}
	if !m.Interrupted() {
		t.Error("Interrupted() = false after quitting early")
	}
}

func TestMorphModelDone(t *testing.T) {
	m := NewMorphModel("a.png", "b.png", nil)
	next, cmd := m.Update(doneMsg{})
	m = next.(MorphModel)
	if cmd == nil || m.Interrupted() {
		t.Error("doneMsg should quit without marking an interruption")
	}
}

func TestThumbnail(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			if x >= 4 {
				img.SetRGBA(x, y, color.RGBA{R: 255, A: 255})
			}
		}
	}
	th := newThumbnail(img, 2)
	if th.w != 2 || th.h != 2 {
		t.Fatalf("thumbnail size = %dx%d, want 2x2", th.w, th.h)
	}
	if th.pix[0].R != 0 || th.pix[1].R != 255 {
		t.Errorf("thumbnail pixels = %v, want black then red", th.pix[:2])
	}
	if lines := strings.Count(th.render(), "\n"); lines != 1 {
		t.Errorf("render() lines = %d, want 1 (two pixel rows per line)", lines)
	}

	if th := newThumbnail(img, 100); th.w != maxPreviewSide {
		t.Errorf("thumbnail side = %d, want capped at %d", th.w, maxPreviewSide)
	}
}

func TestProgressBar(t *testing.T) {
	bar := progressBar(0.5, 10)
	if strings.Count(bar, "█") != 5 || strings.Count(bar, "░") != 5 {
		t.Errorf("progressBar(0.5, 10) = %q", bar)
	}
	if strings.Count(progressBar(2, 4), "█") != 4 {
		t.Error("progressBar should clamp above 1")
	}
}
