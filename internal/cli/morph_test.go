package cli

import (
	"context"
	"image/color"
	"image/gif"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matzehuels/pixelmorph/pkg/errors"
)

func runCLI(t *testing.T, args ...string) error {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("XDG_CACHE_HOME", t.TempDir())
	c := New(io.Discard, LogInfo)
	root := c.RootCommand()
	root.SetArgs(args)
	root.SetOut(io.Discard)
	root.SetErr(io.Discard)
	return root.ExecuteContext(context.Background())
}

func TestMorphCommandWritesGIF(t *testing.T) {
	dir := t.TempDir()
	src := writePNG(t, dir, "a.png", quadrants([4]color.RGBA{red, green, blue, white}))
	dst := writePNG(t, dir, "b.png", quadrants([4]color.RGBA{white, blue, green, red}))
	out := filepath.Join(dir, "out.gif")

	err := runCLI(t, "morph", src, dst, "-o", out, "--resolution", "2", "--scale", "2", "--gif-every", "4")
	require.NoError(t, err)

	f, err := os.Open(out)
	require.NoError(t, err)
	defer f.Close()
	g, err := gif.DecodeAll(f)
	require.NoError(t, err)
	require.NotEmpty(t, g.Image)
	assert.Equal(t, 4, g.Config.Width)
	assert.Equal(t, 4, g.Config.Height)
	assert.Greater(t, g.Delay[len(g.Delay)-1], g.Delay[0], "the last frame is held")
}

func TestMorphCommandReverseIdentical(t *testing.T) {
	dir := t.TempDir()
	img := quadrants([4]color.RGBA{red, green, blue, white})
	src := writePNG(t, dir, "a.png", img)
	dst := writePNG(t, dir, "b.png", img)
	out := filepath.Join(dir, "same.gif")

	require.NoError(t, runCLI(t, "morph", src, dst, "-o", out, "-r", "2", "--reverse", "--no-cache"))

	f, err := os.Open(out)
	require.NoError(t, err)
	defer f.Close()
	g, err := gif.DecodeAll(f)
	require.NoError(t, err)
	assert.Len(t, g.Image, 1, "identical inputs settle on the first frame")
}

func TestMorphCommandErrors(t *testing.T) {
	dir := t.TempDir()
	img := writePNG(t, dir, "a.png", quadrants([4]color.RGBA{red, green, blue, white}))
	junk := filepath.Join(dir, "junk.png")
	require.NoError(t, os.WriteFile(junk, []byte("junk"), 0o644))

	tests := []struct {
		name string
		args []string
		code errors.Code
	}{
		{"missing file", []string{"morph", img, filepath.Join(dir, "nope.png")}, errors.ErrCodeInvalidInput},
		{"undecodable file", []string{"morph", img, junk}, errors.ErrCodeInvalidInput},
		{"resolution above image size", []string{"morph", img, img, "-r", "16"}, errors.ErrCodeImageSizeMismatch},
		{"proximity out of range", []string{"morph", img, img, "-p", "1.5"}, errors.ErrCodeInvalidConfig},
		{"fps", []string{"morph", img, img, "--fps", "0"}, errors.ErrCodeInvalidConfig},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := runCLI(t, append(tt.args, "-o", filepath.Join(dir, "x.gif"))...)
			require.Error(t, err)
			assert.Equal(t, tt.code, errors.GetCode(err), "error: %v", err)
		})
	}
}

func TestDefaultOutput(t *testing.T) {
	assert.Equal(t, "cat-dog.gif", defaultOutput("/tmp/cat.png", "dog.jpeg"))
	assert.Equal(t, "a-b.gif", defaultOutput("a", "b"))
}

func TestCacheClearCommand(t *testing.T) {
	dir := t.TempDir()
	src := writePNG(t, dir, "a.png", quadrants([4]color.RGBA{red, green, blue, white}))
	dst := writePNG(t, dir, "b.png", quadrants([4]color.RGBA{white, blue, green, red}))

	cacheHome := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("XDG_CACHE_HOME", cacheHome)

	c := New(io.Discard, LogInfo)
	root := c.RootCommand()
	root.SetArgs([]string{"morph", src, dst, "-o", filepath.Join(dir, "o.gif"), "-r", "2", "--scale", "1"})
	require.NoError(t, root.ExecuteContext(context.Background()))

	entries, err := os.ReadDir(filepath.Join(cacheHome, appName))
	require.NoError(t, err)
	assert.NotEmpty(t, entries, "the solved assignment is cached")

	root = c.RootCommand()
	root.SetArgs([]string{"cache", "clear"})
	require.NoError(t, root.ExecuteContext(context.Background()))

	entries, err = os.ReadDir(filepath.Join(cacheHome, appName))
	require.NoError(t, err)
	assert.Empty(t, entries)
}
