package cli

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompletionCommand(t *testing.T) {
	cmd := New(io.Discard, LogInfo).completionCommand()
	assert.Equal(t, []string{"bash", "fish", "powershell", "zsh"}, cmd.ValidArgs)
	assert.Equal(t, "completion [bash|fish|powershell|zsh]", cmd.Use)
	for _, sh := range cmd.ValidArgs {
		assert.Contains(t, cmd.Long, completionShells[sh].install)
	}
}

func TestCompletionScripts(t *testing.T) {
	root := New(io.Discard, LogInfo).RootCommand()
	for sh, gen := range completionShells {
		var buf bytes.Buffer
		require.NoError(t, gen.generate(root, &buf), sh)
		assert.Contains(t, buf.String(), "pixelmorph", sh)
	}
	assert.Error(t, runCLI(t, "completion", "tcsh"))
}
