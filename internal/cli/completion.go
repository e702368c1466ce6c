package cli

import (
	"io"
	"os"
	"slices"
	"strings"

	"github.com/spf13/cobra"
)

// completionShells maps each supported shell to its script generator and
// the command that installs the script for every new session.
var completionShells = map[string]struct {
	generate func(root *cobra.Command, w io.Writer) error
	install  string
}{
	"bash": {
		generate: func(root *cobra.Command, w io.Writer) error { return root.GenBashCompletion(w) },
		install:  "pixelmorph completion bash > /etc/bash_completion.d/pixelmorph",
	},
	"zsh": {
		generate: func(root *cobra.Command, w io.Writer) error { return root.GenZshCompletion(w) },
		install:  `pixelmorph completion zsh > "${fpath[1]}/_pixelmorph"`,
	},
	"fish": {
		generate: func(root *cobra.Command, w io.Writer) error { return root.GenFishCompletion(w, true) },
		install:  "pixelmorph completion fish > ~/.config/fish/completions/pixelmorph.fish",
	},
	"powershell": {
		generate: func(root *cobra.Command, w io.Writer) error { return root.GenPowerShellCompletionWithDesc(w) },
		install:  "pixelmorph completion powershell >> $PROFILE",
	},
}

func completionHelp(shells []string) string {
	var b strings.Builder
	b.WriteString("Generate a shell completion script for pixelmorph.\n\nInstall it once per shell:\n")
	for _, sh := range shells {
		b.WriteString("\n  " + completionShells[sh].install)
	}
	b.WriteString("\n\nOpen a new shell afterwards. Zsh needs compinit enabled.\n")
	return b.String()
}

// completionCommand creates the completion command for generating shell completions.
func (c *CLI) completionCommand() *cobra.Command {
	shells := make([]string, 0, len(completionShells))
	for sh := range completionShells {
		shells = append(shells, sh)
	}
	slices.Sort(shells)

	return &cobra.Command{
		Use:                   "completion [" + strings.Join(shells, "|") + "]",
		Short:                 "Generate shell completion scripts",
		Long:                  completionHelp(shells),
		DisableFlagsInUseLine: true,
		ValidArgs:             shells,
		Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			return completionShells[args[0]].generate(cmd.Root(), os.Stdout)
		},
	}
}
