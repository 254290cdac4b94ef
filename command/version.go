package command

import (
	"fmt"
	"os"

	"github.com/mitchellh/cli"
)

// Version is set at build time via -ldflags.
var Version = "dev"

type VersionCmd struct {
	ui cli.Ui
}

func NewVersion() (cmd cli.Command, err error) {
	return &VersionCmd{
		ui: &cli.BasicUi{
			Reader:      os.Stdin,
			Writer:      os.Stdout,
			ErrorWriter: os.Stderr,
		},
	}, nil
}

// Help returns long-form help text that includes the command-line
// usage, a brief few sentences explaining the function of the command,
// and the complete list of flags the command accepts.
func (cmd *VersionCmd) Help() string {
	return fmt.Sprintf(`
  %s
`, cmd.Synopsis())
}

// Synopsis returns a one-line, short synopsis of the command.
func (cmd *VersionCmd) Synopsis() string {
	return "print the version of git-remote-dropbox"
}

// Run prints the program version.
func (cmd *VersionCmd) Run(args []string) int {
	cmd.ui.Output(fmt.Sprintf("git-remote-dropbox %s", Version))
	return 0
}
