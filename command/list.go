package command

import (
	"fmt"
	"os"

	"github.com/mitchellh/cli"

	"github.com/anishathalye/git-remote-dropbox/internal/config"
	"github.com/anishathalye/git-remote-dropbox/internal/knownremotes"
)

type List struct {
	ui cli.Ui
}

func NewList() (cmd cli.Command, err error) {
	return &List{
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
func (cmd *List) Help() string {
	return fmt.Sprintf(`
  %s
`, cmd.Synopsis())
}

// Synopsis returns a one-line, short synopsis of the command.
func (cmd *List) Synopsis() string {
	return "show logged-in accounts and their usernames"
}

// Run prints every account this config file holds a token for.
func (cmd *List) Run(args []string) int {
	path, err := config.DefaultPath()
	if err != nil {
		cmd.ui.Error(fmt.Sprintf("failed to locate config file: %v", err))
		return 1
	}
	cfg, err := config.LoadOrCreate(path)
	if err != nil {
		cmd.ui.Error(fmt.Sprintf("failed to load config: %v", err))
		return 1
	}

	if tok := cfg.DefaultToken(); tok != nil {
		cmd.ui.Output(fmt.Sprintf("(default user)%s", deprecatedSuffix(tok)))
	}
	for username, tok := range cfg.NamedTokens() {
		cmd.ui.Output(fmt.Sprintf("%s%s", username, deprecatedSuffix(tok)))
	}

	if kr, err := knownremotes.Open(); err == nil {
		defer kr.Close()
		if entries, err := kr.List(); err == nil && len(entries) > 0 {
			cmd.ui.Output("")
			cmd.ui.Output("Recently used remotes:")
			for _, e := range entries {
				account := e.Account
				if account == "" {
					account = "(default user)"
				}
				cmd.ui.Output(fmt.Sprintf("  %s %s (last used %s)", account, e.Path, e.LastUsed.Format("2006-01-02")))
			}
		}
	}
	return 0
}

func deprecatedSuffix(tok config.Token) string {
	if _, ok := tok.(config.LongLivedToken); ok {
		return " [deprecated long-lived token]"
	}
	return ""
}
