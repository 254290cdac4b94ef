package command

import (
	"bytes"
	"fmt"
	"os"

	"github.com/jessevdk/go-flags"
	"github.com/mitchellh/cli"

	"github.com/anishathalye/git-remote-dropbox/internal/config"
)

var LogoutOpts struct {
	Positional struct {
		Username string `positional-arg-name:"username" description:"log out of this account instead of the default account"`
	} `positional-args:"yes"`
}

type Logout struct {
	ui cli.Ui
}

func NewLogout() (cmd cli.Command, err error) {
	return &Logout{
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
func (cmd *Logout) Help() string {
	parser := flags.NewNamedParser(cmd.Usage(), flags.PassDoubleDash)
	_, err := parser.AddGroup("default", "", &LogoutOpts)
	if err != nil {
		panic(err)
	}

	buf := bytes.NewBuffer(nil)
	parser.WriteHelp(buf)

	return fmt.Sprintf(`
  %s

%s`, cmd.Synopsis(), buf.String())
}

// Synopsis returns a one-line, short synopsis of the command.
func (cmd *Logout) Synopsis() string {
	return "forget a saved Dropbox access token"
}

// Usage returns a usage description.
func (cmd *Logout) Usage() string {
	return "git dropbox logout [username]"
}

// Run drops the stored token for username, or the default account's token
// if no username was given.
func (cmd *Logout) Run(args []string) int {
	args, err := flags.ParseArgs(&LogoutOpts, args)
	if err != nil {
		cmd.ui.Error(fmt.Sprintf("failed to parse flags: %v", err))
		return 1
	}
	username := LogoutOpts.Positional.Username

	path, err := config.DefaultPath()
	if err != nil {
		cmd.ui.Error(fmt.Sprintf("failed to locate config file: %v", err))
		return 2
	}
	cfg, err := config.LoadOrCreate(path)
	if err != nil {
		cmd.ui.Error(fmt.Sprintf("failed to load config: %v", err))
		return 2
	}

	if username == "" {
		cfg.DeleteDefaultToken()
	} else {
		cfg.DeleteNamedToken(username)
	}
	if err := cfg.Save(); err != nil {
		cmd.ui.Error(fmt.Sprintf("failed to save config: %v", err))
		return 3
	}

	if username == "" {
		cmd.ui.Output("Logged out!")
	} else {
		cmd.ui.Output(fmt.Sprintf("Logged out %s!", username))
	}
	return 0
}
