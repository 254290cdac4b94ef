package command

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/jessevdk/go-flags"
	"github.com/mitchellh/cli"

	"github.com/anishathalye/git-remote-dropbox/internal/config"
)

var LoginOpts struct {
	Positional struct {
		Username string `positional-arg-name:"username" description:"log in under this name instead of as the default account"`
	} `positional-args:"yes"`
}

type Login struct {
	ui cli.Ui
}

func NewLogin() (cmd cli.Command, err error) {
	return &Login{
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
func (cmd *Login) Help() string {
	parser := flags.NewNamedParser(cmd.Usage(), flags.PassDoubleDash)
	_, err := parser.AddGroup("default", "", &LoginOpts)
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
func (cmd *Login) Synopsis() string {
	return "log in to Dropbox and save an access token"
}

// Usage returns a usage description.
func (cmd *Login) Usage() string {
	return "git dropbox login [username]"
}

// Run walks the user through Dropbox's PKCE authorization-code flow and
// stores the resulting refresh token under the given username, or as the
// default account if none was given.
func (cmd *Login) Run(args []string) int {
	args, err := flags.ParseArgs(&LoginOpts, args)
	if err != nil {
		cmd.ui.Error(fmt.Sprintf("failed to parse flags: %v", err))
		return 1
	}
	username := LoginOpts.Positional.Username

	flow, err := config.NewAuthFlow()
	if err != nil {
		cmd.ui.Error(fmt.Sprintf("failed to start login flow: %v", err))
		return 2
	}

	cmd.ui.Output("Logging in to Dropbox using OAuth...")
	cmd.ui.Output(fmt.Sprintf("1. Go to: %s", flow.AuthorizeURL))
	cmd.ui.Output(`2. Click "Allow" (you might have to log in first)`)
	cmd.ui.Output("3. Copy the authorization code")

	code, err := cmd.ui.Ask("Enter authorization code: ")
	if err != nil {
		cmd.ui.Error(fmt.Sprintf("failed to read input: %v", err))
		return 128
	}
	code = strings.TrimSpace(code)

	token, err := flow.Finish(context.Background(), nil, code)
	if err != nil {
		cmd.ui.Error("failed to log in; did you copy the code correctly?")
		return 3
	}

	path, err := config.DefaultPath()
	if err != nil {
		cmd.ui.Error(fmt.Sprintf("failed to locate config file: %v", err))
		return 4
	}
	cfg, err := config.LoadOrCreate(path)
	if err != nil {
		cmd.ui.Error(fmt.Sprintf("failed to load config: %v", err))
		return 4
	}
	if username == "" {
		cfg.SetDefaultToken(token)
	} else {
		cfg.SetNamedToken(username, token)
	}
	if err := cfg.Save(); err != nil {
		cmd.ui.Error(fmt.Sprintf("failed to save config: %v", err))
		return 4
	}

	example := "dropbox:///path/to/repo"
	if username != "" {
		example = fmt.Sprintf("dropbox://%s@/path/to/repo", username)
	}
	cmd.ui.Output(fmt.Sprintf("Successfully logged in! You can now add Dropbox remotes like '%s'", example))
	return 0
}
