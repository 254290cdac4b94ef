// Command git-dropbox-manage is the "git dropbox" management CLI:
// login/logout/show-logins/set-head/version around the tokens internal/config
// stores and the remotes internal/refs manages.
package main

import (
	"fmt"
	"os"

	"github.com/mitchellh/cli"

	"github.com/anishathalye/git-remote-dropbox/command"
)

var (
	name    = "git-dropbox"
	version = "0.0.0"
)

func main() {
	command.Version = version

	c := cli.NewCLI(name, version)
	c.Args = os.Args[1:]
	c.Commands = map[string]cli.CommandFactory{
		"login":       command.NewLogin,
		"logout":      command.NewLogout,
		"show-logins": command.NewList,
		"set-head":    command.NewSetHead,
		"version":     command.NewVersion,
	}

	status, err := c.Run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %s\n", name, err)
	}

	os.Exit(status)
}
