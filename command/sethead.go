package command

import (
	"context"
	"fmt"
	"os"

	"github.com/mitchellh/cli"

	"github.com/anishathalye/git-remote-dropbox/internal/gitutil"
	"github.com/anishathalye/git-remote-dropbox/internal/refs"
	"github.com/anishathalye/git-remote-dropbox/internal/remotecfg"
)

type SetHead struct {
	ui cli.Ui
}

func NewSetHead() (cmd cli.Command, err error) {
	return &SetHead{
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
func (cmd *SetHead) Help() string {
	return fmt.Sprintf(`
  %s
`, cmd.Synopsis())
}

// Synopsis returns a one-line, short synopsis of the command.
func (cmd *SetHead) Synopsis() string {
	return "set the default branch on the remote"
}

// Usage returns a usage description.
func (cmd *SetHead) Usage() string {
	return "git dropbox set-head <remote> <branch>"
}

// Run points a remote's symbolic HEAD at refs/heads/<branch>, failing if
// that branch doesn't exist on the remote.
func (cmd *SetHead) Run(args []string) int {
	if len(args) != 2 {
		cmd.ui.Error(fmt.Sprintf("expected 2 arguments (remote, branch), got %d", len(args)))
		return 1
	}
	remoteName, branch := args[0], args[1]

	wd, err := os.Getwd()
	if err != nil {
		cmd.ui.Error(fmt.Sprintf("failed to get working directory: %v", err))
		return 2
	}
	repo, err := gitutil.Open(wd)
	if err != nil {
		cmd.ui.Error(fmt.Sprintf("failed to open repository: %v", err))
		return 2
	}
	url, err := repo.GetRemoteURL(remoteName)
	if err != nil {
		cmd.ui.Error(fmt.Sprintf("no such remote '%s'", remoteName))
		return 3
	}

	ctx := context.Background()
	conn, err := remotecfg.Open(ctx, url)
	if err != nil {
		cmd.ui.Error(fmt.Sprintf("failed to connect to remote: %v", err))
		return 4
	}
	refsMgr := refs.New(conn.Store, conn.Layout, repo)

	targetRef := "refs/heads/" + branch
	list, err := refsMgr.List(ctx)
	if err != nil {
		cmd.ui.Error(fmt.Sprintf("failed to list remote refs: %v", err))
		return 5
	}
	found := false
	for _, r := range list {
		if r.Name == targetRef {
			found = true
			break
		}
	}
	if !found {
		cmd.ui.Error(fmt.Sprintf("remote has no such ref '%s'", targetRef))
		return 6
	}

	oldHead, err := refsMgr.ReadSymbolicRef(ctx)
	if err == nil && oldHead == targetRef {
		cmd.ui.Error(fmt.Sprintf("remote HEAD is already '%s'", targetRef))
		return 7
	}

	ok, err := refsMgr.WriteSymbolicRef(ctx, targetRef)
	if err != nil {
		cmd.ui.Error(fmt.Sprintf("failed to update remote HEAD: %v", err))
		return 8
	}
	if !ok {
		cmd.ui.Error("concurrent modification of remote HEAD detected (try again)")
		return 8
	}

	cmd.ui.Output(fmt.Sprintf("Updated remote HEAD to '%s'.", targetRef))
	return 0
}
