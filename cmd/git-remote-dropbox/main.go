// Command git-remote-dropbox is the Git remote helper invoked by Git
// itself as `git-remote-dropbox <remote-name> <url>` whenever a remote's
// URL has a "dropbox://" scheme. Grounded on
// original_source/cli/helper.py's main().
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/sirupsen/logrus"

	"github.com/anishathalye/git-remote-dropbox/internal/gitutil"
	"github.com/anishathalye/git-remote-dropbox/internal/protocol"
	"github.com/anishathalye/git-remote-dropbox/internal/refs"
	"github.com/anishathalye/git-remote-dropbox/internal/remotecfg"
)

func main() {
	if len(os.Args) < 3 {
		fmt.Fprintln(os.Stderr, "usage: git-remote-dropbox <remote-name> <url>")
		os.Exit(1)
	}
	url := os.Args[2]

	if err := protocol.StdoutToBinary(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	wd, err := os.Getwd()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	repo, err := gitutil.Open(wd)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	conn, err := remotecfg.Open(ctx, url)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	refsMgr := refs.New(conn.Store, conn.Layout, repo)

	helper := protocol.New(repo, conn.Store, conn.Layout, refsMgr, os.Stdin, os.Stdout, os.Stderr)
	if err := helper.Run(ctx); err != nil {
		if ctx.Err() != nil {
			// cancelled (e.g. Ctrl-C): exit silently, matching Git's own
			// handling of an interrupted remote helper
			os.Exit(1)
		}
		logrus.WithError(err).Debug("remote helper session failed")
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
