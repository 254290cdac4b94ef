// Package protocol implements the Git remote-helper stream protocol driver
// (spec.md §4.6, component C6): a line-based request/response loop on
// stdin/stdout that dispatches to the transfer engine and ref manager.
// Grounded on original_source/src/git_remote_dropbox/helper.py's Helper
// class (run, _do_list, _do_push, _do_fetch).
package protocol

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/anishathalye/git-remote-dropbox/internal/blobstore"
	"github.com/anishathalye/git-remote-dropbox/internal/gitutil"
	"github.com/anishathalye/git-remote-dropbox/internal/layout"
	"github.com/anishathalye/git-remote-dropbox/internal/progress"
	"github.com/anishathalye/git-remote-dropbox/internal/refs"
	"github.com/anishathalye/git-remote-dropbox/internal/transfer"
)

// Helper drives one remote-helper session: it owns the stdin/stdout
// streams and the session-scoped caches (first-push state, the sha
// excludes a push batch can assume already live on the remote).
type Helper struct {
	repo   *gitutil.Repository
	store  blobstore.Store
	layout layout.Layout
	refs   *refs.Manager

	in     *bufio.Reader
	out    io.Writer
	errOut io.Writer

	verbosity progress.Level
	firstPush bool
	listSHAs  []string
	pushedSHAs []string
}

// New returns a Helper for one session.
func New(repo *gitutil.Repository, store blobstore.Store, l layout.Layout, refsMgr *refs.Manager, in io.Reader, out, errOut io.Writer) *Helper {
	return &Helper{
		repo:      repo,
		store:     store,
		layout:    l,
		refs:      refsMgr,
		in:        bufio.NewReader(in),
		out:       out,
		errOut:    errOut,
		verbosity: progress.LevelInfo,
	}
}

// ErrUnsupportedOperation is returned (and is protocol-fatal) when an
// unrecognised top-level command is received.
var ErrUnsupportedOperation = errors.New("unsupported operation")

// Run drives the session to completion: either a clean top-level blank
// line (nil return) or a protocol-fatal error.
func (h *Helper) Run(ctx context.Context) error {
	for {
		line, err := h.readLine()
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
		if line == "" {
			return nil
		}

		cmd := strings.Fields(line)[0]
		switch cmd {
		case "capabilities":
			fmt.Fprintln(h.out, "option")
			fmt.Fprintln(h.out, "push")
			fmt.Fprintln(h.out, "fetch")
			fmt.Fprintln(h.out)
		case "option":
			h.handleOption(line)
		case "list":
			if err := h.handleList(ctx, line); err != nil {
				return err
			}
		case "push":
			if err := h.handlePushBatch(ctx, line); err != nil {
				return err
			}
		case "fetch":
			if err := h.handleFetchBatch(ctx, line); err != nil {
				return err
			}
		default:
			return ErrUnsupportedOperation
		}
	}
}

func (h *Helper) readLine() (string, error) {
	line, err := h.in.ReadString('\n')
	if err != nil && err != io.EOF {
		return "", err
	}
	line = strings.TrimRight(line, "\n")
	if line == "" && err == io.EOF {
		return "", io.EOF
	}
	return line, nil
}

func (h *Helper) handleOption(line string) {
	fields := strings.Fields(line)
	if len(fields) != 3 || fields[0] != "option" {
		fmt.Fprintln(h.out, "unsupported")
		return
	}
	name, value := fields[1], fields[2]
	if name != "verbosity" {
		fmt.Fprintln(h.out, "unsupported")
		return
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		fmt.Fprintln(h.out, "unsupported")
		return
	}
	h.verbosity = progress.Level(n)
	fmt.Fprintln(h.out, "ok")
}

func (h *Helper) handleList(ctx context.Context, line string) error {
	forPush := strings.Contains(line, "for-push")

	refList, err := h.refs.List(ctx)
	if err != nil {
		return fmt.Errorf("list refs: %w", err)
	}
	if len(refList) == 0 && forPush {
		h.firstPush = true
	}

	h.listSHAs = h.listSHAs[:0]
	for _, r := range refList {
		fmt.Fprintf(h.out, "%s %s\n", r.SHA, r.Name)
		h.listSHAs = append(h.listSHAs, r.SHA)
	}
	if !forPush {
		target, err := h.refs.ReadSymbolicRef(ctx)
		if err == nil && target != "" {
			fmt.Fprintf(h.out, "@%s HEAD\n", target)
		}
	}
	fmt.Fprintln(h.out)
	return nil
}

// collectBatch gathers every subsequent line sharing prefix, starting with
// first, until a blank line terminates the batch.
func (h *Helper) collectBatch(first, prefix string) ([]string, error) {
	lines := []string{first}
	for {
		line, err := h.readLine()
		if err != nil {
			return nil, fmt.Errorf("%w: unexpected EOF mid-batch", ErrUnsupportedOperation)
		}
		if line == "" {
			return lines, nil
		}
		if !strings.HasPrefix(line, prefix) {
			return nil, fmt.Errorf("%w: expected %q, got %q", ErrUnsupportedOperation, prefix, line)
		}
		lines = append(lines, line)
	}
}

func (h *Helper) handlePushBatch(ctx context.Context, first string) error {
	lines, err := h.collectBatch(first, "push ")
	if err != nil {
		return err
	}

	writer := progress.NewReporter(h.errOut, h.verbosity, "Writing objects")
	var succeeded []pushedRef

	for _, line := range lines {
		spec := strings.TrimPrefix(line, "push ")
		force := false
		if strings.HasPrefix(spec, "+") {
			force = true
			spec = spec[1:]
		}
		parts := strings.SplitN(spec, ":", 2)
		if len(parts) != 2 {
			fmt.Fprintf(h.out, "error %s malformed refspec\n", spec)
			continue
		}
		src, dst := parts[0], parts[1]

		if src == "" {
			if err := h.refs.Delete(ctx, dst); err != nil {
				fmt.Fprintf(h.out, "error %s %s\n", dst, refusalMessage(err))
				continue
			}
			fmt.Fprintf(h.out, "ok %s\n", dst)
			continue
		}

		sha, err := h.repo.RefValue(src)
		if err != nil {
			fmt.Fprintf(h.out, "error %s %v\n", dst, err)
			continue
		}

		excludes := append(append([]string{}, h.listSHAs...), h.pushedSHAs...)
		if _, err := transfer.Push(ctx, h.repo, h.store, h.layout, sha, excludes, func(e transfer.Event) {
			writer.Event(e.Done, e.Total)
			if e.SHA != "" {
				writer.Trace("object %s (%s)", e.SHA, humanize.Bytes(uint64(e.Bytes)))
			}
		}); err != nil {
			fmt.Fprintf(h.out, "error %s %v\n", dst, err)
			continue
		}

		if err := h.refs.Update(ctx, dst, sha, force); err != nil {
			fmt.Fprintf(h.out, "error %s %s\n", dst, refusalMessage(err))
			continue
		}
		h.pushedSHAs = append(h.pushedSHAs, sha)
		succeeded = append(succeeded, pushedRef{src: src, dst: dst})
		fmt.Fprintf(h.out, "ok %s\n", dst)
	}
	fmt.Fprintln(h.out)

	if h.firstPush && len(succeeded) > 0 {
		h.bootstrapHead(ctx, succeeded, writer)
		h.firstPush = false
	}
	return nil
}

// pushedRef records one successfully-pushed refspec's local source ref
// name alongside the remote destination it was written to.
type pushedRef struct {
	src string
	dst string
}

// bootstrapHead implements spec.md §4.5's first-push HEAD bootstrap:
// prefer the ref whose local source matches the local HEAD's symbolic
// target when resolvable (original_source/helper.py:153 compares src, not
// dst — two refspecs can push the same local branch to different remote
// names, and it's the local branch identity that should decide the
// remote's default), else the first ref pushed. Failure here is traced,
// not fatal.
func (h *Helper) bootstrapHead(ctx context.Context, pushed []pushedRef, writer *progress.Reporter) {
	target := pushed[0].dst
	if localHead, err := h.repo.SymbolicRef("HEAD"); err == nil {
		for _, p := range pushed {
			if p.src == localHead {
				target = p.dst
				break
			}
		}
	}
	if ok, err := h.refs.WriteSymbolicRef(ctx, target); err != nil || !ok {
		writer.Trace("failed to set default branch on remote")
	}
}

func refusalMessage(err error) string {
	switch {
	case errors.Is(err, refs.ErrFetchFirst):
		return "fetch first"
	case errors.Is(err, refs.ErrNonFastForward):
		return "non-fast forward"
	case errors.Is(err, refs.ErrDeleteCurrentBranch):
		return "refusing to delete the current branch"
	default:
		return err.Error()
	}
}

func (h *Helper) handleFetchBatch(ctx context.Context, first string) error {
	lines, err := h.collectBatch(first, "fetch ")
	if err != nil {
		return err
	}

	want := make([]string, 0, len(lines))
	for _, line := range lines {
		fields := strings.Fields(strings.TrimPrefix(line, "fetch "))
		if len(fields) < 1 {
			continue
		}
		want = append(want, fields[0])
	}

	reporter := progress.NewReporter(h.errOut, h.verbosity, "Receiving objects")
	fetchErr := transfer.Fetch(ctx, h.repo, h.store, h.layout, want, func(e transfer.Event) {
		reporter.Event(e.Done, e.Total)
		if e.SHA != "" && e.Bytes > 0 {
			reporter.Trace("object %s (%s)", e.SHA, humanize.Bytes(uint64(e.Bytes)))
		}
	})
	if fetchErr != nil {
		return fetchErr
	}
	fmt.Fprintln(h.out)
	return nil
}
