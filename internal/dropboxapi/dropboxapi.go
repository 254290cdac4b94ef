// Package dropboxapi is a concrete blobstore.Store backed by the Dropbox
// HTTP API v2. It is a thin, purpose-built client (the pack carries no
// Dropbox SDK for Go) following the raw net/http + manual JSON/XML request
// shape the teacher uses for its own object-store backend in bits/s3.go.
package dropboxapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/anishathalye/git-remote-dropbox/internal/blobstore"
)

const (
	defaultAPIBase     = "https://api.dropboxapi.com/2"
	defaultContentBase = "https://content.dropboxapi.com/2"

	// ChunkSize is the design value of spec.md §4.2: payloads larger than
	// this are uploaded as a sequence of upload-session chunks rather than
	// a single request.
	ChunkSize = 50 * 1024 * 1024
)

// Client is a blobstore.Store backed by a Dropbox account, addressed by an
// OAuth2 bearer token.
type Client struct {
	token string
	http  *http.Client
	log   *logrus.Entry

	apiBase     string
	contentBase string
}

// New returns a Client authenticating with token. httpClient may be nil, in
// which case http.DefaultClient is used.
func New(token string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		token:       token,
		http:        httpClient,
		log:         logrus.WithField("component", "dropboxapi"),
		apiBase:     defaultAPIBase,
		contentBase: defaultContentBase,
	}
}

type apiError struct {
	status int
	body   string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("dropbox api: status %d: %s", e.status, e.body)
}

// classify maps an HTTP status to the error-kind taxonomy of spec.md §7.
// The Dropbox API v2 reports essentially every endpoint-level error,
// including a missing path on download/list_folder/delete_v2, as HTTP 409
// with a structured body rather than a plain 404; a 409 whose
// error_summary names a path/not_found lookup failure is this store's
// ErrNotFound, not a CAS conflict. 429 and 5xx are transient and worth
// retrying; everything else is fatal.
func classify(status int, body []byte) error {
	err := &apiError{status: status, body: string(body)}
	switch {
	case status == http.StatusConflict:
		if isPathNotFound(body) {
			return fmt.Errorf("%w: %v", blobstore.ErrNotFound, err)
		}
		return fmt.Errorf("%w: %v", blobstore.ErrConflict, err)
	case status == http.StatusNotFound:
		return fmt.Errorf("%w: %v", blobstore.ErrNotFound, err)
	case status == http.StatusTooManyRequests || status >= 500:
		return fmt.Errorf("%w: %v", blobstore.ErrTransient, err)
	default:
		return err
	}
}

// isPathNotFound reports whether a 409 response body's error_summary names
// a path/not_found lookup failure (the `.tag` Dropbox nests under
// path/path_lookup/etc. varies per endpoint, but error_summary always
// flattens it to a slash-joined tag trail we can substring-match).
func isPathNotFound(body []byte) bool {
	var parsed struct {
		ErrorSummary string `json:"error_summary"`
	}
	if json.Unmarshal(body, &parsed) != nil {
		return false
	}
	return strings.Contains(parsed.ErrorSummary, "not_found")
}

func (c *Client) doJSON(ctx context.Context, path string, reqBody, respBody interface{}) error {
	buf, err := json.Marshal(reqBody)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiBase+path, bytes.NewReader(buf))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", blobstore.ErrTransient, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return classify(resp.StatusCode, body)
	}
	if respBody == nil {
		return nil
	}
	return json.Unmarshal(body, respBody)
}

type downloadArg struct {
	Path string `json:"path"`
}

// Download fetches the contents of path along with its current revision.
func (c *Client) Download(ctx context.Context, path string) (rev string, data []byte, err error) {
	arg, err := json.Marshal(downloadArg{Path: path})
	if err != nil {
		return "", nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.contentBase+"/files/download", nil)
	if err != nil {
		return "", nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Dropbox-API-Arg", string(arg))

	resp, err := c.http.Do(req)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", blobstore.ErrTransient, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return "", nil, classify(resp.StatusCode, body)
	}

	var meta struct {
		Rev string `json:"rev"`
	}
	if err := json.Unmarshal([]byte(resp.Header.Get("Dropbox-API-Result")), &meta); err != nil {
		return "", nil, fmt.Errorf("decode download metadata: %w", err)
	}
	return meta.Rev, body, nil
}

type writeMode struct {
	Tag    string `json:".tag"`
	Update string `json:"update,omitempty"`
}

type uploadArg struct {
	Path           string    `json:"path"`
	Mode           writeMode `json:"mode"`
	Autorename     bool      `json:"autorename"`
	StrictConflict bool      `json:"strict_conflict"`
}

func writeModeOf(mode blobstore.WriteModeSpec) writeMode {
	switch mode.Mode {
	case blobstore.Overwrite:
		return writeMode{Tag: "overwrite"}
	case blobstore.Update:
		return writeMode{Tag: "update", Update: mode.Rev}
	default:
		return writeMode{Tag: "add"}
	}
}

// Upload writes data to path under the given write mode, returning the
// resulting revision. Payloads larger than ChunkSize are uploaded as an
// upload-session: start, zero or more appends, then a finish call that
// commits the session under mode (spec.md §4.2).
func (c *Client) Upload(ctx context.Context, path string, data []byte, mode blobstore.WriteModeSpec) (rev string, err error) {
	if len(data) <= ChunkSize {
		return c.uploadSingleShot(ctx, path, data, mode)
	}
	return c.uploadSession(ctx, path, data, mode)
}

func (c *Client) uploadSingleShot(ctx context.Context, path string, data []byte, mode blobstore.WriteModeSpec) (string, error) {
	arg, err := json.Marshal(uploadArg{Path: path, Mode: writeModeOf(mode), Autorename: false, StrictConflict: true})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.contentBase+"/files/upload", bytes.NewReader(data))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Dropbox-API-Arg", string(arg))
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", blobstore.ErrTransient, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", classify(resp.StatusCode, body)
	}

	var meta struct {
		Rev string `json:"rev"`
	}
	if err := json.Unmarshal(body, &meta); err != nil {
		return "", fmt.Errorf("decode upload metadata: %w", err)
	}
	return meta.Rev, nil
}

type sessionCursor struct {
	SessionID string `json:"session_id"`
	Offset    int64  `json:"offset"`
}

type sessionAppendArg struct {
	Cursor sessionCursor `json:"cursor"`
	Close  bool          `json:"close"`
}

type sessionFinishArg struct {
	Cursor sessionCursor `json:"cursor"`
	Commit struct {
		Path           string    `json:"path"`
		Mode           writeMode `json:"mode"`
		Autorename     bool      `json:"autorename"`
		StrictConflict bool      `json:"strict_conflict"`
	} `json:"commit"`
}

// offsetConflictError carries the server-reported authoritative offset
// returned alongside an UploadSessionOffsetError, per spec.md §4.4/§4.2.
type offsetConflictError struct{ correctOffset int64 }

func (e *offsetConflictError) Error() string {
	return fmt.Sprintf("upload session offset mismatch, server expects %d", e.correctOffset)
}

func (c *Client) contentCall(ctx context.Context, endpoint string, arg interface{}, chunk []byte) ([]byte, error) {
	encodedArg, err := json.Marshal(arg)
	if err != nil {
		return nil, err
	}
	var bodyReader io.Reader
	if chunk != nil {
		bodyReader = bytes.NewReader(chunk)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.contentBase+endpoint, bodyReader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Dropbox-API-Arg", string(encodedArg))
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", blobstore.ErrTransient, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		var offsetErr struct {
			Error struct {
				Tag          string `json:".tag"`
				CorrectOffset int64  `json:"correct_offset"`
			} `json:"error"`
		}
		if json.Unmarshal(body, &offsetErr) == nil && offsetErr.Error.Tag == "incorrect_offset" {
			return nil, &offsetConflictError{correctOffset: offsetErr.Error.CorrectOffset}
		}
		return nil, classify(resp.StatusCode, body)
	}
	return body, nil
}

// uploadSession uploads data in ChunkSize pieces via start/append/finish,
// resuming at the server-reported offset on an offset mismatch, retrying
// each chunk up to blobstore.MaxRetries times on a transient error.
func (c *Client) uploadSession(ctx context.Context, path string, data []byte, mode blobstore.WriteModeSpec) (string, error) {
	first := data[:ChunkSize]
	rest := data[ChunkSize:]

	startResp, err := c.contentCall(ctx, "/files/upload_session/start", struct{}{}, first)
	if err != nil {
		return "", err
	}
	var started struct {
		SessionID string `json:"session_id"`
	}
	if err := json.Unmarshal(startResp, &started); err != nil {
		return "", fmt.Errorf("decode upload session start: %w", err)
	}

	cursor := sessionCursor{SessionID: started.SessionID, Offset: int64(len(first))}
	for len(rest) > 0 {
		n := ChunkSize
		if n > len(rest) {
			n = len(rest)
		}
		chunk := rest[:n]

		err := blobstore.Retry(ctx, func() error {
			_, appendErr := c.contentCall(ctx, "/files/upload_session/append_v2", sessionAppendArg{Cursor: cursor}, chunk)
			var oc *offsetConflictError
			if errors.As(appendErr, &oc) {
				cursor.Offset = oc.correctOffset
				return fmt.Errorf("%w: offset reset to %d", blobstore.ErrTransient, oc.correctOffset)
			}
			return appendErr
		})
		if err != nil {
			return "", err
		}
		cursor.Offset += int64(n)
		rest = rest[n:]
	}

	var finish sessionFinishArg
	finish.Cursor = cursor
	finish.Commit.Path = path
	finish.Commit.Mode = writeModeOf(mode)
	finish.Commit.Autorename = false
	finish.Commit.StrictConflict = true

	finishResp, err := c.contentCall(ctx, "/files/upload_session/finish", finish, nil)
	if err != nil {
		return "", err
	}
	var meta struct {
		Rev string `json:"rev"`
	}
	if err := json.Unmarshal(finishResp, &meta); err != nil {
		return "", fmt.Errorf("decode upload session finish: %w", err)
	}
	return meta.Rev, nil
}

type listFolderArg struct {
	Path      string `json:"path"`
	Recursive bool   `json:"recursive"`
}

type listFolderContinueArg struct {
	Cursor string `json:"cursor"`
}

type metadataEntry struct {
	Tag  string `json:".tag"`
	Path string `json:"path_lower"`
	Rev  string `json:"rev"`
}

type listFolderResult struct {
	Entries []metadataEntry `json:"entries"`
	Cursor  string          `json:"cursor"`
	HasMore bool            `json:"has_more"`
}

// ListFolder recursively lists every file under folder, following
// continuation cursors until the result set is exhausted (spec.md §4.2).
func (c *Client) ListFolder(ctx context.Context, folder string) ([]blobstore.FileInfo, error) {
	var out []blobstore.FileInfo

	var result listFolderResult
	if err := c.doJSON(ctx, "/files/list_folder", listFolderArg{Path: folder, Recursive: true}, &result); err != nil {
		if errors.Is(err, blobstore.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	appendFiles(&out, result.Entries)

	cursor := result.Cursor
	for result.HasMore {
		result = listFolderResult{}
		if err := c.doJSON(ctx, "/files/list_folder/continue", listFolderContinueArg{Cursor: cursor}, &result); err != nil {
			return nil, err
		}
		appendFiles(&out, result.Entries)
		cursor = result.Cursor
	}
	return out, nil
}

func appendFiles(out *[]blobstore.FileInfo, entries []metadataEntry) {
	for _, e := range entries {
		if e.Tag != "file" {
			continue
		}
		*out = append(*out, blobstore.FileInfo{Path: e.Path, Rev: e.Rev})
	}
}

type deleteArg struct {
	Path string `json:"path"`
}

// Delete removes path. It is idempotent: deleting an already-absent path is
// not an error (spec.md §4.5, delete-current-ref semantics).
func (c *Client) Delete(ctx context.Context, path string) error {
	err := c.doJSON(ctx, "/files/delete_v2", deleteArg{Path: path}, nil)
	if err != nil && errors.Is(err, blobstore.ErrNotFound) {
		return nil
	}
	return err
}

var _ blobstore.Store = (*Client)(nil)
