// Package config manages the local, per-user JSON file that stores Dropbox
// API tokens: a default token plus zero or more named tokens (one per
// `dropbox://<name>@/...` remote). Grounded on
// original_source/src/git_remote_dropbox/util.py's Token/RefreshToken/
// LongLivedToken/parse_token/Config/atomic_write.
package config

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

// version is the on-disk schema version. A v1 (unversioned) file maps
// usernames directly to long-lived token strings; it is migrated in place
// the first time it's loaded.
const version = 2

// appKey is the Dropbox app key refresh tokens are exchanged under. It is
// not a secret: Dropbox's OAuth2 PKCE flow for desktop apps expects it to
// be public.
const appKey = "h7d8z1irmz0r7lp"

const oauthTokenURL = "https://api.dropbox.com/oauth2/token"

// Token is an OAuth2 refresh token or a legacy long-lived token, each of
// which serializes to a two-element JSON array tagged with its kind, and
// both of which Connect to a usable Dropbox API access token.
type Token interface {
	serialize() []string
	Connect(ctx context.Context, httpClient *http.Client) (accessToken string, err error)
}

// RefreshToken is the modern Dropbox OAuth2 refresh token, exchanged for a
// short-lived access token on every connect.
type RefreshToken struct {
	Value string
}

func (t RefreshToken) serialize() []string { return []string{"refresh", t.Value} }

// Connect exchanges the refresh token for a short-lived access token via
// Dropbox's OAuth2 token endpoint.
func (t RefreshToken) Connect(ctx context.Context, httpClient *http.Client) (string, error) {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	form := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {t.Value},
		"client_id":     {appKey},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, oauthTokenURL, bytes.NewBufferString(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("refresh access token: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("refresh access token: unexpected status %d", resp.StatusCode)
	}
	var body struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("decode refresh response: %w", err)
	}
	return body.AccessToken, nil
}

// LongLivedToken is the legacy Dropbox token kind that never expires.
type LongLivedToken struct {
	Value string
}

func (t LongLivedToken) serialize() []string { return []string{"long-lived", t.Value} }

// Connect returns the long-lived token itself: it needs no exchange.
func (t LongLivedToken) Connect(_ context.Context, _ *http.Client) (string, error) {
	return t.Value, nil
}

// ParseToken decodes a token representation previously produced by
// Token.serialize. It tries every known kind and fails only if rep matches
// none of them.
func ParseToken(rep []string) (Token, error) {
	if len(rep) == 2 {
		switch rep[0] {
		case "refresh":
			return RefreshToken{Value: rep[1]}, nil
		case "long-lived":
			return LongLivedToken{Value: rep[1]}, nil
		}
	}
	return nil, fmt.Errorf("cannot parse %v as a token", rep)
}

type tokenRep struct {
	Default []string            `json:"default"`
	Named   map[string][]string `json:"named"`
}

type fileRep struct {
	Version int      `json:"version"`
	Tokens  tokenRep `json:"tokens"`
}

// ErrVersionMismatch is returned by Load when the config file's version
// field is present but does not match the version this package writes.
var ErrVersionMismatch = errors.New("config version mismatch")

// Config holds the tokens read from, or to be written to, one file on
// disk. It is not safe for concurrent use.
type Config struct {
	filename     string
	defaultToken Token
	namedTokens  map[string]Token
}

// Create returns a new, empty Config and writes it to filename immediately.
func Create(filename string) (*Config, error) {
	c := &Config{filename: filename, namedTokens: map[string]Token{}}
	if err := c.Save(); err != nil {
		return nil, err
	}
	return c, nil
}

// Load reads and parses the config file at filename, migrating a legacy
// (unversioned) file in place if necessary.
func Load(filename string) (*Config, error) {
	raw, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	c := &Config{filename: filename, namedTokens: map[string]Token{}}

	var probe map[string]json.RawMessage
	if err := json.Unmarshal(raw, &probe); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if _, hasVersion := probe["version"]; !hasVersion {
		return c.migrateV1(raw)
	}

	var rep fileRep
	if err := json.Unmarshal(raw, &rep); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if rep.Version != version {
		return nil, fmt.Errorf("%w: expected version %d, got %d; delete %q to re-initialize",
			ErrVersionMismatch, version, rep.Version, filename)
	}
	if len(rep.Tokens.Default) > 0 {
		tok, err := ParseToken(rep.Tokens.Default)
		if err != nil {
			return nil, err
		}
		c.defaultToken = tok
	}
	for name, tr := range rep.Tokens.Named {
		tok, err := ParseToken(tr)
		if err != nil {
			return nil, err
		}
		c.namedTokens[name] = tok
	}
	return c, nil
}

// migrateV1 parses the pre-version config format (a flat map of username
// to bare long-lived token string, "default" being the unnamed remote's
// token) and immediately rewrites the file in the current format.
func (c *Config) migrateV1(raw []byte) (*Config, error) {
	var flat map[string]string
	if err := json.Unmarshal(raw, &flat); err != nil {
		return nil, fmt.Errorf("parse legacy config: %w", err)
	}
	for username, value := range flat {
		tok := LongLivedToken{Value: value}
		if username == "default" {
			c.defaultToken = tok
		} else {
			c.namedTokens[username] = tok
		}
	}
	if err := c.Save(); err != nil {
		return nil, err
	}
	return c, nil
}

// Save serializes the config and atomically replaces the file on disk.
func (c *Config) Save() error {
	rep := fileRep{
		Version: version,
		Tokens: tokenRep{
			Named: map[string][]string{},
		},
	}
	if c.defaultToken != nil {
		rep.Tokens.Default = c.defaultToken.serialize()
	}
	for name, tok := range c.namedTokens {
		rep.Tokens.Named[name] = tok.serialize()
	}
	contents, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		return err
	}
	return atomicWrite(contents, c.filename)
}

// DefaultToken returns the token for the unnamed remote, or nil if unset.
func (c *Config) DefaultToken() Token { return c.defaultToken }

// SetDefaultToken sets the token for the unnamed remote.
func (c *Config) SetDefaultToken(t Token) { c.defaultToken = t }

// DeleteDefaultToken clears the token for the unnamed remote.
func (c *Config) DeleteDefaultToken() { c.defaultToken = nil }

// NamedTokens returns every named-remote token, keyed by name.
func (c *Config) NamedTokens() map[string]Token {
	out := make(map[string]Token, len(c.namedTokens))
	for k, v := range c.namedTokens {
		out[k] = v
	}
	return out
}

// NamedToken returns the token for name, or nil if unset.
func (c *Config) NamedToken(name string) Token { return c.namedTokens[name] }

// SetNamedToken sets the token for name.
func (c *Config) SetNamedToken(name string, t Token) { c.namedTokens[name] = t }

// DeleteNamedToken removes name's token, if any.
func (c *Config) DeleteNamedToken(name string) { delete(c.namedTokens, name) }

// atomicWrite writes contents to a temp file in the same directory as
// path, fsyncs it, then renames it over path, so a concurrent reader or a
// crash mid-write never observes a partially-written config file.
func atomicWrite(contents []byte, path string) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(contents); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

// DefaultPath returns the config file location, preferring
// $XDG_CONFIG_HOME/git/git-remote-dropbox.json (or ~/.config/git/... if
// XDG_CONFIG_HOME is unset) when it exists, falling back to the legacy
// ~/.git-remote-dropbox.json if that's the one already on disk, and
// otherwise defaulting to the XDG path for a freshly created config.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	xdgBase := os.Getenv("XDG_CONFIG_HOME")
	if xdgBase == "" {
		xdgBase = filepath.Join(home, ".config")
	}
	xdgPath := filepath.Join(xdgBase, "git", "git-remote-dropbox.json")
	legacyPath := filepath.Join(home, ".git-remote-dropbox.json")

	for _, p := range []string{xdgPath, legacyPath} {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	return xdgPath, nil
}

// LoadOrCreate opens the config at path, creating an empty one (and its
// parent directory) if it doesn't exist yet.
func LoadOrCreate(path string) (*Config, error) {
	if _, err := os.Stat(path); err == nil {
		return Load(path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	return Create(path)
}

// Remote is the result of resolving a dropbox:// remote URL: the token to
// connect with, plus the lower-cased repository path inside the Dropbox
// account.
type Remote struct {
	Token Token
	Path  string
	// Account is the named account the token was resolved under, or "" for
	// the default account or an inline token.
	Account string
}

// Resolve parses a dropbox:// remote URL (spec.md §6) and resolves it
// against cfg to a Token and repository path. URLs are one of:
//
//	dropbox:///path/to/repo              (default account)
//	dropbox://username@/path/to/repo     (a named account from cfg)
//	dropbox://:token@/path/to/repo       (an inline long-lived token)
func Resolve(cfg *Config, rawURL string) (Remote, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return Remote{}, fmt.Errorf("parse URL: %w", err)
	}
	if u.Scheme != "dropbox" {
		return Remote{}, errors.New(`URL must start with the "dropbox://" scheme`)
	}
	username := u.User.Username()
	password, hasPassword := u.User.Password()
	if u.Host != "" && username == "" && !hasPassword {
		return Remote{}, errors.New(`URL with no username or token must start with "dropbox:///"`)
	}
	if username != "" && hasPassword {
		return Remote{}, errors.New("URL must not specify both username and token")
	}

	path := strings.ToLower(u.Path)
	if strings.HasSuffix(path, "/") {
		return Remote{}, errors.New("URL path must not have trailing slash")
	}

	var token Token
	switch {
	case hasPassword:
		token = LongLivedToken{Value: password}
	case username != "":
		token = cfg.NamedToken(username)
		if token == nil {
			return Remote{}, fmt.Errorf("you must log in first with 'git dropbox login %s'", username)
		}
	default:
		token = cfg.DefaultToken()
		if token == nil {
			return Remote{}, errors.New("you must log in first with 'git dropbox login'")
		}
	}

	return Remote{Token: token, Path: path, Account: username}, nil
}

const authorizeURL = "https://www.dropbox.com/oauth2/authorize"

// AuthFlow is one in-progress OAuth2 PKCE login: the caller sends the user
// to AuthorizeURL, the user approves and copies back an authorization
// code, and Finish exchanges that code for a RefreshToken.
type AuthFlow struct {
	AuthorizeURL string
	verifier     string
}

// NewAuthFlow starts a PKCE authorization-code flow requesting offline
// access (a refresh token, not just a short-lived access token).
func NewAuthFlow() (*AuthFlow, error) {
	verifier, err := randomURLSafeString(64)
	if err != nil {
		return nil, err
	}
	sum := sha256.Sum256([]byte(verifier))
	challenge := base64.RawURLEncoding.EncodeToString(sum[:])

	q := url.Values{
		"client_id":             {appKey},
		"response_type":         {"code"},
		"code_challenge":        {challenge},
		"code_challenge_method": {"S256"},
		"token_access_type":     {"offline"},
	}
	return &AuthFlow{
		AuthorizeURL: authorizeURL + "?" + q.Encode(),
		verifier:     verifier,
	}, nil
}

// Finish exchanges the authorization code the user copied from Dropbox for
// a refresh token.
func (f *AuthFlow) Finish(ctx context.Context, httpClient *http.Client, code string) (RefreshToken, error) {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	form := url.Values{
		"grant_type":    {"authorization_code"},
		"code":          {code},
		"client_id":     {appKey},
		"code_verifier": {f.verifier},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, oauthTokenURL, bytes.NewBufferString(form.Encode()))
	if err != nil {
		return RefreshToken{}, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := httpClient.Do(req)
	if err != nil {
		return RefreshToken{}, fmt.Errorf("exchange authorization code: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return RefreshToken{}, fmt.Errorf("exchange authorization code: unexpected status %d", resp.StatusCode)
	}
	var body struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return RefreshToken{}, fmt.Errorf("decode token response: %w", err)
	}
	if body.RefreshToken == "" {
		return RefreshToken{}, errors.New("dropbox did not return a refresh token")
	}
	return RefreshToken{Value: body.RefreshToken}, nil
}

func randomURLSafeString(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
