// Package knownremotes keeps a small local cache of Dropbox remotes this
// machine has touched, so `git dropbox show-logins` can also report which
// remote paths were last used under each account without a network round
// trip. Grounded on nerdalize-git-bits's bits/db.go, which uses
// boltdb/bolt the same way: one small embedded KV store under the user's
// home directory, opened on demand and closed immediately after use.
package knownremotes

import (
	"os"
	"path/filepath"
	"time"

	"github.com/boltdb/bolt"
)

const bucketName = "remotes"

// Store is a tiny durable cache, one bolt.DB file per user.
type Store struct {
	db *bolt.DB
}

// Open opens (creating if necessary) the known-remotes database at its
// default location, $XDG_CONFIG_HOME/git/git-remote-dropbox-remotes.db
// (or ~/.config/git/... if unset).
func Open() (*Store, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		base = filepath.Join(home, ".config")
	}
	dir := filepath.Join(base, "git")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	db, err := bolt.Open(filepath.Join(dir, "git-remote-dropbox-remotes.db"), 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, err
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucketName))
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close releases the underlying file lock.
func (s *Store) Close() error { return s.db.Close() }

// Touch records that account (the empty string for the default account)
// was last used to reach path at time at.
func (s *Store) Touch(account, path string, at time.Time) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketName))
		key := account + "\x00" + path
		return b.Put([]byte(key), []byte(at.UTC().Format(time.RFC3339)))
	})
}

// Entry is one remote this machine has previously used.
type Entry struct {
	Account  string
	Path     string
	LastUsed time.Time
}

// List returns every recorded remote, most-recently-touched account/path
// pairs included, in no particular order.
func (s *Store) List() ([]Entry, error) {
	var entries []Entry
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketName))
		return b.ForEach(func(k, v []byte) error {
			key := string(k)
			account, path := splitKey(key)
			at, err := time.Parse(time.RFC3339, string(v))
			if err != nil {
				return nil // skip malformed entries rather than fail the whole listing
			}
			entries = append(entries, Entry{Account: account, Path: path, LastUsed: at})
			return nil
		})
	})
	return entries, err
}

func splitKey(key string) (account, path string) {
	for i := 0; i < len(key); i++ {
		if key[i] == 0 {
			return key[:i], key[i+1:]
		}
	}
	return key, ""
}
