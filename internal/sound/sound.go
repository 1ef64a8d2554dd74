// Package sound maps grid event kinds to alert sound files served with
// content-hashed URLs, so browsers can cache them forever.
package sound

import (
	"crypto/sha1" // #nosec G505 - hashing for cache-busting only
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
)

type Sound struct {
	Kind string
	Path string
	Name string
	URL  string
	Hash string
}

// Library holds the sounds that exist on disk. Missing files are skipped;
// the browser falls back to its own beep.
type Library struct {
	byKind map[string]Sound
	byName map[string]Sound
}

func NewLibrary(files map[string]string) (*Library, error) {
	l := &Library{byKind: map[string]Sound{}, byName: map[string]Sound{}}
	kinds := make([]string, 0, len(files))
	for k := range files {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	for _, kind := range kinds {
		path := files[kind]
		fi, err := os.Stat(path)
		if err != nil || fi.IsDir() {
			continue
		}
		sum, err := hashFile(path)
		if err != nil {
			return l, fmt.Errorf("hash %s: %w", path, err)
		}
		_, name := filepath.Split(path)
		s := Sound{
			Kind: kind,
			Path: path,
			Name: name,
			Hash: sum,
			// e.g., /sounds/level.mp3?v=<sha1>
			URL: fmt.Sprintf("/sounds/%s?v=%s", name, sum),
		}
		l.byKind[kind] = s
		l.byName[name] = s
	}
	return l, nil
}

func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := sha1.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// URL returns the cache-busted URL for an event kind, or "" if it has no sound.
func (l *Library) URL(kind string) string {
	if l == nil {
		return ""
	}
	return l.byKind[kind].URL
}

// File resolves a served file name back to its path on disk.
func (l *Library) File(name string) (string, bool) {
	if l == nil {
		return "", false
	}
	s, ok := l.byName[name]
	return s.Path, ok
}

// URLs maps every available kind to its URL.
func (l *Library) URLs() map[string]string {
	out := map[string]string{}
	if l == nil {
		return out
	}
	for k, s := range l.byKind {
		out[k] = s.URL
	}
	return out
}

func (l *Library) Len() int {
	if l == nil {
		return 0
	}
	return len(l.byKind)
}
