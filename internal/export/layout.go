// Package export lays out the per-reference output tree, writes the JSON
// and HTML reports and packs everything into a ZIP bundle.
package export

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
)

// Subdirs of every reference directory.
var Subdirs = []string{"json", "html", "gml", "kml", "images", "pdf"}

var ErrBadReference = errors.New("reference is not a valid directory name")

type Layout struct {
	Root string
}

func NewLayout(root string) Layout { return Layout{Root: root} }

func (l Layout) Dir(ref string) string { return filepath.Join(l.Root, ref) }

// URLPrefix is where the HTTP server exposes Root.
const URLPrefix = "/outputs"

// URL is the public path of elem inside the reference directory.
func (l Layout) URL(ref string, elem ...string) string {
	return path.Join(append([]string{URLPrefix, ref}, elem...)...)
}

func (l Layout) ZipPath(ref string) string {
	return filepath.Join(l.Root, ref+"_completo.zip")
}

// Prepare creates the reference directory and its subfolders.
func (l Layout) Prepare(ref string) (string, error) {
	if ref == "" || ref == "." || ref == ".." || strings.ContainsAny(ref, `/\`) {
		return "", fmt.Errorf("%w: %q", ErrBadReference, ref)
	}
	dir := l.Dir(ref)
	for _, s := range Subdirs {
		if err := os.MkdirAll(filepath.Join(dir, s), 0o755); err != nil {
			return "", fmt.Errorf("create %s: %w", s, err)
		}
	}
	return dir, nil
}

// References lists the reference directories under Root, sorted.
func (l Layout) References() ([]string, error) {
	entries, err := os.ReadDir(l.Root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []string{}, nil
		}
		return nil, err
	}
	refs := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() && !strings.HasPrefix(e.Name(), ".") {
			refs = append(refs, e.Name())
		}
	}
	sort.Strings(refs)
	return refs, nil
}

func writeJSON(path string, v any) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode %s: %w", filepath.Base(path), err)
	}
	return writeFile(path, buf.Bytes())
}

func writeFile(path string, b []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
