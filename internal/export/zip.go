package export

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zip"
)

// Zip packs the reference directory into Root/<ref>_completo.zip. Entry
// names keep the reference folder as their first element.
func (l Layout) Zip(ref string) (string, error) {
	dir := l.Dir(ref)
	if _, err := os.Stat(dir); err != nil {
		return "", err
	}
	dst := l.ZipPath(ref)
	tmp, err := os.CreateTemp(l.Root, "."+ref+"-*.zip")
	if err != nil {
		return "", fmt.Errorf("create zip: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	zw := zip.NewWriter(tmp)
	walkErr := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(l.Root, path)
		if err != nil {
			return err
		}
		return addFile(zw, path, filepath.ToSlash(rel))
	})
	if walkErr != nil {
		_ = zw.Close()
		_ = tmp.Close()
		return "", fmt.Errorf("zip %s: %w", ref, walkErr)
	}
	if err := zw.Close(); err != nil {
		_ = tmp.Close()
		return "", fmt.Errorf("finish zip: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", err
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return "", fmt.Errorf("move zip: %w", err)
	}
	return dst, nil
}

func addFile(zw *zip.Writer, path, name string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()
	st, err := f.Stat()
	if err != nil {
		return err
	}
	hdr, err := zip.FileInfoHeader(st)
	if err != nil {
		return err
	}
	hdr.Name = name
	hdr.Method = zip.Deflate
	w, err := zw.CreateHeader(hdr)
	if err != nil {
		return err
	}
	_, err = io.Copy(w, f)
	return err
}
