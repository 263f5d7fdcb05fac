package attachment

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// File is one file queued for upload. Open is called only after the file
// passed validation.
type File struct {
	Name string
	Size int64
	Open func() (io.ReadCloser, error)
}

// LocalFile describes a file on disk.
func LocalFile(path string) (File, error) {
	info, err := os.Stat(path)
	if err != nil {
		return File{}, fmt.Errorf("stat %s: %w", path, err)
	}
	if info.IsDir() {
		return File{}, fmt.Errorf("%s is a directory", path)
	}
	return File{
		Name: filepath.Base(path),
		Size: info.Size(),
		Open: func() (io.ReadCloser, error) { return os.Open(path) },
	}, nil
}

// BytesFile wraps in-memory content.
func BytesFile(name string, data []byte) File {
	return File{
		Name: name,
		Size: int64(len(data)),
		Open: func() (io.ReadCloser, error) { return io.NopCloser(bytes.NewReader(data)), nil },
	}
}
