package bundle

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
)

// File is one named entry of a blob archive.
type File struct {
	Name string
	Data []byte
}

// WriteFiles writes files as a zip archive to w, in order.
func WriteFiles(w io.Writer, files []File) error {
	zw := zip.NewWriter(w)
	for _, f := range files {
		fw, err := zw.Create(f.Name)
		if err != nil {
			return fmt.Errorf("create %s: %w", f.Name, err)
		}
		if _, err := fw.Write(f.Data); err != nil {
			return fmt.Errorf("write %s: %w", f.Name, err)
		}
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("close archive: %w", err)
	}
	return nil
}

// ReadFiles returns every entry of a zip archive, in archive order.
func ReadFiles(b []byte) ([]File, error) {
	zr, err := zip.NewReader(bytes.NewReader(b), int64(len(b)))
	if err != nil {
		return nil, fmt.Errorf("invalid archive: %w", err)
	}
	files := make([]File, 0, len(zr.File))
	for _, f := range zr.File {
		data, err := readEntry(f)
		if err != nil {
			return nil, err
		}
		files = append(files, File{Name: f.Name, Data: data})
	}
	return files, nil
}
