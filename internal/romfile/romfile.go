// Package romfile reads cartridge and boot images from disk, unpacking
// compressed containers by file extension.
package romfile

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/bodgit/sevenzip"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zip"
	"github.com/ulikunitz/xz"
)

var (
	ErrEmptyArchive = errors.New("romfile: archive contains no files")
	ErrTooLarge     = errors.New("romfile: unpacked image exceeds 8 MiB")
)

// MaxImageSize is the largest cartridge image (MBC5, 512 banks).
const MaxImageSize = 8 << 20

// romExts are preferred when an archive holds several entries.
var romExts = []string{".gb", ".gbc", ".sgb", ".bin"}

// Load reads path and returns the decompressed image.
func Load(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	out, err := Decode(path, data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return out, nil
}

// Decode unpacks data according to the extension of name. Unknown extensions
// are returned as-is.
func Decode(name string, data []byte) ([]byte, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".gz":
		r, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		defer r.Close()
		return readLimited(r)
	case ".xz":
		r, err := xz.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		return readLimited(r)
	case ".zip":
		zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
		if err != nil {
			return nil, err
		}
		var files []archived
		for _, f := range zr.File {
			files = append(files, archived{name: f.Name, dir: f.FileInfo().IsDir(), open: f.Open})
		}
		return readFirst(files)
	case ".7z":
		sr, err := sevenzip.NewReader(bytes.NewReader(data), int64(len(data)))
		if err != nil {
			return nil, err
		}
		var files []archived
		for _, f := range sr.File {
			files = append(files, archived{name: f.Name, dir: f.FileInfo().IsDir(), open: f.Open})
		}
		return readFirst(files)
	default:
		return data, nil
	}
}

type archived struct {
	name string
	dir  bool
	open func() (io.ReadCloser, error)
}

// readFirst picks the first entry with a ROM extension, else the first file.
func readFirst(files []archived) ([]byte, error) {
	var pick *archived
	for i := range files {
		if files[i].dir {
			continue
		}
		if pick == nil {
			pick = &files[i]
		}
		if hasROMExt(files[i].name) {
			pick = &files[i]
			break
		}
	}
	if pick == nil {
		return nil, ErrEmptyArchive
	}
	rc, err := pick.open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return readLimited(rc)
}

// readLimited reads r to the end, refusing anything larger than MaxImageSize.
func readLimited(r io.Reader) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, MaxImageSize+1))
	if err != nil {
		return nil, err
	}
	if len(data) > MaxImageSize {
		return nil, ErrTooLarge
	}
	return data, nil
}

func hasROMExt(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range romExts {
		if ext == e {
			return true
		}
	}
	return false
}
