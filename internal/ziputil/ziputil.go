// Package ziputil rewrites the entries of zip based archives (jar, war,
// ear, rar, zip) in memory.
package ziputil

import (
	"archive/zip"
	"bytes"
	"fmt"
	"hash/crc32"
	"io"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"

	"class-transformer/internal/artifact"
)

var archiveExts = map[string]bool{
	".jar": true,
	".war": true,
	".ear": true,
	".rar": true,
	".zip": true,
}

// IsArchive reports whether name has an archive extension.
func IsArchive(name string) bool {
	return archiveExts[strings.ToLower(filepath.Ext(name))]
}

// SanitizePath normalizes ZIP entry paths (forward slashes, no drive, no leading '/'),
// and removes '.' and '..' segments without escaping the root.
func SanitizePath(p string) string {
	s := filepath.ToSlash(p)
	if len(s) > 1 && s[1] == ':' {
		s = s[2:]
	}
	s = strings.TrimLeft(s, "/")
	parts := strings.Split(s, "/")
	stack := make([]string, 0, len(parts))
	for _, part := range parts {
		if part == "" || part == "." {
			continue
		}
		if part == ".." {
			if n := len(stack); n > 0 {
				stack = stack[:n-1]
			}
			continue
		}
		stack = append(stack, part)
	}
	s = strings.Join(stack, "/")
	if s == "" {
		return "entry"
	}
	return s
}

// EntryFunc rewrites one file entry. Returning in itself keeps the entry
// byte for byte, compressed data included.
type EntryFunc func(in *artifact.ByteData) (*artifact.ByteData, error)

// Stats counts what a Rewrite did to the entries of an archive.
type Stats struct {
	Entries    int
	Changed    int
	Renamed    int
	Duplicates int
}

// Rewrite passes every file entry of the archive in data through fn and
// returns the new archive. Entry order, compression method, timestamps,
// extra fields and comments are kept. When two entries end up with the
// same name the first one wins; later ones are logged and dropped. If no
// entry changed the input slice is returned.
func Rewrite(data []byte, fn EntryFunc, log logrus.FieldLogger) ([]byte, Stats, error) {
	var st Stats
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, st, fmt.Errorf("open archive: %w", err)
	}
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	seen := make(map[string]bool, len(zr.File))
	for _, f := range zr.File {
		st.Entries++
		if f.FileInfo().IsDir() {
			if seen[f.Name] {
				st.Duplicates++
				continue
			}
			seen[f.Name] = true
			if err := zw.Copy(f); err != nil {
				return nil, st, fmt.Errorf("copy %s: %w", f.Name, err)
			}
			continue
		}
		content, err := readEntry(f)
		if err != nil {
			return nil, st, err
		}
		in := artifact.New(f.Name, content, nil)
		out, err := fn(in)
		if err != nil {
			return nil, st, err
		}
		name := f.Name
		if out != in && out.Name != f.Name {
			name = SanitizePath(out.Name)
			st.Renamed++
		}
		if seen[name] {
			st.Duplicates++
			log.WithFields(logrus.Fields{"entry": f.Name, "output": name}).Warn("duplicate archive entry dropped")
			continue
		}
		seen[name] = true
		if out == in {
			if err := zw.Copy(f); err != nil {
				return nil, st, fmt.Errorf("copy %s: %w", f.Name, err)
			}
			continue
		}
		if !bytes.Equal(out.Data, content) {
			st.Changed++
		}
		if err := writeEntry(zw, f, name, out.Data); err != nil {
			return nil, st, err
		}
	}
	if err := zw.SetComment(zr.Comment); err != nil {
		return nil, st, err
	}
	if err := zw.Close(); err != nil {
		return nil, st, fmt.Errorf("close archive: %w", err)
	}
	if st.Changed == 0 && st.Renamed == 0 && st.Duplicates == 0 {
		return data, st, nil
	}
	return buf.Bytes(), st, nil
}

func readEntry(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", f.Name, err)
	}
	defer rc.Close()
	b, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", f.Name, err)
	}
	return b, nil
}

// writeEntry writes data under name with the metadata of f. Stored
// entries are written raw with their sizes in the local header: Java's
// ZipInputStream rejects stored entries that use a data descriptor.
func writeEntry(zw *zip.Writer, f *zip.File, name string, data []byte) error {
	h := f.FileHeader
	h.Name = name
	if h.Method == zip.Store {
		h.Flags &^= 0x8
		h.CRC32 = crc32.ChecksumIEEE(data)
		h.CompressedSize64 = uint64(len(data))
		h.UncompressedSize64 = uint64(len(data))
		w, err := zw.CreateRaw(&h)
		if err != nil {
			return fmt.Errorf("create %s: %w", name, err)
		}
		if _, err := w.Write(data); err != nil {
			return fmt.Errorf("write %s: %w", name, err)
		}
		return nil
	}
	h.CRC32 = 0
	h.CompressedSize64 = 0
	h.UncompressedSize64 = 0
	h.Extra = dropExtra(h.Extra, extTimeID) // CreateHeader adds it again from Modified
	w, err := zw.CreateHeader(&h)
	if err != nil {
		return fmt.Errorf("create %s: %w", name, err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	return nil
}

const extTimeID = 0x5455

// dropExtra removes the extra fields with the given header id.
func dropExtra(extra []byte, id uint16) []byte {
	var out []byte
	for len(extra) >= 4 {
		tag := uint16(extra[0]) | uint16(extra[1])<<8
		size := int(uint16(extra[2]) | uint16(extra[3])<<8)
		if 4+size > len(extra) {
			break
		}
		if tag != id {
			out = append(out, extra[:4+size]...)
		}
		extra = extra[4+size:]
	}
	return out
}
