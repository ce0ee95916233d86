package deb

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"io"
	"os"
	"strings"

	"github.com/blakesmith/ar"
	"github.com/klauspost/compress/zstd"
	"github.com/ulikunitz/xz"

	repoerrors "github.com/repovector/repovector/internal/errors"
)

// Inspect opens the .deb at path, parses its control stanza, and
// enumerates the files and ELF SONAME/DT_NEEDED tags in its data
// tarball.
func Inspect(path string) (Inspection, error) {
	f, err := os.Open(path)
	if err != nil {
		return Inspection{}, repoerrors.Wrap(repoerrors.IO, "opening "+path, err)
	}
	defer f.Close()

	reader := ar.NewReader(f)

	var (
		rec   Record
		files []FileEntry
		sos   []SoDep
		haveControl bool
	)

	for {
		hdr, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return Inspection{}, repoerrors.Wrap(repoerrors.MalformedArchive, "reading ar member of "+path, err)
		}

		name := strings.TrimSuffix(strings.TrimSpace(hdr.Name), "/")
		switch {
		case name == "debian-binary":
			continue
		case strings.HasPrefix(name, "control.tar"):
			body, err := decompress(name, reader)
			if err != nil {
				return Inspection{}, err
			}
			rec, err = extractControl(body)
			if err != nil {
				return Inspection{}, err
			}
			rec.DebTime = hdr.ModTime.Unix()
			haveControl = true
		case strings.HasPrefix(name, "data.tar"):
			body, err := decompress(name, reader)
			if err != nil {
				return Inspection{}, err
			}
			files, sos, err = extractData(body)
			if err != nil {
				return Inspection{}, err
			}
		}
	}

	if !haveControl {
		return Inspection{}, repoerrors.New(repoerrors.MissingControl, path+": no control.tar member")
	}

	return Inspection{Record: rec, Files: files, SoDeps: sos}, nil
}

// decompress returns an uncompressed reader over the member named
// name (whose suffix indicates the compression used), fully buffered
// into memory: control and data tarballs from individual .deb
// archives are small enough that this is fine.
func decompress(name string, r io.Reader) (io.Reader, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, repoerrors.Wrap(repoerrors.IO, "reading "+name, err)
	}

	switch {
	case strings.HasSuffix(name, ".tar"):
		return bytes.NewReader(raw), nil
	case strings.HasSuffix(name, ".tar.gz"):
		gz, err := gzip.NewReader(bytes.NewReader(raw))
		if err != nil {
			return nil, repoerrors.Wrap(repoerrors.UnsupportedCompression, "gzip "+name, err)
		}
		return gz, nil
	case strings.HasSuffix(name, ".tar.xz"):
		xr, err := xz.NewReader(bytes.NewReader(raw))
		if err != nil {
			return nil, repoerrors.Wrap(repoerrors.UnsupportedCompression, "xz "+name, err)
		}
		return xr, nil
	case strings.HasSuffix(name, ".tar.zst"):
		zr, err := zstd.NewReader(bytes.NewReader(raw))
		if err != nil {
			return nil, repoerrors.Wrap(repoerrors.UnsupportedCompression, "zstd "+name, err)
		}
		return zr.IOReadCloser(), nil
	default:
		return nil, repoerrors.New(repoerrors.UnsupportedCompression, "unrecognized compression on "+name)
	}
}

func extractControl(body io.Reader) (Record, error) {
	tr := tar.NewReader(body)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return Record{}, repoerrors.Wrap(repoerrors.MalformedArchive, "reading control.tar", err)
		}
		if normalizeTarName(hdr.Name) == "control" {
			return parseControl(tr)
		}
	}
	return Record{}, repoerrors.New(repoerrors.MissingControl, "control.tar has no control file")
}

func extractData(body io.Reader) ([]FileEntry, []SoDep, error) {
	tr := tar.NewReader(body)
	var files []FileEntry
	var sos []SoDep

	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, repoerrors.Wrap(repoerrors.MalformedArchive, "reading data.tar", err)
		}

		entry := FileEntry{
			Path:  normalizeTarName(hdr.Name),
			Size:  hdr.Size,
			Perm:  uint32(hdr.Mode),
			UID:   int64(hdr.Uid),
			GID:   int64(hdr.Gid),
			Uname: hdr.Uname,
			Gname: hdr.Gname,
			Type:  fileType(hdr),
		}
		entry.Name = baseName(entry.Path)
		files = append(files, entry)

		if entry.Type == FileTypeRegular && looksLikeELFCandidate(entry.Path) {
			content, err := io.ReadAll(io.LimitReader(tr, hdr.Size))
			if err != nil {
				return nil, nil, repoerrors.Wrap(repoerrors.IO, "reading "+entry.Path, err)
			}
			sos = append(sos, probeELF(entry.Path, content)...)
		}
	}
	return files, sos, nil
}

func fileType(hdr *tar.Header) FileType {
	switch hdr.Typeflag {
	case tar.TypeSymlink, tar.TypeLink:
		return FileTypeSymlink
	case tar.TypeChar:
		return FileTypeChar
	case tar.TypeBlock:
		return FileTypeBlock
	case tar.TypeDir:
		return FileTypeDir
	case tar.TypeFifo:
		return FileTypeFifo
	default:
		return FileTypeRegular
	}
}

// normalizeTarName strips the "./" or "/" prefixes dpkg tarballs use,
// iteratively: some producers emit "././usr/bin/foo".
func normalizeTarName(name string) string {
	for {
		switch {
		case strings.HasPrefix(name, "./"):
			name = name[2:]
		case strings.HasPrefix(name, "/"):
			name = name[1:]
		default:
			return name
		}
	}
}

func baseName(path string) string {
	if i := strings.LastIndexByte(path, '/'); i >= 0 {
		return path[i+1:]
	}
	return path
}

// looksLikeELFCandidate cheaply filters out paths that are never ELF
// members, avoiding reading every regular file's content into memory.
func looksLikeELFCandidate(path string) bool {
	switch {
	case strings.Contains(path, "/lib/") && strings.Contains(path, ".so"):
		return true
	case strings.HasPrefix(path, "usr/lib/") || strings.HasPrefix(path, "lib/"):
		return true
	case strings.HasPrefix(path, "usr/bin/") || strings.HasPrefix(path, "bin/") ||
		strings.HasPrefix(path, "usr/sbin/") || strings.HasPrefix(path, "sbin/"):
		return true
	default:
		return false
	}
}
