package emit

import (
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	repoerrors "github.com/repovector/repovector/internal/errors"
)

// ScanReleaseFiles walks branchRoot and digests every file that
// belongs in the Release hash blocks, excluding InRelease (not yet
// written), dotfiles, DEPRECATED markers, and by-hash/ itself.
func ScanReleaseFiles(branchRoot string) ([]FileDigest, error) {
	var out []FileDigest
	err := filepath.WalkDir(branchRoot, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		name := d.Name()
		if strings.HasPrefix(name, ".") || strings.HasPrefix(name, "InRelease") || strings.HasPrefix(name, "DEPRECATED") {
			return nil
		}
		if filepath.Base(filepath.Dir(path)) == "SHA256" && filepath.Base(filepath.Dir(filepath.Dir(path))) == "by-hash" {
			return nil
		}

		rel, err := filepath.Rel(branchRoot, path)
		if err != nil {
			return err
		}
		digest, err := digestFile(path)
		if err != nil {
			return err
		}
		digest.Path = filepath.ToSlash(rel)
		out = append(out, digest)
		return nil
	})
	if err != nil {
		return nil, repoerrors.Wrap(repoerrors.IO, "scanning release files under "+branchRoot, err)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

func digestFile(path string) (FileDigest, error) {
	f, err := os.Open(path)
	if err != nil {
		return FileDigest{}, repoerrors.Wrap(repoerrors.IO, "opening "+path, err)
	}
	defer f.Close()

	md5h, sha1h, sha256h := md5.New(), sha1.New(), sha256.New()
	size, err := io.Copy(io.MultiWriter(md5h, sha1h, sha256h), f)
	if err != nil {
		return FileDigest{}, repoerrors.Wrap(repoerrors.IO, "digesting "+path, err)
	}

	return FileDigest{
		Size:   size,
		MD5:    hex.EncodeToString(md5h.Sum(nil)),
		SHA1:   hex.EncodeToString(sha1h.Sum(nil)),
		SHA256: hex.EncodeToString(sha256h.Sum(nil)),
	}, nil
}
