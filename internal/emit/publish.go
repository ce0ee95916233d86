package emit

import (
	"io"
	"os"
	"path/filepath"
	"sort"

	repoerrors "github.com/repovector/repovector/internal/errors"
)

// Stage is a per-branch scratch directory that accumulates rendered
// index files before they're published atomically by renaming the
// stage over the live branch root.
type Stage struct {
	dir string
}

// NewStage creates a fresh staging directory alongside branchRoot.
func NewStage(branchRoot string) (*Stage, error) {
	dir := branchRoot + ".staging"
	if err := os.RemoveAll(dir); err != nil {
		return nil, repoerrors.Wrap(repoerrors.IO, "clearing stale stage "+dir, err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, repoerrors.Wrap(repoerrors.IO, "creating stage "+dir, err)
	}
	return &Stage{dir: dir}, nil
}

// Write places content at relPath within the stage, creating parent
// directories as needed.
func (s *Stage) Write(relPath string, content []byte) error {
	full := filepath.Join(s.dir, relPath)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return repoerrors.Wrap(repoerrors.IO, "creating directory for "+relPath, err)
	}
	if err := os.WriteFile(full, content, 0o644); err != nil {
		return repoerrors.Wrap(repoerrors.IO, "writing staged file "+relPath, err)
	}
	return nil
}

// CopyExtraDistFiles copies every file under src into the stage root,
// overwriting existing entries.
func (s *Stage) CopyExtraDistFiles(src string) error {
	return filepath.WalkDir(src, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		dst := filepath.Join(s.dir, rel)
		if d.IsDir() {
			return os.MkdirAll(dst, 0o755)
		}
		return copyFile(path, dst)
	})
}

// Publish atomically swaps the stage in for branchRoot: removes any
// prior contents and renames the stage into place.
func (s *Stage) Publish(branchRoot string) error {
	if err := os.RemoveAll(branchRoot); err != nil {
		return repoerrors.Wrap(repoerrors.IO, "removing previous dists tree "+branchRoot, err)
	}
	if err := os.Rename(s.dir, branchRoot); err != nil {
		return repoerrors.Wrap(repoerrors.IO, "publishing staged dists tree to "+branchRoot, err)
	}
	return nil
}

// Discard removes the stage without publishing it, used when signing
// fails partway through.
func (s *Stage) Discard() {
	os.RemoveAll(s.dir)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return repoerrors.Wrap(repoerrors.IO, "opening "+src, err)
	}
	defer in.Close()
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return repoerrors.Wrap(repoerrors.IO, "creating directory for "+dst, err)
	}
	out, err := os.Create(dst)
	if err != nil {
		return repoerrors.Wrap(repoerrors.IO, "creating "+dst, err)
	}
	defer out.Close()
	if _, err := io.Copy(out, in); err != nil {
		return repoerrors.Wrap(repoerrors.IO, "copying "+src+" to "+dst, err)
	}
	return nil
}

// PublishByHash copies each of branchRoot's scanned files into
// by-hash/SHA256/<digest>. The large uncompressed Contents-<arch>
// files are removed from the branch root instead of copied, trading
// their availability at a fixed path for a smaller published tree.
func PublishByHash(branchRoot string, files []FileDigest) error {
	byHashDir := filepath.Join(branchRoot, "by-hash", "SHA256")
	if err := os.MkdirAll(byHashDir, 0o755); err != nil {
		return repoerrors.Wrap(repoerrors.IO, "creating by-hash directory", err)
	}
	for _, f := range files {
		name := filepath.Base(f.Path)
		if isUncompressedContents(name) {
			os.Remove(filepath.Join(branchRoot, f.Path))
			continue
		}
		dst := filepath.Join(byHashDir, f.SHA256)
		if err := copyFile(filepath.Join(branchRoot, f.Path), dst); err != nil {
			return err
		}
	}
	return nil
}

func isUncompressedContents(name string) bool {
	return len(name) > len("Contents-") &&
		name[:len("Contents-")] == "Contents-" &&
		filepath.Ext(name) == ""
}

// PruneByHash retains at most depth entries in branchRoot's
// by-hash/SHA256 directory (newest mtime first), unlimited when depth
// is negative, none when depth is zero.
func PruneByHash(branchRoot string, depth int) error {
	if depth < 0 {
		return nil
	}
	dir := filepath.Join(branchRoot, "by-hash", "SHA256")
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return repoerrors.Wrap(repoerrors.IO, "reading by-hash directory "+dir, err)
	}

	type fileInfo struct {
		name  string
		mtime int64
	}
	infos := make([]fileInfo, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		infos = append(infos, fileInfo{name: e.Name(), mtime: info.ModTime().UnixNano()})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].mtime > infos[j].mtime })

	if depth >= len(infos) {
		return nil
	}
	for _, fi := range infos[depth:] {
		if err := os.Remove(filepath.Join(dir, fi.name)); err != nil {
			return repoerrors.Wrap(repoerrors.IO, "pruning by-hash file "+fi.name, err)
		}
	}
	return nil
}
