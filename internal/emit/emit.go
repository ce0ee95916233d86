package emit

import (
	"context"
	"path"
	"sort"
	"time"

	repoerrors "github.com/repovector/repovector/internal/errors"
)

// EmitBranch renders every index file for one branch, stages them,
// signs the Release, and publishes atomically to
// <distsRoot>/<branch>, one branch per call — internal/scheduler
// calls it for each branch in turn.
func (d *Driver) EmitBranch(ctx context.Context, distsRoot, branch string) error {
	repos, err := d.ReposForBranch(ctx, branch)
	if err != nil {
		return err
	}
	if len(repos) == 0 {
		return repoerrors.New(repoerrors.IO, "branch "+branch+" has no repos to emit")
	}

	branchRoot := path.Join(distsRoot, branch)
	stage, err := NewStage(branchRoot)
	if err != nil {
		return err
	}

	components := stringSet()
	architectures := stringSet()

	for _, r := range repos {
		components.add(r.Component)
		architectures.add(r.Architecture)

		stanzas, err := d.PackagesForComponentArch(ctx, r.Name)
		if err != nil {
			stage.Discard()
			return err
		}
		rendered := RenderPackages(stanzas)
		binaryDir := path.Join(r.Component, "binary-"+r.Architecture)
		if err := writeCompressedVariants(stage, binaryDir, "Packages", rendered); err != nil {
			stage.Discard()
			return err
		}

		contentsRows, err := d.ContentsForRepo(ctx, r.Name)
		if err != nil {
			stage.Discard()
			return err
		}
		contents := RenderContents(contentsRows)
		if err := stage.Write(path.Join(r.Component, "Contents-"+r.Architecture), []byte(contents)); err != nil {
			stage.Discard()
			return err
		}
		gzContents, err := CompressGzip([]byte(contents))
		if err != nil {
			stage.Discard()
			return err
		}
		if err := stage.Write(path.Join(r.Component, "Contents-"+r.Architecture+".gz"), gzContents); err != nil {
			stage.Discard()
			return err
		}
		binContents := RenderBinContents(contentsRows)
		if err := stage.Write(path.Join(r.Component, "BinContents-"+r.Architecture), []byte(binContents)); err != nil {
			stage.Discard()
			return err
		}
	}

	if d.cfg.ExtraDistFiles != "" {
		if err := stage.CopyExtraDistFiles(d.cfg.ExtraDistFiles); err != nil {
			stage.Discard()
			return err
		}
	}

	releaseFiles, err := ScanReleaseFiles(stage.dir)
	if err != nil {
		stage.Discard()
		return err
	}

	now := time.Now()
	meta := branchMeta{Branch: branch, Architectures: architectures.values(), Components: components.values()}
	fields := ReleaseFields{
		Origin:        d.cfg.Origin,
		Label:         d.cfg.Label,
		Suite:         branch,
		Codename:      d.cfg.Codename,
		Description:   meta.description(d.cfg),
		Date:          now,
		ValidUntil:    now.Add(time.Duration(d.cfg.TTLDays) * 24 * time.Hour),
		Architectures: meta.Architectures,
		Components:    meta.Components,
		Files:         releaseFiles,
		AcquireByHash: d.cfg.AcquireByHashDepth != 0,
	}
	rendered := RenderRelease(fields)

	if err := d.finalizeRelease(stage, []byte(rendered)); err != nil {
		stage.Discard()
		return err
	}

	if err := stage.Publish(branchRoot); err != nil {
		return err
	}

	if d.cfg.AcquireByHashDepth != 0 {
		allFiles, err := ScanReleaseFiles(branchRoot)
		if err != nil {
			return err
		}
		if err := PublishByHash(branchRoot, allFiles); err != nil {
			return err
		}
		return PruneByHash(branchRoot, d.cfg.AcquireByHashDepth)
	}
	return nil
}

// finalizeRelease writes Release unconditionally, and additionally
// writes a detached Release.gpg and cleartext-signed InRelease when a
// signer is configured. Unsigned is the documented fallback when no
// certificate is configured; a signing failure aborts the whole
// branch rather than publishing a partial dists/ tree.
func (d *Driver) finalizeRelease(stage *Stage, rendered []byte) error {
	if err := stage.Write("Release", rendered); err != nil {
		return err
	}
	if d.signer == nil {
		return nil
	}

	detached, err := d.signer.DetachSign(rendered)
	if err != nil {
		return repoerrors.Wrap(repoerrors.Signing, "detach-signing Release", err)
	}
	if err := stage.Write("Release.gpg", detached); err != nil {
		return err
	}

	cleartext, err := d.signer.ClearSign(rendered)
	if err != nil {
		return repoerrors.Wrap(repoerrors.Signing, "cleartext-signing InRelease", err)
	}
	return stage.Write("InRelease", cleartext)
}

func writeCompressedVariants(stage *Stage, dir, base, content string) error {
	if err := stage.Write(path.Join(dir, base), []byte(content)); err != nil {
		return err
	}
	gz, err := CompressGzip([]byte(content))
	if err != nil {
		return err
	}
	if err := stage.Write(path.Join(dir, base+".gz"), gz); err != nil {
		return err
	}
	xzContent, err := CompressXZ([]byte(content))
	if err != nil {
		return err
	}
	return stage.Write(path.Join(dir, base+".xz"), xzContent)
}

type stringSetT struct{ seen map[string]bool }

func stringSet() *stringSetT { return &stringSetT{seen: make(map[string]bool)} }

func (s *stringSetT) add(v string) { s.seen[v] = true }

func (s *stringSetT) values() []string {
	out := make([]string, 0, len(s.seen))
	for v := range s.seen {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}
