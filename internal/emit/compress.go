package emit

import (
	"bytes"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/ulikunitz/xz"

	repoerrors "github.com/repovector/repovector/internal/errors"
)

// CompressGzip matches the .gz variant of every rendered index file.
func CompressGzip(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		return nil, repoerrors.Wrap(repoerrors.IO, "gzip-compressing index", err)
	}
	if err := w.Close(); err != nil {
		return nil, repoerrors.Wrap(repoerrors.IO, "closing gzip writer", err)
	}
	return buf.Bytes(), nil
}

// CompressXZ matches the .xz variant of a Packages file.
func CompressXZ(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := xz.NewWriter(&buf)
	if err != nil {
		return nil, repoerrors.Wrap(repoerrors.IO, "opening xz writer", err)
	}
	if _, err := w.Write(data); err != nil {
		return nil, repoerrors.Wrap(repoerrors.IO, "xz-compressing index", err)
	}
	if err := w.Close(); err != nil {
		return nil, repoerrors.Wrap(repoerrors.IO, "closing xz writer", err)
	}
	return buf.Bytes(), nil
}

// CompressZstd produces a .zst variant. EmitBranch does not call it and
// no configuration key enables it, so published indexes have .gz and
// .xz variants only.
func CompressZstd(data []byte) ([]byte, error) {
	w, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, repoerrors.Wrap(repoerrors.IO, "opening zstd writer", err)
	}
	defer w.Close()
	return w.EncodeAll(data, nil), nil
}
