// Package scan reconciles the on-disk pool/ tree against the package
// index with per-file lookups of the stored rows, a bounded worker
// pool for the CPU-bound inspection work, a single serialized DB
// writer, and a final pass removing rows whose file is gone.
package scan

import "time"

// Result summarizes one scan pass as a single-line count summary.
type Result struct {
	Unchanged int
	Renamed   int
	Added     int
	Updated   int
	Duplicate int
	Failed    int
	Removed   int
	Duration  time.Duration
}

// fileStat is the minimal on-disk metadata the reconciliation loop
// needs before deciding whether to reparse a file.
type fileStat struct {
	path  string
	size  int64
	mtime int64
}
