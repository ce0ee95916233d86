package emit

import (
	"fmt"
	"strings"
	"time"
)

// rfc2822 is the exact layout dpkg's Release parser expects for Date
// and Valid-Until, matching time.RFC1123Z's format but spelled out so
// the weekday/month names aren't locale-dependent.
const rfc2822 = "Mon, 02 Jan 2006 15:04:05 +0000"

// FormatRFC2822 renders t in UTC using the Date/Valid-Until format.
func FormatRFC2822(t time.Time) string {
	return t.UTC().Format(rfc2822)
}

// ReleaseFields is the rendering input for one branch's Release file.
type ReleaseFields struct {
	Origin       string
	Label        string
	Suite        string // the branch name
	Codename     string
	Description  string
	Date         time.Time
	ValidUntil   time.Time
	Architectures []string
	Components   []string
	Files        []FileDigest
	AcquireByHash bool
}

// FileDigest is one entry of the Release hash blocks: a dists-relative
// path with its size and three digests.
type FileDigest struct {
	Path   string
	Size   int64
	MD5    string
	SHA1   string
	SHA256 string
}

// RenderRelease renders a branch's Release file: the same text is
// used whether or not it ends up signed into InRelease.
func RenderRelease(f ReleaseFields) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Origin: %s\n", f.Origin)
	fmt.Fprintf(&b, "Label: %s\n", f.Label)
	fmt.Fprintf(&b, "Suite: %s\n", f.Suite)
	fmt.Fprintf(&b, "Codename: %s\n", f.Codename)
	fmt.Fprintf(&b, "Date: %s\n", FormatRFC2822(f.Date))
	fmt.Fprintf(&b, "Valid-Until: %s\n", FormatRFC2822(f.ValidUntil))
	fmt.Fprintf(&b, "Architectures: %s\n", strings.Join(f.Architectures, " "))
	fmt.Fprintf(&b, "Components: %s\n", strings.Join(f.Components, " "))
	fmt.Fprintf(&b, "Description: %s\n", f.Description)
	if f.AcquireByHash {
		b.WriteString("Acquire-By-Hash: yes\n")
	}

	writeHashBlock(&b, "MD5Sum", f.Files, func(d FileDigest) string { return d.MD5 })
	writeHashBlock(&b, "SHA1", f.Files, func(d FileDigest) string { return d.SHA1 })
	writeHashBlock(&b, "SHA256", f.Files, func(d FileDigest) string { return d.SHA256 })

	return b.String()
}

func writeHashBlock(b *strings.Builder, name string, files []FileDigest, digest func(FileDigest) string) {
	if len(files) == 0 {
		return
	}
	fmt.Fprintf(b, "%s:\n", name)
	for _, f := range files {
		fmt.Fprintf(b, " %s %16d %s\n", digest(f), f.Size, f.Path)
	}
}
