// Package emit renders and publishes the APT repository index files:
// Packages (plus its compressed variants), Contents-<arch>, Release,
// InRelease, and Release.gpg.
package emit

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/repovector/repovector/internal/deb"
)

// PackageStanza is the rendering input for one Packages entry.
type PackageStanza struct {
	Name          string
	Version       string
	Section       string
	Architecture  string
	InstalledSize int64
	Maintainer    string
	Filename      string
	Size          int64
	SHA256        string
	Description   string
	// Relationships, in control-field order, as they'll be rendered.
	Relationships []RelationshipValue
	Features      string
}

// RelationshipValue is one rendered "<Relationship>: <value>" line.
type RelationshipValue struct {
	Relationship deb.Relationship
	Value        string
}

const defaultMaintainer = "Bot <bot@aosc.io>"

// RenderStanza renders one Packages entry: core fields, then one
// line per present Relationship (in control-field order), then
// X-AOSC-Features if present.
func RenderStanza(p PackageStanza) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Package: %s\n", p.Name)
	fmt.Fprintf(&b, "Version: %s\n", p.Version)
	fmt.Fprintf(&b, "Section: %s\n", orDefault(p.Section, "unknown"))
	fmt.Fprintf(&b, "Architecture: %s\n", p.Architecture)
	fmt.Fprintf(&b, "Installed-Size: %d\n", p.InstalledSize)
	fmt.Fprintf(&b, "Maintainer: %s\n", orDefault(p.Maintainer, defaultMaintainer))
	fmt.Fprintf(&b, "Filename: %s\n", p.Filename)
	fmt.Fprintf(&b, "Size: %d\n", p.Size)
	fmt.Fprintf(&b, "SHA256: %s\n", p.SHA256)
	fmt.Fprintf(&b, "Description: %s\n", p.Description)
	for _, rel := range p.Relationships {
		if rel.Value == "" {
			continue
		}
		fmt.Fprintf(&b, "%s: %s\n", rel.Relationship, rel.Value)
	}
	if p.Features != "" {
		fmt.Fprintf(&b, "X-AOSC-Features: %s\n", p.Features)
	}
	b.WriteByte('\n')
	return b.String()
}

// RenderPackages renders a full Packages file: one stanza per
// package, already separated by the blank line RenderStanza leaves
// trailing, concatenated with no extra separator.
func RenderPackages(stanzas []PackageStanza) string {
	var b strings.Builder
	for _, p := range stanzas {
		b.WriteString(RenderStanza(p))
	}
	return b.String()
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

// SizeString formats a byte count in minimal decimal form. RenderRelease's
// hash blocks do not use it: they right-align sizes in a 16-column field.
func SizeString(n int64) string { return strconv.FormatInt(n, 10) }
