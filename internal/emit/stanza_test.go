package emit

import (
	"strings"
	"testing"

	"github.com/repovector/repovector/internal/deb"
)

func TestRenderStanzaFieldOrderAndDefaults(t *testing.T) {
	got := RenderStanza(PackageStanza{
		Name: "test", Version: "1.0", Section: "section", Architecture: "amd64",
		InstalledSize: 1000, Maintainer: "McTestFace <test@aosc.io>",
		Filename: "path", Size: 10, SHA256: "sha256", Description: "description",
		Relationships: []RelationshipValue{{Relationship: deb.RelDepends, Value: "test (=1)"}},
		Features:      "core",
	})

	want := "Package: test\n" +
		"Version: 1.0\n" +
		"Section: section\n" +
		"Architecture: amd64\n" +
		"Installed-Size: 1000\n" +
		"Maintainer: McTestFace <test@aosc.io>\n" +
		"Filename: path\n" +
		"Size: 10\n" +
		"SHA256: sha256\n" +
		"Description: description\n" +
		"Depends: test (=1)\n" +
		"X-AOSC-Features: core\n" +
		"\n"

	if got != want {
		t.Errorf("stanza mismatch:\ngot:\n%s\nwant:\n%s", got, want)
	}
}

func TestRenderStanzaDefaultsEmptySectionAndMaintainer(t *testing.T) {
	got := RenderStanza(PackageStanza{Name: "x", Version: "1", Architecture: "amd64"})
	if !strings.Contains(got, "Section: unknown\n") {
		t.Errorf("expected default section, got: %s", got)
	}
	if !strings.Contains(got, "Maintainer: Bot <bot@aosc.io>\n") {
		t.Errorf("expected default maintainer, got: %s", got)
	}
	if strings.Contains(got, "X-AOSC-Features") {
		t.Error("expected no features line when Features is empty")
	}
}

func TestRenderPackagesConcatenatesStanzas(t *testing.T) {
	out := RenderPackages([]PackageStanza{
		{Name: "a", Version: "1", Architecture: "amd64"},
		{Name: "b", Version: "1", Architecture: "amd64"},
	})
	if strings.Count(out, "Package: ") != 2 {
		t.Errorf("expected two stanzas, got: %s", out)
	}
	if !strings.Contains(out, "Package: a") || !strings.Contains(out, "Package: b") {
		t.Error("expected both packages present")
	}
}
