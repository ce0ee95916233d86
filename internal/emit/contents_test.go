package emit

import (
	"strings"
	"testing"
)

func TestRenderContentsGroupsOwnersByPath(t *testing.T) {
	rows := []ContentsFileRow{
		{Path: "usr/lib", Name: "libfoo.so", Section: "libs", Package: "libfoo"},
		{Path: "usr/lib", Name: "libfoo.so", Section: "libs", Package: "libfoo-dev"},
		{Path: "usr/bin", Name: "bar", Section: "utils", Package: "bar-tools"},
	}
	out := RenderContents(rows)
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d: %v", len(lines), lines)
	}
	if !strings.Contains(out, "usr/lib/libfoo.so   libs/libfoo,libs/libfoo-dev\n") {
		t.Errorf("expected merged owners line, got: %q", out)
	}
}

func TestRenderBinContentsFiltersToUsrBin(t *testing.T) {
	rows := []ContentsFileRow{
		{Path: "usr/bin", Name: "bar", Section: "utils", Package: "bar-tools"},
		{Path: "usr/lib", Name: "libfoo.so", Section: "libs", Package: "libfoo"},
	}
	out := RenderBinContents(rows)
	if !strings.Contains(out, "usr/bin/bar") {
		t.Error("expected usr/bin entry retained")
	}
	if strings.Contains(out, "libfoo") {
		t.Error("expected non usr/bin entry excluded")
	}
}
