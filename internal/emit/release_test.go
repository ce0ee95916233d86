package emit

import (
	"strings"
	"testing"
	"time"
)

func TestRenderReleaseIncludesHashBlocksAndDate(t *testing.T) {
	date := time.Date(2021, 7, 14, 10, 54, 24, 0, time.UTC)
	out := RenderRelease(ReleaseFields{
		Origin: "Test", Label: "Test", Suite: "stable", Codename: "stable",
		Description: "desc", Date: date, ValidUntil: date.Add(10 * 24 * time.Hour),
		Architectures: []string{"amd64", "arm64"},
		Components:    []string{"main"},
		Files: []FileDigest{
			{Path: "main/binary-amd64/Packages", Size: 10, MD5: "m", SHA1: "s1", SHA256: "s256"},
		},
	})

	if !strings.Contains(out, "Date: Wed, 14 Jul 2021 10:54:24 +0000\n") {
		t.Errorf("expected RFC2822 date, got: %s", out)
	}
	if !strings.Contains(out, "Architectures: amd64 arm64\n") {
		t.Error("expected space-joined architectures")
	}
	if !strings.Contains(out, "MD5Sum:\n") || !strings.Contains(out, "SHA256:\n") {
		t.Error("expected hash block headers")
	}
	if !strings.Contains(out, "main/binary-amd64/Packages") {
		t.Error("expected file path listed in hash block")
	}
}

func TestRenderReleaseOmitsAcquireByHashWhenDisabled(t *testing.T) {
	out := RenderRelease(ReleaseFields{Date: time.Now(), ValidUntil: time.Now()})
	if strings.Contains(out, "Acquire-By-Hash") {
		t.Error("expected no Acquire-By-Hash header when disabled")
	}
}
