package sign

import (
	"strings"
	"testing"
)

func TestGenerateIdentityProducesArmoredKeys(t *testing.T) {
	id, err := GenerateIdentity("Test Repo <repo@example.org>")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(id.PublicKey, "BEGIN PGP PUBLIC KEY BLOCK") {
		t.Errorf("expected armored public key, got: %s", id.PublicKey[:40])
	}
	if !strings.Contains(id.PrivateKey, "BEGIN PGP PRIVATE KEY BLOCK") {
		t.Errorf("expected armored private key, got: %s", id.PrivateKey[:40])
	}
	if id.Fingerprint == "" {
		t.Error("expected non-empty fingerprint")
	}
}

func TestSignRoundTripDetachAndClearSign(t *testing.T) {
	id, err := GenerateIdentity("Test Repo <repo@example.org>")
	if err != nil {
		t.Fatalf("generating identity: %v", err)
	}
	signer, err := LoadSigner(id.PrivateKey)
	if err != nil {
		t.Fatalf("loading signer: %v", err)
	}

	content := []byte("Origin: Test\nSuite: stable\n")

	detached, err := signer.DetachSign(content)
	if err != nil {
		t.Fatalf("detach signing: %v", err)
	}
	if !strings.Contains(string(detached), "BEGIN PGP SIGNATURE") {
		t.Errorf("expected armored detached signature block")
	}

	cleartext, err := signer.ClearSign(content)
	if err != nil {
		t.Fatalf("cleartext signing: %v", err)
	}
	if !strings.Contains(string(cleartext), "BEGIN PGP SIGNED MESSAGE") {
		t.Errorf("expected cleartext-signed message block")
	}
	if !strings.Contains(string(cleartext), "Suite: stable") {
		t.Errorf("expected original content preserved in cleartext signature")
	}
}

func TestInstructionsIncludesBothKeys(t *testing.T) {
	id, err := GenerateIdentity("Test Repo <repo@example.org>")
	if err != nil {
		t.Fatalf("generating identity: %v", err)
	}
	out := Instructions(id, "/etc/repovector.toml")
	if !strings.Contains(out, "BEGIN PGP PUBLIC KEY BLOCK") || !strings.Contains(out, "BEGIN PGP PRIVATE KEY BLOCK") {
		t.Error("expected instructions to embed both armored keys")
	}
}
