package sign

import (
	"bytes"
	"strings"

	"golang.org/x/crypto/openpgp"
	"golang.org/x/crypto/openpgp/armor"
	"golang.org/x/crypto/openpgp/clearsign"
	"golang.org/x/crypto/openpgp/packet"

	repoerrors "github.com/repovector/repovector/internal/errors"
)

// Signer produces the two signature forms a Release needs: a detached
// armored signature for Release.gpg, and a cleartext-signed document
// for InRelease.
type Signer interface {
	DetachSign(content []byte) ([]byte, error)
	ClearSign(content []byte) ([]byte, error)
}

// KeySigner signs with a private key loaded from an armored
// certificate file.
type KeySigner struct {
	entity *openpgp.Entity
}

// LoadSigner parses an armored OpenPGP private key (the certificate
// config value) and returns a Signer over its signing key.
func LoadSigner(armoredKey string) (*KeySigner, error) {
	block, err := armor.Decode(strings.NewReader(armoredKey))
	if err != nil {
		return nil, repoerrors.Wrap(repoerrors.Signing, "decoding armored certificate", err)
	}
	entity, err := openpgp.ReadEntity(packet.NewReader(block.Body))
	if err != nil {
		return nil, repoerrors.Wrap(repoerrors.Signing, "reading certificate entity", err)
	}
	return &KeySigner{entity: entity}, nil
}

// DetachSign returns an armored detached signature over content, for
// Release.gpg.
func (s *KeySigner) DetachSign(content []byte) ([]byte, error) {
	var buf bytes.Buffer
	if err := openpgp.ArmoredDetachSign(&buf, s.entity, bytes.NewReader(content), nil); err != nil {
		return nil, repoerrors.Wrap(repoerrors.Signing, "detached-signing release", err)
	}
	return buf.Bytes(), nil
}

// ClearSign returns the cleartext-signed form of content, for
// InRelease.
func (s *KeySigner) ClearSign(content []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := clearsign.Encode(&buf, s.entity.PrivateKey, nil)
	if err != nil {
		return nil, repoerrors.Wrap(repoerrors.Signing, "opening cleartext signer", err)
	}
	if _, err := w.Write(content); err != nil {
		return nil, repoerrors.Wrap(repoerrors.Signing, "writing cleartext-signed content", err)
	}
	if err := w.Close(); err != nil {
		return nil, repoerrors.Wrap(repoerrors.Signing, "closing cleartext signer", err)
	}
	return buf.Bytes(), nil
}
