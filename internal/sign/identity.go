// Package sign provides the OpenPGP signing backend used to produce
// Release.gpg (detached) and InRelease (cleartext) signatures, plus
// gen-key identity generation, built on golang.org/x/crypto/openpgp.
package sign

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"time"

	"golang.org/x/crypto/openpgp"
	"golang.org/x/crypto/openpgp/armor"
	"golang.org/x/crypto/openpgp/packet"

	repoerrors "github.com/repovector/repovector/internal/errors"
)

// certLifetime is how long a generated signing identity remains
// valid before an operator must run gen-key again.
const certLifetime = 2 * 365 * 24 * time.Hour

// Identity is a freshly generated signing identity: an armored public
// key to distribute to clients and an armored private key for the
// certificate config value.
type Identity struct {
	Fingerprint string
	PublicKey   string
	PrivateKey  string
	Expiry      time.Time
}

// GenerateIdentity creates a fresh OpenPGP entity for userID (e.g.
// "Repo Signing Key <repo@example.org>"), with its self-signatures
// carrying a key lifetime of certLifetime, returning its armored
// public and private keys.
func GenerateIdentity(userID string) (*Identity, error) {
	name, email := userID, ""
	if lt := strings.LastIndexByte(userID, '<'); lt >= 0 && strings.HasSuffix(userID, ">") {
		name = strings.TrimSpace(userID[:lt])
		email = userID[lt+1 : len(userID)-1]
	}
	entity, err := openpgp.NewEntity(name, "", email, &packet.Config{
		RSABits: 4096,
	})
	if err != nil {
		return nil, repoerrors.Wrap(repoerrors.Signing, "generating signing identity", err)
	}

	lifetimeSecs := uint32(certLifetime.Seconds())
	for _, id := range entity.Identities {
		id.SelfSignature.KeyLifetimeSecs = &lifetimeSecs
	}
	for _, subkey := range entity.Subkeys {
		subkey.Sig.KeyLifetimeSecs = &lifetimeSecs
	}

	// SerializePrivate re-signs the identities and subkeys, which is what
	// puts the lifetime set above into their signatures; the private key
	// is exported first so the public export carries those signatures too.
	privArmor, err := armorExport(openpgp.PrivateKeyType, func(w io.Writer) error {
		return entity.SerializePrivate(w, nil)
	})
	if err != nil {
		return nil, repoerrors.Wrap(repoerrors.Signing, "armoring private key", err)
	}
	pubArmor, err := armorExport(openpgp.PublicKeyType, entity.Serialize)
	if err != nil {
		return nil, repoerrors.Wrap(repoerrors.Signing, "armoring public key", err)
	}

	return &Identity{
		Fingerprint: fmt.Sprintf("%X", entity.PrimaryKey.Fingerprint),
		PublicKey:   pubArmor,
		PrivateKey:  privArmor,
		Expiry:      entity.PrimaryKey.CreationTime.Add(certLifetime),
	}, nil
}

// armorExport wraps serialize's packet output in an ASCII-armor block
// of the given type.
func armorExport(blockType string, serialize func(io.Writer) error) (string, error) {
	var buf bytes.Buffer
	w, err := armor.Encode(&buf, blockType, nil)
	if err != nil {
		return "", err
	}
	if err := serialize(w); err != nil {
		return "", err
	}
	if err := w.Close(); err != nil {
		return "", err
	}
	return buf.String(), nil
}
