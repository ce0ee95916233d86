package sign

import (
	"fmt"
	"strings"
)

// Instructions renders the setup text printed by gen-key: the public
// key to distribute, the private key to place in the certificate
// config value, and its expiry, built with a plain format string
// rather than a template engine since the output has no conditional
// structure worth one.
func Instructions(id *Identity, configFile string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Generated a new signing identity (fingerprint %s), expiring %s.\n\n", id.Fingerprint, id.Expiry.Format("2006-01-02"))
	b.WriteString("Public key (distribute to clients as a trusted keyring entry):\n\n")
	b.WriteString(id.PublicKey)
	b.WriteString("\nPrivate key (store securely; do not distribute):\n\n")
	b.WriteString(id.PrivateKey)
	fmt.Fprintf(&b, "\nAdd the private key's path to %s's [config] certificate value,\nor inline it via a certificate file referenced from there.\n", configFile)
	return b.String()
}
