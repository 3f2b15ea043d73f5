package keyfile

import "crypto/sha256"

// CompositeKey combines a password and key file material into the KeePass
// composite key: SHA-256(SHA-256(password) || keyMaterial). A nil password
// or nil key material is left out, so key-file-only and password-only
// databases are both supported. The result is the input to the database's
// key derivation function.
func CompositeKey(password, keyMaterial []byte) []byte {
	h := sha256.New()
	if password != nil {
		pw := sha256.Sum256(password)
		h.Write(pw[:])
	}
	if keyMaterial != nil {
		h.Write(keyMaterial)
	}
	return h.Sum(nil)
}
