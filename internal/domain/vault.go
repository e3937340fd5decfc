package domain

import "time"

// KeyRefScheme is the prefix of vault-resolved key refs.
const KeyRefScheme = "vault://"

// VaultKey is one named blob of encrypted signing material. The ciphertext
// is an opaque JSON envelope produced by the vault's encryptor; the store
// never sees plaintext.
type VaultKey struct {
	ID         int64
	Name       string
	Ciphertext []byte
	CreatedAt  time.Time
}
