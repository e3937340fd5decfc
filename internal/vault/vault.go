// Package vault stores signing material encrypted at rest and resolves
// vault:// key refs into signers.
package vault

import (
	"context"
	"crypto/ecdsa"
	"encoding/hex"
	"fmt"
	"strings"

	gethcrypto "github.com/ethereum/go-ethereum/crypto"
	hdwallet "github.com/miguelmota/go-ethereum-hdwallet"

	"github.com/mirrorbot/mirrorbot/internal/domain"
)

// accountZeroPath is the default BIP-44 derivation path for account #0.
const accountZeroPath = "m/44'/60'/0'/0/0"

// Vault wraps the encrypted key store with one deployment-wide passphrase.
type Vault struct {
	store      domain.VaultStore
	passphrase string
}

// New creates a Vault over the given store.
func New(store domain.VaultStore, passphrase string) *Vault {
	return &Vault{store: store, passphrase: passphrase}
}

// ParseKeyRef extracts the key name from a vault://<name> ref.
func ParseKeyRef(ref string) (string, error) {
	if !strings.HasPrefix(ref, domain.KeyRefScheme) {
		return "", fmt.Errorf("vault: %w: key ref %q must start with %s",
			domain.ErrInvalidInput, ref, domain.KeyRefScheme)
	}
	name := strings.TrimPrefix(ref, domain.KeyRefScheme)
	if name == "" {
		return "", fmt.Errorf("vault: %w: key ref has empty name", domain.ErrInvalidInput)
	}
	return name, nil
}

// AddSecret encrypts the secret and stores it under name. The secret may be
// a 64-hex private key or a BIP-39 mnemonic; the vault does not care which
// until resolution.
func (v *Vault) AddSecret(ctx context.Context, name, secret string) error {
	secret = strings.TrimSpace(secret)
	ciphertext, err := seal([]byte(secret), v.passphrase)
	if err != nil {
		return err
	}
	if err := v.store.Put(ctx, name, ciphertext); err != nil {
		return fmt.Errorf("vault: store %s: %w", name, err)
	}
	return nil
}

// Secret resolves a vault:// ref to its decrypted plaintext.
func (v *Vault) Secret(ctx context.Context, keyRef string) (string, error) {
	name, err := ParseKeyRef(keyRef)
	if err != nil {
		return "", err
	}

	key, err := v.store.Get(ctx, name)
	if err != nil {
		return "", fmt.Errorf("vault: load %s: %w", name, err)
	}

	plaintext, err := open(key.Ciphertext, v.passphrase)
	if err != nil {
		return "", err
	}
	return string(plaintext), nil
}

// List returns the stored key names.
func (v *Vault) List(ctx context.Context) ([]domain.VaultKey, error) {
	keys, err := v.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("vault: list: %w", err)
	}
	return keys, nil
}

// Signer resolves a vault:// ref into an ECDSA private key. A 64-hex secret
// is used directly; anything else is treated as a BIP-39 mnemonic and
// account #0 is derived.
func (v *Vault) Signer(ctx context.Context, keyRef string) (*ecdsa.PrivateKey, error) {
	secret, err := v.Secret(ctx, keyRef)
	if err != nil {
		return nil, err
	}
	return SignerFromSecret(secret)
}

// SignerFromSecret converts raw signing material into an ECDSA private key.
func SignerFromSecret(secret string) (*ecdsa.PrivateKey, error) {
	secret = strings.TrimSpace(secret)

	if keyHex, ok := asHexKey(secret); ok {
		pk, err := gethcrypto.HexToECDSA(keyHex)
		if err != nil {
			return nil, fmt.Errorf("vault: parse private key: %w", err)
		}
		return pk, nil
	}

	wallet, err := hdwallet.NewFromMnemonic(secret)
	if err != nil {
		return nil, fmt.Errorf("vault: parse mnemonic: %w", err)
	}
	path := hdwallet.MustParseDerivationPath(accountZeroPath)
	account, err := wallet.Derive(path, false)
	if err != nil {
		return nil, fmt.Errorf("vault: derive account #0: %w", err)
	}
	pk, err := wallet.PrivateKey(account)
	if err != nil {
		return nil, fmt.Errorf("vault: private key for account #0: %w", err)
	}
	return pk, nil
}

// asHexKey reports whether the secret is a 32-byte hex private key, with or
// without 0x prefix, and returns it normalized.
func asHexKey(secret string) (string, bool) {
	k := strings.TrimPrefix(secret, "0x")
	if len(k) != 64 {
		return "", false
	}
	if _, err := hex.DecodeString(k); err != nil {
		return "", false
	}
	return k, true
}
