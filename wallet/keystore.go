package wallet

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"golang.org/x/crypto/pbkdf2"

	"github.com/okarvik/reservex/crypto"
)

const (
	keystoreSaltSize = 16
	keystoreKDFIters = 210_000
	keystoreKeySize  = 32
)

// ErrWrongPassword covers both a bad password and a corrupted keystore;
// AES-GCM cannot tell the two apart.
var ErrWrongPassword = errors.New("wrong password or corrupted keystore")

// keystoreFile is the on-disk format: the private key sealed under a
// password-derived AES-GCM key, everything hex-encoded.
type keystoreFile struct {
	PubKey    string `json:"pub_key"`
	KDFSalt   string `json:"kdf_salt"`
	GCMNonce  string `json:"gcm_nonce"`
	SealedKey string `json:"sealed_key"`
}

// SaveKey seals priv under password and writes the keystore to path.
func SaveKey(path, password string, priv crypto.PrivateKey) error {
	salt := make([]byte, keystoreSaltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return fmt.Errorf("generate salt: %w", err)
	}
	gcm, err := sealingCipher(password, salt)
	if err != nil {
		return err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return fmt.Errorf("generate nonce: %w", err)
	}

	ks := keystoreFile{
		PubKey:    priv.Public().Hex(),
		KDFSalt:   hex.EncodeToString(salt),
		GCMNonce:  hex.EncodeToString(nonce),
		SealedKey: hex.EncodeToString(gcm.Seal(nil, nonce, priv, nil)),
	}
	data, err := json.MarshalIndent(ks, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("write keystore: %w", err)
	}
	return nil
}

// LoadKey reads the keystore at path and unseals it with password.
func LoadKey(path, password string) (crypto.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read keystore: %w", err)
	}
	var ks keystoreFile
	if err := json.Unmarshal(data, &ks); err != nil {
		return nil, fmt.Errorf("parse keystore: %w", err)
	}

	fields := [3][]byte{}
	for i, s := range []string{ks.KDFSalt, ks.GCMNonce, ks.SealedKey} {
		if fields[i], err = hex.DecodeString(s); err != nil {
			return nil, fmt.Errorf("malformed keystore field: %w", err)
		}
	}
	salt, nonce, sealed := fields[0], fields[1], fields[2]

	gcm, err := sealingCipher(password, salt)
	if err != nil {
		return nil, err
	}
	privBytes, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, ErrWrongPassword
	}
	return crypto.PrivateKey(privBytes), nil
}

// sealingCipher derives the AES key from password and salt and returns
// the GCM wrapper both SaveKey and LoadKey seal through.
func sealingCipher(password string, salt []byte) (cipher.AEAD, error) {
	key := pbkdf2.Key([]byte(password), salt, keystoreKDFIters, keystoreKeySize, sha256.New)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
