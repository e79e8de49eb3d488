// Package credstore keeps the RSA keys used to authenticate to headsets in a
// bbolt file, keyed by label.
package credstore

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/binary"
	"encoding/pem"
	"errors"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"
)

// KeyBits is the size of generated keys. Devices only accept 2048-bit keys.
const KeyBits = 2048

const bucketKeys = "adb_keys" // key: label -> PKCS#1 DER

// ErrEmptyLabel is returned for a blank label.
var ErrEmptyLabel = errors.New("credential label is required")

// Store persists private keys.
type Store struct {
	db *bbolt.DB
}

// Open opens or creates the store at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create credential dir: %w", err)
	}

	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open credential store: %w", err)
	}

	if err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucketKeys))
		return err
	}); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init credential store: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Key returns the key stored under label, generating and saving one on
// first use.
func (s *Store) Key(label string) (*rsa.PrivateKey, error) {
	if label == "" {
		return nil, ErrEmptyLabel
	}

	key, err := s.load(label)
	if err != nil || key != nil {
		return key, err
	}

	key, err = rsa.GenerateKey(rand.Reader, KeyBits)
	if err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}

	// Another process may have stored a key in the meantime; keep theirs.
	var stored []byte
	err = s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(bucketKeys))
		if existing := b.Get([]byte(label)); existing != nil {
			stored = append([]byte(nil), existing...)
			return nil
		}
		return b.Put([]byte(label), x509.MarshalPKCS1PrivateKey(key))
	})
	if err != nil {
		return nil, fmt.Errorf("save key: %w", err)
	}
	if stored != nil {
		return x509.ParsePKCS1PrivateKey(stored)
	}
	return key, nil
}

// Labels lists the stored labels.
func (s *Store) Labels() ([]string, error) {
	var labels []string
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(bucketKeys)).ForEach(func(k, _ []byte) error {
			labels = append(labels, string(k))
			return nil
		})
	})
	return labels, err
}

// Delete removes the key stored under label.
func (s *Store) Delete(label string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(bucketKeys)).Delete([]byte(label))
	})
}

func (s *Store) load(label string) (*rsa.PrivateKey, error) {
	var der []byte
	if err := s.db.View(func(tx *bbolt.Tx) error {
		if v := tx.Bucket([]byte(bucketKeys)).Get([]byte(label)); v != nil {
			der = append([]byte(nil), v...)
		}
		return nil
	}); err != nil {
		return nil, err
	}
	if der == nil {
		return nil, nil
	}
	key, err := x509.ParsePKCS1PrivateKey(der)
	if err != nil {
		return nil, fmt.Errorf("parse stored key %q: %w", label, err)
	}
	return key, nil
}

// Credentials binds the store to one label.
type Credentials struct {
	store *Store
	label string
}

// Credentials returns the credentials for label.
func (s *Store) Credentials(label string) *Credentials {
	return &Credentials{store: s, label: label}
}

// Label returns the label the key is stored under.
func (c *Credentials) Label() string {
	return c.label
}

// PrivateKey returns the label's key, creating it on first use.
func (c *Credentials) PrivateKey() (*rsa.PrivateKey, error) {
	return c.store.Key(c.label)
}

// WriteVendorKey writes key as an adb vendor key pair in dir and returns
// the private key path. adb picks the pair up through ADB_VENDOR_KEYS.
func WriteVendorKey(dir, label string, key *rsa.PrivateKey) (string, error) {
	der, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return "", fmt.Errorf("marshal private key: %w", err)
	}
	pub, err := EncodePublicKey(&key.PublicKey, label)
	if err != nil {
		return "", err
	}

	path := filepath.Join(dir, "adbkey")
	if err := os.WriteFile(path, pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der}), 0o600); err != nil {
		return "", fmt.Errorf("write private key: %w", err)
	}
	if err := os.WriteFile(path+".pub", []byte(pub), 0o644); err != nil {
		return "", fmt.Errorf("write public key: %w", err)
	}
	return path, nil
}

// Android RSA public key layout: word count, -1/n[0] mod 2^32, modulus and
// R^2 mod n as little-endian 32-bit words, then the exponent.
const modulusWords = KeyBits / 32

// EncodePublicKey formats pub the way adb stores public keys:
// base64 of the Android key struct, a space and the label.
func EncodePublicKey(pub *rsa.PublicKey, label string) (string, error) {
	if pub.N.BitLen() != KeyBits {
		return "", fmt.Errorf("key must be %d bits, got %d", KeyBits, pub.N.BitLen())
	}

	word := new(big.Int).Lsh(big.NewInt(1), 32)
	n0 := new(big.Int).Mod(pub.N, word)
	n0inv := new(big.Int).ModInverse(n0, word)
	n0inv.Sub(word, n0inv)

	rr := new(big.Int).Lsh(big.NewInt(1), KeyBits*2)
	rr.Mod(rr, pub.N)

	buf := make([]byte, 0, 4*(3+2*modulusWords))
	buf = binary.LittleEndian.AppendUint32(buf, modulusWords)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(n0inv.Uint64()))
	buf = append(buf, littleEndianWords(pub.N)...)
	buf = append(buf, littleEndianWords(rr)...)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(pub.E))

	return base64.StdEncoding.EncodeToString(buf) + " " + label, nil
}

func littleEndianWords(x *big.Int) []byte {
	be := x.FillBytes(make([]byte, KeyBits/8))
	le := make([]byte, len(be))
	for i := range be {
		le[i] = be[len(be)-1-i]
	}
	return le
}
