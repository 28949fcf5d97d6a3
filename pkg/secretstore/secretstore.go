// Package secretstore keeps venue credentials in an encrypted Badger database
// so they stay out of config files.
package secretstore

import (
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/pkg/errors"

	"github.com/betbot/apexwallet/pkg/config"
)

// Credential field names stored under account/<id>/<field>.
const (
	FieldAPIKey     = "api_key"
	FieldSecret     = "secret"
	FieldSignature  = "signature"
	FieldNonce      = "nonce"
	FieldTOTPSecret = "totp_secret"
)

// AccountFields lists every credential field an account can carry.
var AccountFields = []string{FieldAPIKey, FieldSecret, FieldSignature, FieldNonce, FieldTOTPSecret}

var ErrNotOpen = errors.New("secretstore: not opened")

// Store is a small encrypted-at-rest KV wrapper (Badger).
// Encryption is provided by Badger options, not by this wrapper.
type Store struct {
	db *badger.DB
}

type OpenOptions struct {
	Path          string
	EncryptionKey []byte // 32 bytes; if nil, DB is opened without encryption
	ReadOnly      bool
}

func Open(opts OpenOptions) (*Store, error) {
	if strings.TrimSpace(opts.Path) == "" {
		return nil, errors.New("secretstore: path is required")
	}
	bopts := badger.DefaultOptions(opts.Path).
		WithLogger(nil).
		WithReadOnly(opts.ReadOnly)
	if len(opts.EncryptionKey) > 0 {
		// Badger requires an index cache for encrypted workloads.
		bopts = bopts.
			WithEncryptionKey(opts.EncryptionKey).
			WithIndexCacheSize(100 << 20)
	}
	db, err := badger.Open(bopts)
	if err != nil {
		return nil, errors.Wrapf(err, "secretstore: open %s", opts.Path)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// GetString reads key. The bool is false when the key does not exist.
func (s *Store) GetString(key string) (string, bool, error) {
	if s == nil || s.db == nil {
		return "", false, ErrNotOpen
	}
	k := []byte(strings.TrimSpace(key))
	if len(k) == 0 {
		return "", false, errors.New("secretstore: key is empty")
	}
	var (
		out   string
		found bool
	)
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(k)
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return nil
			}
			return err
		}
		found = true
		return item.Value(func(val []byte) error {
			out = string(val)
			return nil
		})
	})
	if err != nil {
		return "", false, err
	}
	return out, found, nil
}

func (s *Store) SetString(key string, val string) error {
	if s == nil || s.db == nil {
		return ErrNotOpen
	}
	k := []byte(strings.TrimSpace(key))
	if len(k) == 0 {
		return errors.New("secretstore: key is empty")
	}
	v := []byte(val)
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(k, v)
	})
}

// AccountKey is the badger key of one credential field of an account.
func AccountKey(accountID, field string) string {
	return "account/" + strings.TrimSpace(accountID) + "/" + field
}

// SetAccount stores the non-empty credential fields of accountID.
func (s *Store) SetAccount(accountID string, fields map[string]string) (int, error) {
	if s == nil || s.db == nil {
		return 0, ErrNotOpen
	}
	written := 0
	err := s.db.Update(func(txn *badger.Txn) error {
		for field, v := range fields {
			if v == "" {
				continue
			}
			if err := txn.Set([]byte(AccountKey(accountID, field)), []byte(v)); err != nil {
				return err
			}
			written++
		}
		return nil
	})
	if err != nil {
		return 0, errors.Wrapf(err, "secretstore: store account %s", accountID)
	}
	return written, nil
}

// Account returns every stored credential field of accountID.
func (s *Store) Account(accountID string) (map[string]string, error) {
	if s == nil || s.db == nil {
		return nil, ErrNotOpen
	}
	prefix := []byte(AccountKey(accountID, ""))
	out := map[string]string{}
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{Prefix: prefix, PrefetchValues: true, PrefetchSize: 8})
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			field := strings.TrimPrefix(string(item.Key()), string(prefix))
			if err := item.Value(func(val []byte) error {
				out[field] = string(val)
				return nil
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrapf(err, "secretstore: read account %s", accountID)
	}
	return out, nil
}

// FillAccount copies stored credentials into the empty fields of a. Values
// already set in the config file win.
func (s *Store) FillAccount(a *config.AccountConfig) error {
	stored, err := s.Account(a.ID)
	if err != nil {
		return err
	}
	for field, dst := range map[string]*string{
		FieldAPIKey:     &a.APIKey,
		FieldSecret:     &a.Secret,
		FieldSignature:  &a.Signature,
		FieldNonce:      &a.Nonce,
		FieldTOTPSecret: &a.TOTPSecret,
	} {
		if *dst == "" {
			*dst = stored[field]
		}
	}
	return nil
}

// ParseKey expects 32 bytes (base64 or hex). Returns nil if input is empty.
func ParseKey(raw string) ([]byte, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	// Prefer hex so a 64-char hex key is never read as base64.
	rawHex := strings.TrimPrefix(raw, "0x")
	if b, err := hex.DecodeString(rawHex); err == nil {
		if len(b) == 32 {
			return b, nil
		}
		return nil, fmt.Errorf("decoded key length must be 32, got %d", len(b))
	}
	if b, err := base64.StdEncoding.DecodeString(raw); err == nil {
		if len(b) != 32 {
			return nil, fmt.Errorf("decoded key length must be 32, got %d", len(b))
		}
		return b, nil
	}
	return nil, errors.New("key must be base64(32 bytes) or hex(32 bytes)")
}
