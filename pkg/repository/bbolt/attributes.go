package bbolt

import (
	"context"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/ockam/ockam/pkg/identity"
	"github.com/ockam/ockam/pkg/ockamerror"
	"github.com/ockam/ockam/pkg/repository"
	"github.com/ockam/ockam/pkg/wireformat"
)

// IdentityAttributesRepository is a bbolt-backed
// repository.IdentityAttributesRepository.
type IdentityAttributesRepository struct {
	db *bolt.DB
}

func attributesBucketKey(nodeName string, subject identity.Identifier) []byte {
	return []byte(fmt.Sprintf("%s/%s", nodeName, subject))
}

// Put writes entry unless an existing entry for the same subject was
// added more recently: two concurrent successful verifications for the
// same subject race to call Put, and the one with the older AddedAt
// must never clobber the one that actually arrived last. The
// read-compare-write happens inside one db.Update transaction so the
// comparison and the write are atomic with respect to any other Put.
func (r *IdentityAttributesRepository) Put(_ context.Context, nodeName string, subject identity.Identifier, entry *repository.AttributesEntry) error {
	data, err := wireformat.Marshal(entry)
	if err != nil {
		return fmt.Errorf("repository/bbolt: encoding attributes entry: %w", err)
	}
	return r.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketAttributes)
		key := attributesBucketKey(nodeName, subject)
		if existing := b.Get(key); existing != nil {
			var current repository.AttributesEntry
			if err := wireformat.Unmarshal(existing, &current); err != nil {
				return fmt.Errorf("repository/bbolt: decoding existing attributes entry: %w", err)
			}
			if current.AddedAt.After(entry.AddedAt) {
				return nil
			}
		}
		return b.Put(key, data)
	})
}

func (r *IdentityAttributesRepository) Get(_ context.Context, nodeName string, subject identity.Identifier) (*repository.AttributesEntry, error) {
	var entry repository.AttributesEntry
	var expired bool

	err := r.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketAttributes)
		key := attributesBucketKey(nodeName, subject)
		data := b.Get(key)
		if data == nil {
			return fmt.Errorf("repository: %w: no attributes for %s at %s", ockamerror.ErrNotFound, subject, nodeName)
		}
		if err := wireformat.Unmarshal(data, &entry); err != nil {
			return err
		}
		if entry.Expired(time.Now()) {
			expired = true
			return b.Delete(key)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if expired {
		return nil, nil
	}
	return &entry, nil
}

func (r *IdentityAttributesRepository) List(_ context.Context, nodeName string) ([]repository.SubjectEntry, error) {
	var out []repository.SubjectEntry
	var expiredKeys [][]byte
	prefix := []byte(nodeName + "/")
	now := time.Now()

	err := r.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketAttributes)
		c := b.Cursor()
		for k, v := c.Seek(prefix); k != nil && hasPrefix(k, prefix); k, v = c.Next() {
			var entry repository.AttributesEntry
			if err := wireformat.Unmarshal(v, &entry); err != nil {
				return err
			}
			if entry.Expired(now) {
				expiredKeys = append(expiredKeys, append([]byte{}, k...))
				continue
			}
			subjectHex := string(k[len(prefix):])
			subject, err := identity.ParseIdentifier(subjectHex)
			if err != nil {
				return fmt.Errorf("repository/bbolt: parsing stored subject key: %w", err)
			}
			out = append(out, repository.SubjectEntry{Subject: subject, Entry: &entry})
		}
		for _, k := range expiredKeys {
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
	return out, err
}

func (r *IdentityAttributesRepository) DeleteExpired(_ context.Context, now time.Time) error {
	return r.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketAttributes)
		c := b.Cursor()
		var expiredKeys [][]byte
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var entry repository.AttributesEntry
			if err := wireformat.Unmarshal(v, &entry); err != nil {
				return err
			}
			if entry.Expired(now) {
				expiredKeys = append(expiredKeys, append([]byte{}, k...))
			}
		}
		for _, k := range expiredKeys {
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
}

func hasPrefix(b, prefix []byte) bool {
	if len(b) < len(prefix) {
		return false
	}
	for i := range prefix {
		if b[i] != prefix[i] {
			return false
		}
	}
	return true
}
