package bbolt

import (
	"context"
	"fmt"

	bolt "go.etcd.io/bbolt"

	"github.com/ockam/ockam/pkg/abac"
	"github.com/ockam/ockam/pkg/ockamerror"
	"github.com/ockam/ockam/pkg/wireformat"
)

// PoliciesRepository is a bbolt-backed repository.PoliciesRepository.
type PoliciesRepository struct {
	db *bolt.DB
}

func policyBucketKey(resource, action string) []byte {
	return []byte(fmt.Sprintf("%s/%s", resource, action))
}

func (r *PoliciesRepository) Put(_ context.Context, resource, action string, expression *abac.Expression) error {
	data, err := wireformat.Marshal(expression)
	if err != nil {
		return fmt.Errorf("repository/bbolt: encoding policy expression: %w", err)
	}
	return r.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketPolicies).Put(policyBucketKey(resource, action), data)
	})
}

func (r *PoliciesRepository) Get(_ context.Context, resource, action string) (*abac.Expression, error) {
	var expr abac.Expression
	err := r.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketPolicies).Get(policyBucketKey(resource, action))
		if data == nil {
			return fmt.Errorf("repository: %w: no policy for %s/%s", ockamerror.ErrNotFound, resource, action)
		}
		return wireformat.Unmarshal(data, &expr)
	})
	if err != nil {
		return nil, err
	}
	return &expr, nil
}

func (r *PoliciesRepository) ListByResource(_ context.Context, resource string) (map[string]*abac.Expression, error) {
	out := make(map[string]*abac.Expression)
	prefix := []byte(resource + "/")

	err := r.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketPolicies).Cursor()
		for k, v := c.Seek(prefix); k != nil && hasPrefix(k, prefix); k, v = c.Next() {
			var expr abac.Expression
			if err := wireformat.Unmarshal(v, &expr); err != nil {
				return err
			}
			action := string(k[len(prefix):])
			out[action] = &expr
		}
		return nil
	})
	return out, err
}

func (r *PoliciesRepository) Delete(_ context.Context, resource, action string) error {
	return r.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketPolicies).Delete(policyBucketKey(resource, action))
	})
}
