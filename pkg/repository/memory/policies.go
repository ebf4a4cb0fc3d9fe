package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/ockam/ockam/pkg/abac"
	"github.com/ockam/ockam/pkg/ockamerror"
)

type policyKey struct {
	resource string
	action   string
}

// PoliciesRepository is an in-memory repository.PoliciesRepository.
type PoliciesRepository struct {
	mu   sync.RWMutex
	data map[policyKey]*abac.Expression
}

func NewPoliciesRepository() *PoliciesRepository {
	return &PoliciesRepository{data: make(map[policyKey]*abac.Expression)}
}

func (r *PoliciesRepository) Put(_ context.Context, resource, action string, expression *abac.Expression) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.data[policyKey{resource, action}] = expression
	return nil
}

func (r *PoliciesRepository) Get(_ context.Context, resource, action string) (*abac.Expression, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.data[policyKey{resource, action}]
	if !ok {
		return nil, fmt.Errorf("repository: %w: no policy for %s/%s", ockamerror.ErrNotFound, resource, action)
	}
	return e, nil
}

func (r *PoliciesRepository) ListByResource(_ context.Context, resource string) (map[string]*abac.Expression, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]*abac.Expression)
	for key, expr := range r.data {
		if key.resource == resource {
			out[key.action] = expr
		}
	}
	return out, nil
}

func (r *PoliciesRepository) Delete(_ context.Context, resource, action string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.data, policyKey{resource, action})
	return nil
}
