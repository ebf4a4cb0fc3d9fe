package abac

// PolicySource resolves the expression guarding a (resource, action)
// pair. Satisfied by a thin adapter over repository.PoliciesRepository
// (whose Get takes a context and returns an error), so abac never
// imports pkg/repository (which imports abac for Expression) and the
// two packages don't form an import cycle.
type PolicySource interface {
	Get(resource, action string) (*Expression, bool)
}

// AttributeSource resolves a subject's accepted attribute map.
// Satisfied by a thin adapter over repository.IdentityAttributesRepository.
type AttributeSource interface {
	Attributes(subject string) (map[string][]byte, bool)
}

// Authorize performs the ABAC check: look up the
// policy expression for (resource, action), fetch the peer's attribute
// entry, evaluate the expression, and return a boolean. Unknown
// resource, unknown action, or missing attributes default to deny.
func Authorize(policies PolicySource, attrs AttributeSource, subject, resource, action string) bool {
	expr, ok := policies.Get(resource, action)
	if !ok {
		return false
	}
	attributes, ok := attrs.Attributes(subject)
	if !ok {
		return false
	}
	env := EnvironmentFromAttributes(attributes)
	return Eval(expr, env)
}
