/*
Package abac implements the policy predicate language and evaluator
behind the Authorize check. It stands alone: the node substrate's
AbacAccessControl compares one attribute value directly and does not
evaluate these expressions.

Policies are small expression trees built with the Const/Ident/Eq/Lt/Gt/
Not/And/Or constructors, stored keyed by (resource, action), and
evaluated against an Environment built from a subject's accepted
attribute map. Evaluation never panics on a missing attribute or a
kind mismatch — it resolves to false, so an incomplete or wrong-shaped
policy fails closed rather than open.
*/
package abac
