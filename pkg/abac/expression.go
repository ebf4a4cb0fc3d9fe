package abac

// ExprKind tags which conditional form an Expression holds. Primitive
// conditionals: equality, less-than, greater-than, negation,
// conjunction, disjunction, constants.
type ExprKind int

const (
	ExprConst ExprKind = iota
	ExprIdentifier // reads an attribute by name from the evaluation environment
	ExprEq
	ExprLt
	ExprGt
	ExprNot
	ExprAnd
	ExprOr
)

// Expression is a node in a policy's predicate tree. Leaves are
// ExprConst (a literal Value) or ExprIdentifier (an attribute name);
// internal nodes combine one or two child expressions.
type Expression struct {
	Kind     ExprKind      `cbor:"1,keyasint"`
	Const    Value         `cbor:"2,keyasint,omitempty"`
	Ident    string        `cbor:"3,keyasint,omitempty"`
	Children []*Expression `cbor:"4,keyasint,omitempty"`
}

func Const(v Value) *Expression { return &Expression{Kind: ExprConst, Const: v} }
func Ident(name string) *Expression { return &Expression{Kind: ExprIdentifier, Ident: name} }

func Eq(a, b *Expression) *Expression  { return &Expression{Kind: ExprEq, Children: []*Expression{a, b}} }
func Lt(a, b *Expression) *Expression  { return &Expression{Kind: ExprLt, Children: []*Expression{a, b}} }
func Gt(a, b *Expression) *Expression  { return &Expression{Kind: ExprGt, Children: []*Expression{a, b}} }
func Not(a *Expression) *Expression    { return &Expression{Kind: ExprNot, Children: []*Expression{a}} }
func And(a, b *Expression) *Expression { return &Expression{Kind: ExprAnd, Children: []*Expression{a, b}} }
func Or(a, b *Expression) *Expression  { return &Expression{Kind: ExprOr, Children: []*Expression{a, b}} }

// Policy pairs the resource/action key with its predicate expression;
// policies are stored keyed by (resource-type-or-name, action).
type Policy struct {
	Resource   string
	Action     string
	Expression *Expression
}
