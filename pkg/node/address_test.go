package node_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ockam/ockam/pkg/node"
)

func TestRouteNextAndPrepend(t *testing.T) {
	r := node.Route{"a", "b", "c"}

	hop, rest, ok := r.Next()
	assert.True(t, ok)
	assert.Equal(t, node.Address("a"), hop)
	assert.Equal(t, node.Route{"b", "c"}, rest)

	ret := node.Route{"x"}.Prepend(hop)
	assert.Equal(t, node.Route{"a", "x"}, ret)
}

func TestRouteNextEmpty(t *testing.T) {
	_, _, ok := node.Route{}.Next()
	assert.False(t, ok)
}

func TestAddressSetContains(t *testing.T) {
	set := node.AddressSet{"one", "two"}
	assert.True(t, set.Contains("one"))
	assert.False(t, set.Contains("three"))
}

func TestGenerateAddressIsUniqueAndPrefixed(t *testing.T) {
	a := node.GenerateAddress("decryptor")
	b := node.GenerateAddress("decryptor")
	assert.NotEqual(t, a, b)
	assert.Contains(t, a.String(), "decryptor.")
}
