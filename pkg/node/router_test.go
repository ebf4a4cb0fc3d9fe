package node_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ockam/ockam/pkg/node"
	"github.com/ockam/ockam/pkg/ockamerror"
)

func TestRouterRouteUnknownAddress(t *testing.T) {
	r := node.NewRouter()
	msg := node.LocalMessage{Onward: node.Route{"nowhere"}}
	err := r.Route(context.Background(), msg)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ockamerror.ErrUnknownRoute))
}

func TestRouterRouteEmptyOnward(t *testing.T) {
	r := node.NewRouter()
	err := r.Route(context.Background(), node.LocalMessage{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ockamerror.ErrUnknownRoute))
}

func TestRouterForwardsAndPrependsReturnRoute(t *testing.T) {
	r := node.NewRouter()
	mb := node.NewMailbox("dest")
	mb.SetIncomingAccessControl(node.AllowAll)
	require.NoError(t, r.Register("dest", mb))

	err := r.Route(context.Background(), node.LocalMessage{
		Payload: []byte("hi"),
		Onward:  node.Route{"dest", "beyond"},
		Return:  node.Route{"origin"},
	})
	require.NoError(t, err)

	got, ok := mb.Receive(context.Background())
	require.True(t, ok)
	assert.Equal(t, node.Route{"beyond"}, got.Onward)
	assert.Equal(t, node.Route{"dest", "origin"}, got.Return)
}

func TestRouterDropsOnIncomingAccessControlDenial(t *testing.T) {
	r := node.NewRouter()
	mb := node.NewMailbox("dest") // default DenyAll
	require.NoError(t, r.Register("dest", mb))

	err := r.Route(context.Background(), node.LocalMessage{Onward: node.Route{"dest"}})
	assert.NoError(t, err) // silent drop, not an error to the sender

	ctx, cancel := context.WithTimeout(context.Background(), 0)
	defer cancel()
	_, ok := mb.Receive(ctx)
	assert.False(t, ok)
}

func TestRouterDoubleRegisterFails(t *testing.T) {
	r := node.NewRouter()
	mb := node.NewMailbox("dup")
	require.NoError(t, r.Register("dup", mb))
	assert.Error(t, r.Register("dup", mb))
}
