package node_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ockam/ockam/pkg/node"
)

func TestFlowControlTableProducers(t *testing.T) {
	table := node.NewFlowControlTable()
	assert.False(t, table.IsProducer("id1", "addr"))

	table.AddProducer("id1", "addr")
	assert.True(t, table.IsProducer("id1", "addr"))

	table.RemoveProducer("id1", "addr")
	assert.False(t, table.IsProducer("id1", "addr"))
}

func TestFlowControlTableConsumers(t *testing.T) {
	table := node.NewFlowControlTable()
	table.AddConsumer("id1", "consumer.a")
	assert.True(t, table.IsConsumer("id1", "consumer.a"))
	assert.False(t, table.IsConsumer("id1", "consumer.b"))

	table.RemoveConsumer("id1", "consumer.a")
	assert.False(t, table.IsConsumer("id1", "consumer.a"))
}

func TestFlowControlTableScopesByID(t *testing.T) {
	table := node.NewFlowControlTable()
	table.AddProducer("id1", "addr")
	assert.False(t, table.IsProducer("id2", "addr"))
}
