package metrics

import (
	"time"

	"github.com/ockam/ockam/pkg/node"
	"github.com/ockam/ockam/pkg/vault"
)

// Collector periodically samples gauge-shaped state off a running node
// that nothing else touches synchronously — the worker count (the
// active-channel gauge is not sampled here) — the same
// ticking-loop-plus-stop-channel shape as any
// other background poller in this codebase. It also drives the "vault"
// and "node" health components: rather than an embedding application
// self-reporting a static "healthy" flag once at startup, each tick
// re-probes the vault and node directly, so /ready reflects whether
// they are actually still usable.
type Collector struct {
	node     *node.Node
	vault    vault.Vault
	interval time.Duration
	stopCh   chan struct{}
}

// NewCollector creates a collector for nd and v, sampling every 15
// seconds unless interval overrides that.
func NewCollector(nd *node.Node, v vault.Vault, interval time.Duration) *Collector {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &Collector{node: nd, vault: v, interval: interval, stopCh: make(chan struct{})}
}

// Start begins sampling in a background goroutine.
func (c *Collector) Start() {
	ticker := time.NewTicker(c.interval)
	go func() {
		c.collect()
		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop ends sampling.
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	workers := c.node.WorkerCount()
	ActiveWorkers.Set(float64(workers))

	if workers > 0 {
		RegisterComponent("node", true, "")
	} else {
		RegisterComponent("node", false, "no workers registered")
	}

	if c.vault != nil {
		if healthy, message := probeVault(c.vault); healthy {
			RegisterComponent("vault", true, "")
		} else {
			RegisterComponent("vault", false, message)
		}
	}
}

// probeVault exercises a vault round trip (mint an AEAD key, then
// release it) instead of trusting that a vault reference being non-nil
// means the vault can still do anything useful — a vault whose entropy
// source has failed, for instance, still has a live Go value but can no
// longer generate keys.
func probeVault(v vault.Vault) (bool, string) {
	h, err := v.GenerateAEADKey()
	if err != nil {
		return false, "key generation failing: " + err.Error()
	}
	if err := v.Delete(h); err != nil {
		return false, "key release failing: " + err.Error()
	}
	return true, ""
}
