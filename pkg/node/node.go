package node

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/ockam/ockam/pkg/ockamlog"
)

// entry tracks everything a running worker or processor needs torn
// down by address and by cluster.
type entry struct {
	addresses AddressSet
	cluster   string
	flowControlID string
	cancel    context.CancelFunc
	done      chan struct{}
	shutdown  func(context.Context) error
}

// Node owns a Router, a FlowControlTable, and the running
// workers/processors registered against them. It is the embedding
// application's single handle to the messaging substrate.
type Node struct {
	router      *Router
	flowControl *FlowControlTable

	mu           sync.Mutex
	entries      map[Address]*entry
	clusterOrder []string
	clusters     map[string][]*entry

	log zerolog.Logger
}

// NewNode creates a node with a fresh router and flow-control table.
func NewNode() *Node {
	return &Node{
		router:      NewRouter(),
		flowControl: NewFlowControlTable(),
		entries:     make(map[Address]*entry),
		clusters:    make(map[string][]*entry),
		log:         ockamlog.WithComponent("node"),
	}
}

// Router returns the node's address table, for callers (like the
// secure-channel and trust packages) that construct their own
// mailboxes directly rather than through StartWorker.
func (n *Node) Router() *Router { return n.router }

// FlowControl returns the node's producer/consumer table.
func (n *Node) FlowControl() *FlowControlTable { return n.flowControl }

// WorkerCount returns the number of distinct workers and processors
// currently registered, counting a multi-address worker once regardless
// of how many addresses it owns.
func (n *Node) WorkerCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	seen := make(map[*entry]struct{}, len(n.entries))
	for _, e := range n.entries {
		seen[e] = struct{}{}
	}
	return len(seen)
}

// StartOptions configures a worker or processor's registration.
type StartOptions struct {
	// Cluster labels the worker for shutdown ordering.
	// Workers with no cluster declare no dependency on anything and
	// are torn down first, ahead of every labeled cluster.
	Cluster string
	// FlowControlID, if set, registers every address in the set as a
	// producer for this id.
	FlowControlID string
	// IncomingAccessControl and OutgoingAccessControl configure every
	// mailbox in the set; both default to DenyAll if left nil.
	IncomingAccessControl AccessControl
	OutgoingAccessControl AccessControl
}

// StartWorker registers w under addrs and runs its message loop in a
// new goroutine. It returns only after every address in addrs is live
// in the router and Initialize has returned.
func (n *Node) StartWorker(ctx context.Context, addrs AddressSet, w Worker, opts StartOptions) error {
	if len(addrs) == 0 {
		return fmt.Errorf("node: start_worker requires at least one address")
	}

	shared, mailboxes := n.buildMailboxes(addrs, opts)
	if err := n.registerAll(addrs, mailboxes, opts); err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	ctrl := &Context{node: n, addresses: addrs, inbox: shared, mailbox: mailboxes[0]}
	if err := w.Initialize(ctx, ctrl); err != nil {
		cancel()
		n.unregisterAll(addrs, opts)
		close(done)
		return fmt.Errorf("node: initializing worker at %s: %w", addrs, err)
	}

	go func() {
		defer close(done)
		for {
			select {
			case msg := <-shared:
				if err := w.HandleMessage(runCtx, msg); err != nil {
					n.log.Warn().Err(err).Str("address", addrs.String()).Msg("worker handle_message returned an error")
				}
			case <-runCtx.Done():
				return
			}
		}
	}()

	n.addEntry(addrs, opts.Cluster, opts.FlowControlID, cancel, done, w.Shutdown)
	return nil
}

// StartProcessor registers p under addrs and runs process(ctx) in a
// loop in a new goroutine, stopping when it returns false.
func (n *Node) StartProcessor(ctx context.Context, addrs AddressSet, p Processor, opts StartOptions) error {
	if len(addrs) == 0 {
		return fmt.Errorf("node: start_worker requires at least one address")
	}

	shared, mailboxes := n.buildMailboxes(addrs, opts)
	if err := n.registerAll(addrs, mailboxes, opts); err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	ctrl := &Context{node: n, addresses: addrs, inbox: shared, mailbox: mailboxes[0]}
	if err := p.Initialize(ctx, ctrl); err != nil {
		cancel()
		n.unregisterAll(addrs, opts)
		close(done)
		return fmt.Errorf("node: initializing processor at %s: %w", addrs, err)
	}

	go func() {
		defer close(done)
		for {
			select {
			case <-runCtx.Done():
				return
			default:
			}
			if !p.Process(runCtx) {
				return
			}
		}
	}()

	n.addEntry(addrs, opts.Cluster, opts.FlowControlID, cancel, done, p.Shutdown)
	return nil
}

// StopWorker stops every mailbox in the address set that addr belongs
// to, runs its shutdown hook, and unregisters it from the router —
// only then returning.
func (n *Node) StopWorker(ctx context.Context, addr Address) error {
	n.mu.Lock()
	e, ok := n.entries[addr]
	n.mu.Unlock()
	if !ok {
		return fmt.Errorf("node: no worker registered at %q", addr)
	}
	return n.stopEntry(ctx, e)
}

func (n *Node) stopEntry(ctx context.Context, e *entry) error {
	e.cancel()
	<-e.done

	err := e.shutdown(ctx)

	n.mu.Lock()
	for _, addr := range e.addresses {
		delete(n.entries, addr)
		n.router.Unregister(addr)
		if e.flowControlID != "" {
			n.flowControl.RemoveProducer(e.flowControlID, addr)
		}
	}
	n.mu.Unlock()

	return err
}

// Shutdown tears down every registered worker and processor. Unlabeled
// entries go first, since workers with no declared cluster carry no
// ordering guarantee. Labeled clusters then stop in the
// reverse order they were first declared, so e.g. an application
// cluster declared after its transport drains before that transport is
// dismantled.
func (n *Node) Shutdown(ctx context.Context) error {
	n.mu.Lock()
	order := append([]string(nil), n.clusterOrder...)
	unlabeled := append([]*entry(nil), n.clusters[""]...)
	n.mu.Unlock()

	var firstErr error
	stop := func(e *entry) {
		if err := n.stopEntry(ctx, e); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	for _, e := range unlabeled {
		stop(e)
	}

	for i := len(order) - 1; i >= 0; i-- {
		cluster := order[i]
		if cluster == "" {
			continue
		}
		n.mu.Lock()
		entries := append([]*entry(nil), n.clusters[cluster]...)
		n.mu.Unlock()
		for _, e := range entries {
			stop(e)
		}
	}

	return firstErr
}

// buildMailboxes creates one mailbox per address, all sharing a single
// queue so the whole set delivers to at most one in-flight handler at a
// time.
func (n *Node) buildMailboxes(addrs AddressSet, opts StartOptions) (chan LocalMessage, []*Mailbox) {
	shared := make(chan LocalMessage, MailboxCapacity)
	mailboxes := make([]*Mailbox, len(addrs))
	for i, addr := range addrs {
		mb := newMailbox(addr, shared)
		mb.SetIncomingAccessControl(firstNonNil(opts.IncomingAccessControl, DenyAll))
		mb.SetOutgoingAccessControl(firstNonNil(opts.OutgoingAccessControl, DenyAll))
		mailboxes[i] = mb
	}
	return shared, mailboxes
}

func (n *Node) registerAll(addrs AddressSet, mailboxes []*Mailbox, opts StartOptions) error {
	registered := make([]Address, 0, len(addrs))
	for i, addr := range addrs {
		if err := n.router.Register(addr, mailboxes[i]); err != nil {
			for _, a := range registered {
				n.router.Unregister(a)
			}
			return err
		}
		registered = append(registered, addr)
		if opts.FlowControlID != "" {
			n.flowControl.AddProducer(opts.FlowControlID, addr)
		}
	}
	return nil
}

func (n *Node) unregisterAll(addrs AddressSet, opts StartOptions) {
	for _, addr := range addrs {
		n.router.Unregister(addr)
		if opts.FlowControlID != "" {
			n.flowControl.RemoveProducer(opts.FlowControlID, addr)
		}
	}
}

func (n *Node) addEntry(addrs AddressSet, cluster, flowControlID string, cancel context.CancelFunc, done chan struct{}, shutdown func(context.Context) error) {
	e := &entry{addresses: addrs, cluster: cluster, flowControlID: flowControlID, cancel: cancel, done: done, shutdown: shutdown}

	n.mu.Lock()
	defer n.mu.Unlock()
	for _, addr := range addrs {
		n.entries[addr] = e
	}
	if _, seen := n.clusters[cluster]; !seen && cluster != "" {
		n.clusterOrder = append(n.clusterOrder, cluster)
	}
	n.clusters[cluster] = append(n.clusters[cluster], e)
}

func firstNonNil(ac AccessControl, fallback AccessControl) AccessControl {
	if ac == nil {
		return fallback
	}
	return ac
}
