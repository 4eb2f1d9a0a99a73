// Package membership implements the SWIM-style gossip membership layer of
// spec.md §4.1 on top of hashicorp/serf (which embeds hashicorp/memberlist,
// the reference Go SWIM implementation: direct ping, indirect ping via k
// peers, alive -> suspect -> dead transitions, and incarnation-based
// self-refutation, with state piggy-backed on gossip messages).
package membership

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/hashicorp/serf/serf"
	"github.com/rs/zerolog"
)

// Node is a gossiped peer with its announced service endpoints.
type Node struct {
	ID        string // stable string identity: the bind address
	BindAddr  string
	GRPCAddr  string
	HTTPAddr  string
	Status    string // serf member status: alive, leaving, left, failed
	Incarnation uint64
}

// EventKind distinguishes the three membership change events of spec.md §4.1.
type EventKind int

const (
	Joined EventKind = iota
	Left
	UpdatedMetadata
)

// Event is a single membership change, causally ordered per node but with
// no ordering guarantee across distinct nodes.
type Event struct {
	Kind EventKind
	Node Node
}

// Membership owns the local serf agent and the subscriber fan-out.
type Membership struct {
	log  zerolog.Logger
	serf *serf.Serf

	mu   sync.RWMutex
	subs []chan Event

	readyOnce sync.Once
	ready     chan struct{}
}

// Config configures the local gossip endpoint and the metadata this node
// announces to peers (its gRPC and HTTP addresses).
type Config struct {
	NodeID      string
	BindAddress string // host:port for the gossip listener
	GRPCAddress string
	HTTPAddress string
}

// New creates and starts the local serf agent. It fails only if the process
// cannot bind its gossip socket (spec.md §4.1 fatal condition).
func New(cfg Config, log zerolog.Logger) (*Membership, error) {
	host, portStr, err := net.SplitHostPort(cfg.BindAddress)
	if err != nil {
		return nil, fmt.Errorf("membership: invalid bind address %q: %w", cfg.BindAddress, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, fmt.Errorf("membership: invalid bind port %q: %w", portStr, err)
	}
	if host == "" {
		host = "0.0.0.0"
	}

	m := &Membership{log: log, ready: make(chan struct{})}

	eventCh := make(chan serf.Event, 256)

	conf := serf.DefaultConfig()
	conf.Init()
	conf.NodeName = cfg.NodeID
	conf.MemberlistConfig.BindAddr = host
	conf.MemberlistConfig.BindPort = port
	conf.EventCh = eventCh
	conf.Tags = map[string]string{
		"grpc_addr": cfg.GRPCAddress,
		"http_addr": cfg.HTTPAddress,
	}

	s, err := serf.Create(conf)
	if err != nil {
		return nil, fmt.Errorf("membership: bind gossip socket: %w", err)
	}
	m.serf = s

	go m.pump(eventCh)

	return m, nil
}

// Join unicasts to the seed address and thereafter participates like any
// other peer. A zero-value seed is a no-op: the node bootstraps alone.
func (m *Membership) Join(seed string) error {
	if seed == "" {
		return nil
	}
	_, err := m.serf.Join([]string{seed}, true)
	if err != nil {
		return fmt.Errorf("membership: join %s: %w", seed, err)
	}
	return nil
}

// Leave gracefully announces departure before Shutdown.
func (m *Membership) Leave() error {
	return m.serf.Leave()
}

// Shutdown tears down the local agent and closes all subscriber channels.
func (m *Membership) Shutdown() error {
	m.mu.Lock()
	for _, ch := range m.subs {
		close(ch)
	}
	m.subs = nil
	m.mu.Unlock()
	return m.serf.Shutdown()
}

// Snapshot returns the eventually-consistent live peer set. Bounded
// staleness is O(gossip_period * log(n)) per spec.md §4.1.
func (m *Membership) Snapshot() []Node {
	members := m.serf.Members()
	out := make([]Node, 0, len(members))
	for _, mem := range members {
		if mem.Status != serf.StatusAlive {
			continue // failed, leaving and left members are not live peers
		}
		out = append(out, toNode(mem))
	}
	return out
}

// Subscribe returns a stream of membership change events. No ordering is
// guaranteed across distinct nodes, but events about a single node are
// causally ordered.
func (m *Membership) Subscribe() <-chan Event {
	ch := make(chan Event, 64)
	m.mu.Lock()
	m.subs = append(m.subs, ch)
	m.mu.Unlock()
	return ch
}

// Ready is closed once at least one membership observation (including the
// local node's own join) has landed, backing the readiness probe.
func (m *Membership) Ready() <-chan struct{} {
	return m.ready
}

func (m *Membership) pump(eventCh <-chan serf.Event) {
	for e := range eventCh {
		me, ok := e.(serf.MemberEvent)
		if !ok {
			continue // user events and query events are not membership changes
		}
		var kind EventKind
		switch me.EventType() {
		case serf.EventMemberJoin:
			kind = Joined
		case serf.EventMemberLeave, serf.EventMemberFailed:
			kind = Left
		case serf.EventMemberUpdate:
			kind = UpdatedMetadata
		default:
			continue
		}
		for _, mem := range me.Members {
			m.broadcast(Event{Kind: kind, Node: toNode(mem)})
		}
		m.readyOnce.Do(func() { close(m.ready) })
	}
}

func (m *Membership) broadcast(ev Event) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, ch := range m.subs {
		select {
		case ch <- ev:
		case <-time.After(time.Second):
			m.log.Warn().Str("node", ev.Node.ID).Msg("membership subscriber slow, dropping event")
		}
	}
}

func toNode(mem serf.Member) Node {
	status := mem.Status.String()
	return Node{
		ID:          mem.Name,
		BindAddr:    net.JoinHostPort(mem.Addr.String(), strconv.Itoa(int(mem.Port))),
		GRPCAddr:    mem.Tags["grpc_addr"],
		HTTPAddr:    mem.Tags["http_addr"],
		Status:      status,
		Incarnation: uint64(mem.StatusLTime),
	}
}

// WaitReady blocks until Ready() fires or ctx is done.
func WaitReady(ctx context.Context, m *Membership) error {
	select {
	case <-m.Ready():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
