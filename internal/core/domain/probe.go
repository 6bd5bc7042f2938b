package domain

import "time"

// Probe is one configured expensive computation: a command to run and the
// filesystem paths whose modification times proxy its staleness.
type Probe struct {
	// Key is the cache key the probe computes.
	Key string
	// Command is the argv to execute. Empty for aggregate-only keys.
	Command []string
	// Watch is the list of path patterns whose max mtime determines staleness.
	Watch []string
	// Group is an optional bust-by-group label.
	Group string
	// Priority orders the warm-up pass; lower runs first.
	Priority int
	// Timeout bounds the probe's execution. Zero means the configured default.
	Timeout time.Duration
}

// Config is the fully validated runtime configuration: probes, watch sets,
// the invalidation graph, and tunables. Loaded once, read-only afterwards.
type Config struct {
	// Listen is the HTTP listen address.
	Listen string
	// CachePath is the location of the on-disk cache document.
	CachePath string
	// RingSize is the capacity of the event replay buffer.
	RingSize int
	// QueueSize is the per-subscriber queue capacity.
	QueueSize int
	// HeartbeatInterval is how often an idle bus emits a heartbeat.
	HeartbeatInterval time.Duration
	// PollInterval is the staleness watcher's poll period.
	PollInterval time.Duration
	// DebounceWindow coalesces bursts of file system events.
	DebounceWindow time.Duration
	// WarmConcurrency bounds the warm-up pass's parallelism.
	WarmConcurrency int
	// ProbeTimeout is the default per-probe execution timeout.
	ProbeTimeout time.Duration
	// Probes are the configured probes in declaration order.
	Probes []Probe
	// Graph is the validated invalidation graph.
	Graph *Graph
}

// Watches returns the key -> watch pattern mapping.
func (c *Config) Watches() map[string][]string {
	watches := make(map[string][]string, len(c.Probes))
	for _, p := range c.Probes {
		watches[p.Key] = p.Watch
	}
	return watches
}

// Groups returns the group -> keys mapping.
func (c *Config) Groups() map[string][]string {
	groups := make(map[string][]string)
	for _, p := range c.Probes {
		if p.Group != "" {
			groups[p.Group] = append(groups[p.Group], p.Key)
		}
	}
	return groups
}

// Keys returns all configured cache keys in declaration order.
func (c *Config) Keys() []string {
	keys := make([]string, len(c.Probes))
	for i, p := range c.Probes {
		keys[i] = p.Key
	}
	return keys
}
