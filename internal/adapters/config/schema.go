package config

// Vigilfile represents the structure of the vigil.yaml configuration file.
type Vigilfile struct {
	Version    string               `yaml:"version"`
	Listen     string               `yaml:"listen"`
	Cache      CacheDTO             `yaml:"cache"`
	Probes     map[string]*ProbeDTO `yaml:"probes"`
	Edges      map[string][]string  `yaml:"edges"`
	Aggregates []string             `yaml:"aggregates"`
}

// CacheDTO holds the cache and bus tunables. Durations are Go duration
// strings ("5s", "500ms").
type CacheDTO struct {
	Path              string `yaml:"path"`
	RingSize          int    `yaml:"ringSize"`
	QueueSize         int    `yaml:"queueSize"`
	HeartbeatInterval string `yaml:"heartbeatInterval"`
	PollInterval      string `yaml:"pollInterval"`
	DebounceWindow    string `yaml:"debounceWindow"`
	WarmConcurrency   int    `yaml:"warmConcurrency"`
	ProbeTimeout      string `yaml:"probeTimeout"`
}

// ProbeDTO represents a probe definition in the configuration.
type ProbeDTO struct {
	Cmd      []string `yaml:"cmd"`
	Watch    []string `yaml:"watch"`
	Group    string   `yaml:"group"`
	Priority int      `yaml:"priority"`
	Timeout  string   `yaml:"timeout"`
}
