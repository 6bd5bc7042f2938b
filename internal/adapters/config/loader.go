// Package config provides the configuration loader for vigil.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/vigilproject/vigil/internal/core/domain"
	"github.com/vigilproject/vigil/internal/core/ports"
	"go.trai.ch/zerr"
	"gopkg.in/yaml.v3"
)

// Defaults applied when the config file omits a tunable.
const (
	DefaultListen            = "127.0.0.1:7177"
	DefaultRingSize          = 512
	DefaultQueueSize         = 64
	DefaultHeartbeatInterval = 15 * time.Second
	DefaultPollInterval      = 5 * time.Second
	DefaultDebounceWindow    = 500 * time.Millisecond
	DefaultWarmConcurrency   = 2
	DefaultProbeTimeout      = 30 * time.Second
)

// Loader implements ports.ConfigLoader using a YAML file.
type Loader struct {
	Logger ports.Logger
}

var _ ports.ConfigLoader = (*Loader)(nil)

// NewLoader creates a new Loader with the given logger.
func NewLoader(logger ports.Logger) *Loader {
	return &Loader{Logger: logger}
}

// Load reads the configuration reachable from cwd and returns a validated
// domain.Config. Relative cache and watch paths are resolved against the
// directory containing the config file.
func (l *Loader) Load(cwd string) (*domain.Config, error) {
	configPath, err := l.findConfiguration(cwd)
	if err != nil {
		return nil, err
	}

	var file Vigilfile
	if err := readAndUnmarshalYAML(configPath, &file); err != nil {
		return nil, err
	}

	root := filepath.Dir(configPath)
	cfg, err := l.build(&file, root)
	if err != nil {
		return nil, zerr.With(err, "config", configPath)
	}
	return cfg, nil
}

// findConfiguration walks up from cwd looking for vigil.yaml.
func (l *Loader) findConfiguration(cwd string) (string, error) {
	currentDir := cwd
	for {
		candidate := filepath.Join(currentDir, domain.ConfigFileName)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}

		parentDir := filepath.Dir(currentDir)
		if parentDir == currentDir {
			// Reached root
			break
		}
		currentDir = parentDir
	}

	return "", zerr.With(domain.ErrConfigNotFound, "cwd", cwd)
}

//nolint:cyclop // validation is a flat sequence of checks
func (l *Loader) build(file *Vigilfile, root string) (*domain.Config, error) {
	if len(file.Probes) == 0 {
		return nil, domain.ErrNoProbesConfigured
	}

	cfg := &domain.Config{
		Listen:            file.Listen,
		CachePath:         file.Cache.Path,
		RingSize:          file.Cache.RingSize,
		QueueSize:         file.Cache.QueueSize,
		WarmConcurrency:   file.Cache.WarmConcurrency,
		HeartbeatInterval: DefaultHeartbeatInterval,
		PollInterval:      DefaultPollInterval,
		DebounceWindow:    DefaultDebounceWindow,
		ProbeTimeout:      DefaultProbeTimeout,
	}
	applyDefaults(cfg, root)

	if err := parseDurations(&file.Cache, cfg); err != nil {
		return nil, err
	}

	// Deterministic probe order: sorted by key.
	keys := make([]string, 0, len(file.Probes))
	for key := range file.Probes {
		keys = append(keys, key)
	}
	slices.Sort(keys)

	// Aggregate-only keys may omit the command.
	aggregates := make(map[string]bool, len(file.Aggregates))
	for _, key := range file.Aggregates {
		aggregates[key] = true
	}

	for _, key := range keys {
		probe, err := l.buildProbe(key, file.Probes[key], root, cfg.ProbeTimeout, aggregates[key])
		if err != nil {
			return nil, err
		}
		cfg.Probes = append(cfg.Probes, probe)
	}

	graph := domain.NewGraph(keys)
	for from, targets := range file.Edges {
		for _, to := range targets {
			if err := graph.AddEdge(from, to); err != nil {
				return nil, err
			}
		}
	}
	if err := graph.MarkAggregates(file.Aggregates...); err != nil {
		return nil, err
	}

	// Silently-wrong cascade behavior is worse than refusing to start.
	if err := graph.Validate(); err != nil {
		return nil, err
	}
	cfg.Graph = graph

	return cfg, nil
}

func (l *Loader) buildProbe(key string, dto *ProbeDTO, root string, defaultTimeout time.Duration, aggregate bool) (domain.Probe, error) {
	if dto == nil {
		dto = &ProbeDTO{}
	}
	if len(dto.Cmd) == 0 && !aggregate {
		return domain.Probe{}, zerr.With(domain.ErrProbeCommandEmpty, "key", key)
	}

	watch := make([]string, 0, len(dto.Watch))
	for _, pattern := range dto.Watch {
		// filepath.Match is the only way to surface ErrBadPattern early.
		if _, err := filepath.Match(pattern, ""); err != nil {
			return domain.Probe{}, zerr.With(zerr.With(domain.ErrInvalidWatchPattern, "key", key), "pattern", pattern)
		}
		if !filepath.IsAbs(pattern) {
			pattern = filepath.Join(root, pattern)
		}
		watch = append(watch, pattern)
	}

	timeout := defaultTimeout
	if dto.Timeout != "" {
		parsed, err := time.ParseDuration(dto.Timeout)
		if err != nil {
			return domain.Probe{}, zerr.Wrap(err, fmt.Sprintf("invalid timeout for probe %q", key))
		}
		timeout = parsed
	}

	return domain.Probe{
		Key:      key,
		Command:  slices.Clone(dto.Cmd),
		Watch:    watch,
		Group:    dto.Group,
		Priority: dto.Priority,
		Timeout:  timeout,
	}, nil
}

func applyDefaults(cfg *domain.Config, root string) {
	if cfg.Listen == "" {
		cfg.Listen = DefaultListen
	}
	if cfg.CachePath == "" {
		cfg.CachePath = domain.DefaultCachePath()
	}
	if !filepath.IsAbs(cfg.CachePath) {
		cfg.CachePath = filepath.Join(root, cfg.CachePath)
	}
	if cfg.RingSize <= 0 {
		cfg.RingSize = DefaultRingSize
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}
	if cfg.WarmConcurrency <= 0 {
		cfg.WarmConcurrency = DefaultWarmConcurrency
	}
}

func parseDurations(dto *CacheDTO, cfg *domain.Config) error {
	fields := []struct {
		raw  string
		dst  *time.Duration
		name string
	}{
		{dto.HeartbeatInterval, &cfg.HeartbeatInterval, "heartbeatInterval"},
		{dto.PollInterval, &cfg.PollInterval, "pollInterval"},
		{dto.DebounceWindow, &cfg.DebounceWindow, "debounceWindow"},
		{dto.ProbeTimeout, &cfg.ProbeTimeout, "probeTimeout"},
	}
	for _, field := range fields {
		if field.raw == "" {
			continue
		}
		parsed, err := time.ParseDuration(field.raw)
		if err != nil {
			return zerr.Wrap(err, fmt.Sprintf("invalid duration for cache.%s", field.name))
		}
		*field.dst = parsed
	}
	return nil
}

func readAndUnmarshalYAML(path string, out any) error {
	//nolint:gosec // Path is discovered by walking up from the caller's cwd
	data, err := os.ReadFile(path)
	if err != nil {
		return zerr.Wrap(err, domain.ErrConfigReadFailed.Error())
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return zerr.Wrap(err, domain.ErrConfigParseFailed.Error())
	}
	return nil
}
