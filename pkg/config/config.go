package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/deskhive/deskhive/pkg/types"
)

// Config is the full controller configuration, loaded from a single YAML
// file. Zero values are replaced by defaults in Load.
type Config struct {
	Log       LogConfig       `yaml:"log"`
	Queue     QueueConfig     `yaml:"queue"`
	Pool      PoolConfig      `yaml:"pool"`
	Broker    BrokerConfig    `yaml:"broker"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Scheduler SchedulerConfig `yaml:"scheduler"`

	// Thresholds caps the attempts of every retryable lifecycle path,
	// keyed by counter type. A session whose counter crosses its
	// threshold transitions to ERROR instead of retrying forever.
	Thresholds map[types.CounterType]int `yaml:"thresholds"`

	// TrustedSenders lists the sender identities allowed per event
	// type family. Messages from any other sender are rejected without
	// touching controller state.
	TrustedSenders TrustedSenders `yaml:"trusted_senders"`
}

// LogConfig controls log output.
type LogConfig struct {
	Level      string `yaml:"level"`
	JSONOutput bool   `yaml:"json_output"`
}

// QueueConfig controls the event queue.
type QueueConfig struct {
	// Name of the FIFO queue the controller consumes.
	Name string `yaml:"name"`
	// MaxMessagesPerReceive caps one receive batch (1..10).
	MaxMessagesPerReceive int `yaml:"max_messages_per_receive"`
	// WaitTime is the long-poll duration of one receive call.
	WaitTime time.Duration `yaml:"wait_time"`
	// VisibilityTimeout hides a received message from other workers
	// until it is deleted or the timeout lapses.
	VisibilityTimeout time.Duration `yaml:"visibility_timeout"`
}

// PoolConfig controls worker pool sizing. The pool holds
// clamp(MinWorkers, ceil(depth/MessagesPerWorker), MaxWorkers) workers,
// re-evaluated EnforcementFrequencyPerMin times per minute.
type PoolConfig struct {
	MinWorkers                 int `yaml:"min_workers"`
	MaxWorkers                 int `yaml:"max_workers"`
	MessagesPerWorker          int `yaml:"messages_per_worker"`
	EnforcementFrequencyPerMin int `yaml:"enforcement_frequency_per_min"`
}

// SizingInterval returns the period between pool size evaluations.
func (p PoolConfig) SizingInterval() time.Duration {
	freq := p.EnforcementFrequencyPerMin
	if freq <= 0 {
		freq = 1
	}
	return time.Minute / time.Duration(freq)
}

// BrokerConfig locates the session broker.
type BrokerConfig struct {
	Endpoint      string        `yaml:"endpoint"`
	APIToken      string        `yaml:"api_token"`
	Timeout       time.Duration `yaml:"timeout"`
	RetryAttempts uint          `yaml:"retry_attempts"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
}

// SchedulerConfig controls the periodic sweep.
type SchedulerConfig struct {
	// Timezone in which schedule windows are evaluated, e.g. "America/New_York".
	Timezone string `yaml:"timezone"`
	// CPUUtilizationThreshold below which a session counts as idle (percent).
	CPUUtilizationThreshold float64 `yaml:"cpu_utilization_threshold"`
	// IdleTimeout is how long a session must stay below the CPU
	// threshold before a scheduled stop is allowed to proceed.
	IdleTimeout time.Duration `yaml:"idle_timeout"`
}

// TrustedSenders names the sender identities trusted for each class of
// inbound event.
type TrustedSenders struct {
	// Controller is the controller's own identity, stamped on
	// self-published follow-up events.
	Controller string `yaml:"controller"`
	// Host is the identity virtual desktop hosts publish with.
	Host string `yaml:"host"`
	// Scheduler is the identity of the periodic trigger.
	Scheduler string `yaml:"scheduler"`
	// Broker is the identity of broker-originated notifications.
	Broker string `yaml:"broker"`
	// Cloud is the identity of the forwarder relaying compute provider
	// notifications (instance state changes) onto the queue.
	Cloud string `yaml:"cloud"`
}

// Default attempt caps per counter type.
const (
	DefaultSessionCreationThreshold  = 30
	DefaultValidateCreationThreshold = 30
	DefaultValidateDeletionThreshold = 120
	DefaultSessionDeletedThreshold   = 4
	DefaultSessionResumedThreshold   = 6
)

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() *Config {
	return &Config{
		Log: LogConfig{Level: "info"},
		Queue: QueueConfig{
			Name:                  "deskhive-events.fifo",
			MaxMessagesPerReceive: 10,
			WaitTime:              20 * time.Second,
			VisibilityTimeout:     30 * time.Second,
		},
		Pool: PoolConfig{
			MinWorkers:                 1,
			MaxWorkers:                 20,
			MessagesPerWorker:          3,
			EnforcementFrequencyPerMin: 1,
		},
		Broker: BrokerConfig{
			Timeout:       30 * time.Second,
			RetryAttempts: 3,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Address: ":9090",
		},
		Scheduler: SchedulerConfig{
			Timezone:                "UTC",
			CPUUtilizationThreshold: 30,
			IdleTimeout:             30 * time.Minute,
		},
		Thresholds: map[types.CounterType]int{
			types.CounterSessionCreation:  DefaultSessionCreationThreshold,
			types.CounterValidateCreation: DefaultValidateCreationThreshold,
			types.CounterValidateDeletion: DefaultValidateDeletionThreshold,
			types.CounterSessionDeleted:   DefaultSessionDeletedThreshold,
			types.CounterSessionResumed:   DefaultSessionResumedThreshold,
		},
		TrustedSenders: TrustedSenders{
			Controller: "deskhive-controller",
			Host:       "deskhive-host",
			Scheduler:  "deskhive-scheduler",
			Broker:     "deskhive-broker",
			Cloud:      "deskhive-cloud",
		},
	}
}

// Load reads a YAML config file and overlays it on the defaults. An
// empty path returns the defaults unchanged.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations that cannot work.
func (c *Config) Validate() error {
	if c.Pool.MinWorkers < 1 {
		return fmt.Errorf("pool.min_workers must be at least 1, got %d", c.Pool.MinWorkers)
	}
	if c.Pool.MaxWorkers < c.Pool.MinWorkers {
		return fmt.Errorf("pool.max_workers (%d) must be >= pool.min_workers (%d)",
			c.Pool.MaxWorkers, c.Pool.MinWorkers)
	}
	if c.Pool.MessagesPerWorker < 1 {
		return fmt.Errorf("pool.messages_per_worker must be at least 1, got %d", c.Pool.MessagesPerWorker)
	}
	if c.Queue.MaxMessagesPerReceive < 1 || c.Queue.MaxMessagesPerReceive > 10 {
		return fmt.Errorf("queue.max_messages_per_receive must be in 1..10, got %d", c.Queue.MaxMessagesPerReceive)
	}
	for ct, limit := range c.Thresholds {
		if limit < 1 {
			return fmt.Errorf("thresholds[%s] must be at least 1, got %d", ct, limit)
		}
	}
	if _, err := time.LoadLocation(c.Scheduler.Timezone); err != nil {
		return fmt.Errorf("invalid scheduler.timezone %q: %w", c.Scheduler.Timezone, err)
	}
	return nil
}

// Threshold returns the attempt cap for a counter type, falling back to
// the built-in default when the map has no entry.
func (c *Config) Threshold(t types.CounterType) int {
	if v, ok := c.Thresholds[t]; ok {
		return v
	}
	switch t {
	case types.CounterSessionCreation:
		return DefaultSessionCreationThreshold
	case types.CounterValidateCreation:
		return DefaultValidateCreationThreshold
	case types.CounterValidateDeletion:
		return DefaultValidateDeletionThreshold
	case types.CounterSessionDeleted:
		return DefaultSessionDeletedThreshold
	case types.CounterSessionResumed:
		return DefaultSessionResumedThreshold
	}
	return DefaultSessionCreationThreshold
}

// Location resolves the scheduler timezone.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Scheduler.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
