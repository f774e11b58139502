package config

import (
	"encoding/json"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// Channel flavors a scenario can exercise
const (
	FlavorBounded    = "bounded"
	FlavorRendezvous = "rendezvous"
)

// Duration wraps time.Duration so scenario files can spell timeouts
// as "500ms" or "10s" instead of raw nanosecond counts
type Duration time.Duration

// Std returns the wrapped time.Duration
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

func (d Duration) String() string {
	return time.Duration(d).String()
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

func (d *Duration) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var raw string
		if err := json.Unmarshal(data, &raw); err != nil {
			return err
		}
		parsed, err := time.ParseDuration(raw)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", raw, err)
		}
		*d = Duration(parsed)
		return nil
	}

	// Bare numbers are taken as nanoseconds
	var n int64
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*d = Duration(n)
	return nil
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// MetricsConfig controls the Prometheus scrape endpoint of a run
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Addr    string `yaml:"addr" json:"addr"`
}

// Scenario describes one load generator run: which channel flavor to
// drive, how many producer and consumer workers to start and how many
// messages each producer sends
type Scenario struct {
	Name        string        `yaml:"name" json:"name"`
	Flavor      string        `yaml:"flavor" json:"flavor"`
	Capacity    int           `yaml:"capacity" json:"capacity"`
	Producers   int           `yaml:"producers" json:"producers"`
	Consumers   int           `yaml:"consumers" json:"consumers"`
	Messages    int           `yaml:"messages" json:"messages"`
	PayloadSize int           `yaml:"payload_size" json:"payload_size"`
	SendTimeout Duration      `yaml:"send_timeout" json:"send_timeout"`
	RecvTimeout Duration      `yaml:"recv_timeout" json:"recv_timeout"`
	Metrics     MetricsConfig `yaml:"metrics" json:"metrics"`
	LogLevel    string        `yaml:"log_level" json:"log_level"`
}

// DefaultScenario returns a scenario with working defaults. A config
// file or CONDUIT_* environment overrides are layered on top of it.
func DefaultScenario() *Scenario {
	return &Scenario{
		Name:        "default",
		Flavor:      FlavorBounded,
		Capacity:    1024,
		Producers:   4,
		Consumers:   4,
		Messages:    100000,
		PayloadSize: 64,
		Metrics: MetricsConfig{
			Enabled: true,
			Addr:    ":9090",
		},
		LogLevel: "info",
	}
}

// ScenarioValidators returns the validator set applied to every
// scenario before a run starts
func ScenarioValidators() []Validator {
	return []Validator{
		RequiredFields("Flavor"),
		OneOfValidator("Flavor", FlavorBounded, FlavorRendezvous),
		OneOfValidator("LogLevel", "debug", "info", "warn", "error"),
		StringLengthValidator("Name", 1, 64),
		RangeValidator("Capacity", 0, 1<<20),
		RangeValidator("Producers", 1, 10000),
		RangeValidator("Consumers", 1, 10000),
		RangeValidator("Messages", 1, 1000000000),
		RangeValidator("PayloadSize", 1, 1<<20),
	}
}

// LoadScenario builds the scenario for a run: defaults, then the config
// file (when path is non-empty), then CONDUIT_* environment overrides,
// then validation
func LoadScenario(path string) (*Scenario, error) {
	scenario := DefaultScenario()

	if path != "" {
		if err := LoadWithEnv(path, "CONDUIT", scenario); err != nil {
			return nil, err
		}
	} else if err := ApplyEnvOverrides("CONDUIT", scenario); err != nil {
		return nil, err
	}

	if err := Validate(scenario, ScenarioValidators()...); err != nil {
		return nil, err
	}

	return scenario, nil
}
