// Package config handles global configuration loading using viper.
package config

import (
	"fmt"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"firestige.xyz/swctl/internal/core"
	"firestige.xyz/swctl/internal/log"
)

// GlobalConfig maps to the `swctl:` root key in YAML.
type GlobalConfig struct {
	Node         NodeConfig       `mapstructure:"node"`
	Switch       SwitchConfig     `mapstructure:"switch"`
	TickInterval time.Duration    `mapstructure:"tick_interval"`
	StaticFdb    []StaticEntry    `mapstructure:"static_fdb"`
	Control      ControlConfig    `mapstructure:"control"`
	Store        StoreConfig      `mapstructure:"store"`
	EventBus     EventBusConfig   `mapstructure:"event_bus"`
	Log          log.LoggerConfig `mapstructure:"log"`
	Metrics      MetricsConfig    `mapstructure:"metrics"`
	Reporter     ReporterConfig   `mapstructure:"reporter"`
	Tap          TapConfig        `mapstructure:"tap"`
}

type NodeConfig struct {
	Hostname string `mapstructure:"hostname"` // empty = os.Hostname()
}

// ─── Switch ───

type SwitchConfig struct {
	Chip           string          `mapstructure:"chip"`
	Transport      TransportConfig `mapstructure:"transport"`
	Interface      string          `mapstructure:"interface"` // aggregate host interface
	PortSeparation bool            `mapstructure:"port_separation"`
	TailTag        bool            `mapstructure:"tail_tag"`
	Bindings       []BindingConfig `mapstructure:"bindings"`
	Options        map[string]any  `mapstructure:"options"` // chip specific
	Poll           PollConfig      `mapstructure:"poll"`
}

type TransportConfig struct {
	Type      string `mapstructure:"type"`      // sim | spi | mdio
	Device    string `mapstructure:"device"`    // spi: /dev/spidevB.C
	SpeedHz   uint32 `mapstructure:"speed_hz"`  // spi
	Interface string `mapstructure:"interface"` // mdio: netdev owning the MDIO bus
}

type BindingConfig struct {
	Port      core.PortID `mapstructure:"port"`
	Interface string      `mapstructure:"interface"`
}

// PollConfig bounds hardware waits. MaxAttempts 0 waits forever.
type PollConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	BackoffMin  time.Duration `mapstructure:"backoff_min"`
	BackoffMax  time.Duration `mapstructure:"backoff_max"`
}

// StaticEntry is installed at startup. Ports uses the "1,2,cpu" notation.
type StaticEntry struct {
	MAC      core.MAC      `mapstructure:"mac"`
	Ports    core.PortMask `mapstructure:"ports"`
	Override bool          `mapstructure:"override"`
}

func (e StaticEntry) Entry() core.FdbEntry {
	return core.FdbEntry{MAC: e.MAC, DestPorts: e.Ports, Override: e.Override}
}

// ─── Control Plane ───

type ControlConfig struct {
	Socket  string             `mapstructure:"socket"`
	PIDFile string             `mapstructure:"pid_file"`
	Kafka   CommandKafkaConfig `mapstructure:"kafka"`
}

// CommandKafkaConfig enables the remote command channel. Commands carry a
// target hostname ("*" for all nodes) and are dropped once older than
// CommandTTL.
type CommandKafkaConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	Brokers         []string      `mapstructure:"brokers"`
	Topic           string        `mapstructure:"topic"`
	GroupID         string        `mapstructure:"group_id"`
	AutoOffsetReset string        `mapstructure:"auto_offset_reset"` // earliest | latest
	CommandTTL      time.Duration `mapstructure:"command_ttl"`
}

type StoreConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Dir     string `mapstructure:"dir"`
}

type EventBusConfig struct {
	Partitions int `mapstructure:"partitions"`
	QueueSize  int `mapstructure:"queue_size"`
}

// ─── Observability ───

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Listen  string `mapstructure:"listen"`
	Path    string `mapstructure:"path"`
}

type ReporterConfig struct {
	Kafka KafkaReporterConfig `mapstructure:"kafka"`
}

type KafkaReporterConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Brokers      []string      `mapstructure:"brokers"`
	Topic        string        `mapstructure:"topic"`
	BatchSize    int           `mapstructure:"batch_size"`
	BatchTimeout time.Duration `mapstructure:"batch_timeout"`
	Compression  string        `mapstructure:"compression"`
	MaxAttempts  int           `mapstructure:"max_attempts"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

type TapConfig struct {
	Interface    string `mapstructure:"interface"`
	SnapLen      int    `mapstructure:"snap_len"`
	BufferSizeMB int    `mapstructure:"buffer_size_mb"`
	TimeoutMs    int    `mapstructure:"timeout_ms"`
}

// ─── Loading ───

// configRoot is the top-level wrapper matching the YAML structure `swctl: ...`.
type configRoot struct {
	Swctl GlobalConfig `mapstructure:"swctl"`
}

// Load loads configuration from file. Environment variables override file
// values through the key path, e.g. SWCTL_SWITCH_CHIP for swctl.switch.chip.
func Load(path string) (*GlobalConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	var root configRoot
	if err := v.Unmarshal(&root, viper.DecodeHook(decodeHook())); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg := root.Swctl

	if err := cfg.ValidateAndApplyDefaults(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

func decodeHook() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		portMaskHook,
		mapstructure.TextUnmarshallerHookFunc(),
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	)
}

// portMaskHook decodes "1,2,cpu" strings and port lists into a PortMask.
func portMaskHook(from, to reflect.Type, data interface{}) (interface{}, error) {
	if to != reflect.TypeOf(core.PortMask(0)) {
		return data, nil
	}
	switch v := data.(type) {
	case string:
		return core.ParsePortMask(v)
	case []interface{}:
		parts := make([]string, len(v))
		for i, p := range v {
			parts[i] = fmt.Sprint(p)
		}
		return core.ParsePortMask(strings.Join(parts, ","))
	}
	return data, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("swctl.switch.transport.type", "sim")
	v.SetDefault("swctl.switch.transport.speed_hz", 5000000)
	v.SetDefault("swctl.switch.tail_tag", true)
	v.SetDefault("swctl.tick_interval", "1s")

	v.SetDefault("swctl.control.pid_file", "/var/run/swctl.pid")
	v.SetDefault("swctl.control.socket", "/var/run/swctl.sock")
	v.SetDefault("swctl.control.kafka.topic", "swctl-commands")
	v.SetDefault("swctl.control.kafka.auto_offset_reset", "latest")
	v.SetDefault("swctl.control.kafka.command_ttl", "5m")

	v.SetDefault("swctl.store.enabled", true)
	v.SetDefault("swctl.store.dir", "/var/lib/swctl")

	v.SetDefault("swctl.event_bus.partitions", 4)
	v.SetDefault("swctl.event_bus.queue_size", 256)

	v.SetDefault("swctl.log.level", "info")
	v.SetDefault("swctl.log.pattern", log.DefaultPattern)
	v.SetDefault("swctl.log.time", log.DefaultTimeLayout)

	v.SetDefault("swctl.metrics.enabled", true)
	v.SetDefault("swctl.metrics.listen", ":9102")
	v.SetDefault("swctl.metrics.path", "/metrics")

	v.SetDefault("swctl.reporter.kafka.enabled", false)
	v.SetDefault("swctl.reporter.kafka.topic", "swctl-link-events")
	v.SetDefault("swctl.reporter.kafka.compression", "snappy")

	v.SetDefault("swctl.tap.snap_len", 1600)
	v.SetDefault("swctl.tap.buffer_size_mb", 2)
	v.SetDefault("swctl.tap.timeout_ms", 100)
}

var validLevels = map[string]bool{"trace": true, "debug": true, "info": true, "warn": true, "error": true}

// ValidateAndApplyDefaults validates configuration and applies runtime defaults.
func (cfg *GlobalConfig) ValidateAndApplyDefaults() error {
	if !validLevels[cfg.Log.Level] {
		return fmt.Errorf("invalid log level: %s (must be trace/debug/info/warn/error)", cfg.Log.Level)
	}

	if cfg.Node.Hostname == "" {
		hostname, err := os.Hostname()
		if err != nil {
			return fmt.Errorf("failed to get hostname: %w", err)
		}
		cfg.Node.Hostname = hostname
	}

	sw := &cfg.Switch
	if sw.Chip == "" {
		return fmt.Errorf("switch.chip is required")
	}
	if sw.Interface == "" {
		sw.Interface = sw.Chip
	}
	switch sw.Transport.Type {
	case "sim":
	case "spi":
		if sw.Transport.Device == "" {
			return fmt.Errorf("switch.transport.device is required for spi")
		}
	case "mdio":
		if sw.Transport.Interface == "" {
			return fmt.Errorf("switch.transport.interface is required for mdio")
		}
	default:
		return fmt.Errorf("unsupported switch.transport.type: %s (must be sim/spi/mdio)", sw.Transport.Type)
	}

	seen := make(map[core.PortID]bool)
	for _, b := range sw.Bindings {
		if b.Port < 1 || b.Interface == "" {
			return fmt.Errorf("switch.bindings: port %d / interface %q invalid", b.Port, b.Interface)
		}
		if seen[b.Port] {
			return fmt.Errorf("switch.bindings: port %d bound twice", b.Port)
		}
		seen[b.Port] = true
	}
	if len(sw.Bindings) > 0 && !sw.PortSeparation {
		return fmt.Errorf("switch.bindings requires switch.port_separation")
	}

	if sw.Poll.MaxAttempts < 0 {
		return fmt.Errorf("switch.poll.max_attempts must not be negative")
	}
	if sw.Poll.BackoffMax < sw.Poll.BackoffMin {
		sw.Poll.BackoffMax = sw.Poll.BackoffMin
	}

	if cfg.TickInterval <= 0 {
		return fmt.Errorf("tick_interval must be positive")
	}

	for i, e := range cfg.StaticFdb {
		if e.MAC.IsZero() {
			return fmt.Errorf("static_fdb[%d]: mac is required", i)
		}
		if e.Ports == 0 {
			return fmt.Errorf("static_fdb[%d]: ports is required", i)
		}
	}

	if cfg.Store.Enabled && cfg.Store.Dir == "" {
		return fmt.Errorf("store.dir is required when store.enabled=true")
	}

	ck := &cfg.Control.Kafka
	if ck.Enabled {
		if len(ck.Brokers) == 0 {
			return fmt.Errorf("control.kafka.brokers is required when control.kafka.enabled=true")
		}
		if ck.GroupID == "" {
			ck.GroupID = "swctl-" + cfg.Node.Hostname
		}
	}

	rk := &cfg.Reporter.Kafka
	if rk.Enabled {
		if len(rk.Brokers) == 0 {
			return fmt.Errorf("reporter.kafka.brokers is required when reporter.kafka.enabled=true")
		}
		if rk.Topic == "" {
			return fmt.Errorf("reporter.kafka.topic is required when reporter.kafka.enabled=true")
		}
	}
	return nil
}

// StaticEntries returns the configured static entries.
func (cfg *GlobalConfig) StaticEntries() []core.FdbEntry {
	out := make([]core.FdbEntry, 0, len(cfg.StaticFdb))
	for _, e := range cfg.StaticFdb {
		out = append(out, e.Entry())
	}
	return out
}
