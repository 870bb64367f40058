package sensors

import (
	"fmt"
	"strconv"
	"time"
)

// Toggle configures a host-wide sensor that has no items.
type Toggle struct {
	Enable   bool          `mapstructure:"enable" yaml:"enable"`
	ScanRate time.Duration `mapstructure:"scan_rate" yaml:"scan_rate"`
	name     string
}

func (t Toggle) ScanKey() string             { return t.name }
func (t Toggle) ScanInterval() time.Duration { return t.ScanRate }

// PathItem is a sensor reading one path, such as a thermal zone file or a
// mount point.
type PathItem struct {
	Alias    string        `mapstructure:"alias" yaml:"alias"`
	Path     string        `mapstructure:"path" yaml:"path"`
	Enable   bool          `mapstructure:"enable" yaml:"enable"`
	ScanRate time.Duration `mapstructure:"scan_rate" yaml:"scan_rate"`
	kind     string
}

func (p PathItem) ScanKey() string             { return p.kind + ":" + p.alias() + "@" + p.Path }
func (p PathItem) ScanInterval() time.Duration { return p.ScanRate }

func (p PathItem) alias() string {
	if p.Alias != "" {
		return p.Alias
	}
	return p.Path
}

// TCPPortItem probes one TCP endpoint.
type TCPPortItem struct {
	Alias    string        `mapstructure:"alias" yaml:"alias"`
	Hostname string        `mapstructure:"hostname" yaml:"hostname"`
	Port     int           `mapstructure:"port" yaml:"port"`
	Timeout  time.Duration `mapstructure:"timeout" yaml:"timeout"`
	Enable   bool          `mapstructure:"enable" yaml:"enable"`
	ScanRate time.Duration `mapstructure:"scan_rate" yaml:"scan_rate"`
}

func (i TCPPortItem) ScanKey() string             { return "tcp-port:" + i.alias() + "@" + i.address() }
func (i TCPPortItem) ScanInterval() time.Duration { return i.ScanRate }

func (i TCPPortItem) address() string {
	return i.Hostname + ":" + strconv.Itoa(i.Port)
}

func (i TCPPortItem) alias() string {
	if i.Alias != "" {
		return i.Alias
	}
	return i.address()
}

// NSResolveItem resolves one host name.
type NSResolveItem struct {
	Alias    string        `mapstructure:"alias" yaml:"alias"`
	Hostname string        `mapstructure:"hostname" yaml:"hostname"`
	Timeout  time.Duration `mapstructure:"timeout" yaml:"timeout"`
	Enable   bool          `mapstructure:"enable" yaml:"enable"`
	ScanRate time.Duration `mapstructure:"scan_rate" yaml:"scan_rate"`
}

func (i NSResolveItem) ScanKey() string             { return "ns-resolve:" + i.alias() + "@" + i.Hostname }
func (i NSResolveItem) ScanInterval() time.Duration { return i.ScanRate }

func (i NSResolveItem) alias() string {
	if i.Alias != "" {
		return i.Alias
	}
	return i.Hostname
}

// PingItem sends ICMP echoes to one host.
type PingItem struct {
	Alias    string        `mapstructure:"alias" yaml:"alias"`
	Hostname string        `mapstructure:"hostname" yaml:"hostname"`
	Timeout  time.Duration `mapstructure:"timeout" yaml:"timeout"`
	Enable   bool          `mapstructure:"enable" yaml:"enable"`
	ScanRate time.Duration `mapstructure:"scan_rate" yaml:"scan_rate"`
}

func (i PingItem) ScanKey() string             { return "ping:" + i.alias() + "@" + i.Hostname }
func (i PingItem) ScanInterval() time.Duration { return i.ScanRate }

func (i PingItem) alias() string {
	if i.Alias != "" {
		return i.Alias
	}
	return i.Hostname
}

// HDDTemperatureConfig reads drive temperatures from a hddtemp daemon. The
// daemon is queried once per scan for all enabled devices.
type HDDTemperatureConfig struct {
	// Address of the daemon, "localhost:7634" by default.
	Address  string        `mapstructure:"address" yaml:"address"`
	Timeout  time.Duration `mapstructure:"timeout" yaml:"timeout"`
	ScanRate time.Duration `mapstructure:"scan_rate" yaml:"scan_rate"`
	// Items name the devices, e.g. /dev/sda, as reported by the daemon.
	Items []PathItem `mapstructure:"items" yaml:"items"`
}

func (h HDDTemperatureConfig) ScanKey() string             { return "hdd-temperature@" + h.Address }
func (h HDDTemperatureConfig) ScanInterval() time.Duration { return h.ScanRate }

// UPSConfig reads the UPS state from an apcupsd network information server.
type UPSConfig struct {
	Enable bool   `mapstructure:"enable" yaml:"enable"`
	Alias  string `mapstructure:"alias" yaml:"alias"`
	// Address of apcupsd, "localhost:3551" by default.
	Address  string        `mapstructure:"address" yaml:"address"`
	Timeout  time.Duration `mapstructure:"timeout" yaml:"timeout"`
	ScanRate time.Duration `mapstructure:"scan_rate" yaml:"scan_rate"`
}

func (u UPSConfig) ScanKey() string             { return "ups:" + u.Alias + "@" + u.Address }
func (u UPSConfig) ScanInterval() time.Duration { return u.ScanRate }

// Config enables and tunes the built-in sensors. Everything is disabled by
// default.
type Config struct {
	Heartbeat      Toggle          `mapstructure:"heartbeat" yaml:"heartbeat"`
	Load           Toggle          `mapstructure:"load" yaml:"load"`
	Uptime         Toggle          `mapstructure:"uptime" yaml:"uptime"`
	CPUTemperature []PathItem      `mapstructure:"cpu_temperature" yaml:"cpu_temperature"`
	HDDUsage       []PathItem      `mapstructure:"hdd_usage" yaml:"hdd_usage"`
	TCPPort        []TCPPortItem   `mapstructure:"tcp_port" yaml:"tcp_port"`
	NSResolve      []NSResolveItem `mapstructure:"ns_resolve" yaml:"ns_resolve"`
	Ping           []PingItem      `mapstructure:"ping" yaml:"ping"`

	// PingPrivileged sends raw ICMP instead of unprivileged datagram pings.
	PingPrivileged bool                 `mapstructure:"ping_privileged" yaml:"ping_privileged"`
	HDDTemperature HDDTemperatureConfig `mapstructure:"hdd_temperature" yaml:"hdd_temperature"`
	UPS            UPSConfig            `mapstructure:"ups" yaml:"ups"`
}

// Default scan rates and timeouts applied to zero values.
const (
	DefaultHeartbeatRate      = time.Second
	DefaultLoadRate           = time.Second
	DefaultUptimeRate         = time.Minute
	DefaultCPUTemperatureRate = 5 * time.Second
	DefaultHDDUsageRate       = 10 * time.Second
	DefaultTCPPortRate        = 10 * time.Second
	DefaultNSResolveRate      = 5 * time.Second
	DefaultPingRate           = time.Second
	DefaultHDDTemperatureRate = 10 * time.Second
	DefaultUPSRate            = 5 * time.Second
	DefaultProbeTimeout       = time.Second

	DefaultHDDTempAddress = "localhost:7634"
	DefaultApcupsdAddress = "localhost:3551"
)

// withDefaults fills zero scan rates and timeouts and names the items.
func (c Config) withDefaults() Config {
	orRate := func(d, def time.Duration) time.Duration {
		if d == 0 {
			return def
		}
		return d
	}
	c.Heartbeat.name, c.Heartbeat.ScanRate = "heartbeat", orRate(c.Heartbeat.ScanRate, DefaultHeartbeatRate)
	c.Load.name, c.Load.ScanRate = "load", orRate(c.Load.ScanRate, DefaultLoadRate)
	c.Uptime.name, c.Uptime.ScanRate = "uptime", orRate(c.Uptime.ScanRate, DefaultUptimeRate)

	cpu := make([]PathItem, len(c.CPUTemperature))
	for i, p := range c.CPUTemperature {
		p.kind, p.ScanRate = "cpu-temperature", orRate(p.ScanRate, DefaultCPUTemperatureRate)
		cpu[i] = p
	}
	c.CPUTemperature = cpu

	hdd := make([]PathItem, len(c.HDDUsage))
	for i, p := range c.HDDUsage {
		p.kind, p.ScanRate = "hdd-usage", orRate(p.ScanRate, DefaultHDDUsageRate)
		hdd[i] = p
	}
	c.HDDUsage = hdd

	tcp := make([]TCPPortItem, len(c.TCPPort))
	for i, p := range c.TCPPort {
		p.ScanRate = orRate(p.ScanRate, DefaultTCPPortRate)
		p.Timeout = orRate(p.Timeout, DefaultProbeTimeout)
		tcp[i] = p
	}
	c.TCPPort = tcp

	ns := make([]NSResolveItem, len(c.NSResolve))
	for i, p := range c.NSResolve {
		p.ScanRate = orRate(p.ScanRate, DefaultNSResolveRate)
		p.Timeout = orRate(p.Timeout, DefaultProbeTimeout)
		ns[i] = p
	}
	c.NSResolve = ns

	ping := make([]PingItem, len(c.Ping))
	for i, p := range c.Ping {
		p.ScanRate = orRate(p.ScanRate, DefaultPingRate)
		p.Timeout = orRate(p.Timeout, DefaultProbeTimeout)
		ping[i] = p
	}
	c.Ping = ping

	c.HDDTemperature.ScanRate = orRate(c.HDDTemperature.ScanRate, DefaultHDDTemperatureRate)
	c.HDDTemperature.Timeout = orRate(c.HDDTemperature.Timeout, DefaultProbeTimeout)
	if c.HDDTemperature.Address == "" {
		c.HDDTemperature.Address = DefaultHDDTempAddress
	}
	temps := make([]PathItem, len(c.HDDTemperature.Items))
	for i, p := range c.HDDTemperature.Items {
		p.kind = "hdd-temperature"
		temps[i] = p
	}
	c.HDDTemperature.Items = temps

	c.UPS.ScanRate = orRate(c.UPS.ScanRate, DefaultUPSRate)
	c.UPS.Timeout = orRate(c.UPS.Timeout, DefaultProbeTimeout)
	if c.UPS.Address == "" {
		c.UPS.Address = DefaultApcupsdAddress
	}
	if c.UPS.Alias == "" {
		c.UPS.Alias = "ups"
	}
	return c
}

// Validate reports configuration errors of enabled items. Two enabled items
// of one sensor with the same alias and target are rejected.
func (c Config) Validate() error {
	if err := unique("cpu_temperature", c.CPUTemperature, PathItem.ScanKey, func(p PathItem) bool { return p.Enable }); err != nil {
		return err
	}
	if err := unique("hdd_usage", c.HDDUsage, PathItem.ScanKey, func(p PathItem) bool { return p.Enable }); err != nil {
		return err
	}
	if err := unique("tcp_port", c.TCPPort, TCPPortItem.ScanKey, func(p TCPPortItem) bool { return p.Enable }); err != nil {
		return err
	}
	if err := unique("ns_resolve", c.NSResolve, NSResolveItem.ScanKey, func(p NSResolveItem) bool { return p.Enable }); err != nil {
		return err
	}
	if err := unique("ping", c.Ping, PingItem.ScanKey, func(p PingItem) bool { return p.Enable }); err != nil {
		return err
	}
	if err := unique("hdd_temperature", c.HDDTemperature.Items, PathItem.ScanKey, func(p PathItem) bool { return p.Enable }); err != nil {
		return err
	}
	for _, p := range c.Ping {
		if p.Enable && p.Hostname == "" {
			return fmt.Errorf("ping item %q has no hostname", p.Alias)
		}
	}
	for _, p := range c.HDDTemperature.Items {
		if p.Enable && p.Path == "" {
			return fmt.Errorf("hdd_temperature item %q has no device", p.Alias)
		}
	}
	for _, p := range c.CPUTemperature {
		if p.Enable && p.Path == "" {
			return fmt.Errorf("cpu_temperature item %q has no path", p.Alias)
		}
	}
	for _, p := range c.HDDUsage {
		if p.Enable && p.Path == "" {
			return fmt.Errorf("hdd_usage item %q has no path", p.Alias)
		}
	}
	for _, p := range c.TCPPort {
		if p.Enable && (p.Hostname == "" || p.Port <= 0 || p.Port > 65535) {
			return fmt.Errorf("tcp_port item %q needs a hostname and a port in 1-65535", p.Alias)
		}
	}
	for _, p := range c.NSResolve {
		if p.Enable && p.Hostname == "" {
			return fmt.Errorf("ns_resolve item %q has no hostname", p.Alias)
		}
	}
	return nil
}

func unique[T any](section string, items []T, key func(T) string, on func(T) bool) error {
	seen := make(map[string]struct{}, len(items))
	for _, item := range items {
		if !on(item) {
			continue
		}
		k := key(item)
		if _, dup := seen[k]; dup {
			return fmt.Errorf("%s has duplicate item %q", section, k)
		}
		seen[k] = struct{}{}
	}
	return nil
}

func enabled[T any](items []T, on func(T) bool) []T {
	var out []T
	for _, item := range items {
		if on(item) {
			out = append(out, item)
		}
	}
	return out
}
