// Package sensors implements the built-in producers of the agent. Each
// sensor registers its enabled items with the scheduler and, when due,
// publishes a typed measurement plus plain-text sensor readings on the bus.
package sensors

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/illmade-knight/go-hostwatch/pkg/eventbus"
	"github.com/illmade-knight/go-hostwatch/pkg/events"
	"github.com/illmade-knight/go-hostwatch/pkg/measurement"
	"github.com/illmade-knight/go-hostwatch/pkg/scheduler"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
)

// HostResolver looks up host names. *net.Resolver satisfies it.
type HostResolver interface {
	LookupHost(ctx context.Context, host string) ([]string, error)
}

// Sensors owns the built-in sensors of one host.
type Sensors struct {
	bus      *eventbus.Bus
	sched    *scheduler.Scheduler
	hostname string
	clock    clockwork.Clock
	procRoot string
	resolver HostResolver
	pinger   Pinger
	statfs   func(path string) (diskStats, error)
	logger   zerolog.Logger
}

// Option configures Sensors.
type Option func(*Sensors)

// WithClock replaces the wall clock used for timestamps and probe timing.
func WithClock(clock clockwork.Clock) Option {
	return func(s *Sensors) { s.clock = clock }
}

// WithProcRoot points the load and uptime sensors at another procfs mount.
func WithProcRoot(root string) Option {
	return func(s *Sensors) { s.procRoot = root }
}

// WithResolver replaces the resolver of the ns-resolve sensor.
func WithResolver(r HostResolver) Option {
	return func(s *Sensors) { s.resolver = r }
}

// New creates the sensors of hostname.
func New(bus *eventbus.Bus, sched *scheduler.Scheduler, hostname string, logger zerolog.Logger, opts ...Option) (*Sensors, error) {
	if bus == nil || sched == nil {
		return nil, errors.New("sensors: bus and scheduler are required")
	}
	if hostname == "" {
		return nil, errors.New("sensors: hostname is required")
	}
	s := &Sensors{
		bus:      bus,
		sched:    sched,
		hostname: hostname,
		clock:    clockwork.NewRealClock(),
		procRoot: "/proc",
		resolver: net.DefaultResolver,
		statfs:   statfs,
		logger:   logger.With().Str("component", "Sensors").Logger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Register registers every enabled sensor of cfg with the scheduler and
// returns the number of scheduled items.
func (s *Sensors) Register(cfg Config) (int, error) {
	if err := cfg.Validate(); err != nil {
		return 0, err
	}
	cfg = cfg.withDefaults()
	if s.pinger == nil {
		s.pinger = icmpPinger{privileged: cfg.PingPrivileged}
	}
	n := 0

	for _, t := range []struct {
		toggle Toggle
		fn     func(context.Context) error
	}{
		{cfg.Heartbeat, s.heartbeat},
		{cfg.Load, s.load},
		{cfg.Uptime, s.uptime},
	} {
		if !t.toggle.Enable {
			continue
		}
		fn := t.fn
		if _, err := scheduler.RegisterItem(s.sched, t.toggle, func(ctx context.Context, _ Toggle) error {
			return fn(ctx)
		}); err != nil {
			return n, fmt.Errorf("failed to register %s sensor: %w", t.toggle.name, err)
		}
		n++
	}

	register := func(name string, count int, err error) error {
		if err != nil {
			return fmt.Errorf("failed to register %s sensor: %w", name, err)
		}
		n += count
		return nil
	}
	if items := enabled(cfg.CPUTemperature, func(p PathItem) bool { return p.Enable }); len(items) > 0 {
		h, err := scheduler.RegisterItems(s.sched, items, eachItem(s, s.cpuTemperature))
		if err := register("cpu-temperature", len(h), err); err != nil {
			return n, err
		}
	}
	if items := enabled(cfg.HDDUsage, func(p PathItem) bool { return p.Enable }); len(items) > 0 {
		h, err := scheduler.RegisterItems(s.sched, items, eachItem(s, s.hddUsage))
		if err := register("hdd-usage", len(h), err); err != nil {
			return n, err
		}
	}
	if items := enabled(cfg.TCPPort, func(p TCPPortItem) bool { return p.Enable }); len(items) > 0 {
		h, err := scheduler.RegisterItems(s.sched, items, eachItem(s, s.tcpPort))
		if err := register("tcp-port", len(h), err); err != nil {
			return n, err
		}
	}
	if items := enabled(cfg.NSResolve, func(p NSResolveItem) bool { return p.Enable }); len(items) > 0 {
		h, err := scheduler.RegisterItems(s.sched, items, eachItem(s, s.nsResolve))
		if err := register("ns-resolve", len(h), err); err != nil {
			return n, err
		}
	}
	if items := enabled(cfg.Ping, func(p PingItem) bool { return p.Enable }); len(items) > 0 {
		h, err := scheduler.RegisterItems(s.sched, items, eachItem(s, s.ping))
		if err := register("ping", len(h), err); err != nil {
			return n, err
		}
	}
	if items := enabled(cfg.HDDTemperature.Items, func(p PathItem) bool { return p.Enable }); len(items) > 0 {
		_, err := scheduler.RegisterItem(s.sched, cfg.HDDTemperature, s.hddTemperature)
		if err := register("hdd-temperature", 1, err); err != nil {
			return n, err
		}
	}
	if cfg.UPS.Enable {
		_, err := scheduler.RegisterItem(s.sched, cfg.UPS, s.ups)
		if err := register("ups", 1, err); err != nil {
			return n, err
		}
	}

	s.logger.Info().Int("items", n).Msg("Sensors registered.")
	return n, nil
}

// eachItem runs fn for every due item; one failing item does not stop the
// others.
func eachItem[T scheduler.Scannable](s *Sensors, fn func(context.Context, T) error) func(context.Context, []T) error {
	return func(ctx context.Context, due []T) error {
		var errs []error
		for _, item := range due {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if err := fn(ctx, item); err != nil {
				s.logger.Warn().Err(err).Str("item", item.ScanKey()).Msg("Sensor reading failed.")
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	}
}

func (s *Sensors) emit(ctx context.Context, m measurement.Measurement, readings ...events.SensorReading) error {
	if err := s.bus.Publish(ctx, events.OutboundMeasurement{Item: m}); err != nil {
		return err
	}
	for _, r := range readings {
		if err := s.bus.Publish(ctx, r); err != nil {
			return err
		}
	}
	return nil
}

func reading(sensor, value string) events.SensorReading {
	return events.SensorReading{Sensor: sensor, Value: value}
}
