package sensors_test

import (
	"context"
	"errors"
	"net"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/illmade-knight/go-hostwatch/pkg/eventbus"
	"github.com/illmade-knight/go-hostwatch/pkg/events"
	"github.com/illmade-knight/go-hostwatch/pkg/measurement"
	"github.com/illmade-knight/go-hostwatch/pkg/scheduler"
	"github.com/illmade-knight/go-hostwatch/pkg/sensors"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capture struct {
	mu           sync.Mutex
	measurements []measurement.Measurement
	readings     map[string]string
}

func (c *capture) byKind(k measurement.Kind) []measurement.Measurement {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []measurement.Measurement
	for _, m := range c.measurements {
		if m.Kind() == k {
			out = append(out, m)
		}
	}
	return out
}

func (c *capture) reading(sensor string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.readings[sensor]
	return v, ok
}

type harness struct {
	clock   *clockwork.FakeClock
	sched   *scheduler.Scheduler
	sensors *sensors.Sensors
	got     *capture
}

func newHarness(t *testing.T, opts ...sensors.Option) *harness {
	t.Helper()
	bus := eventbus.New(zerolog.Nop())
	clock := clockwork.NewFakeClock()
	sched := scheduler.New(nil, zerolog.Nop(), scheduler.WithClock(clock))
	s, err := sensors.New(bus, sched, "test-host", zerolog.Nop(), append([]sensors.Option{sensors.WithClock(clock)}, opts...)...)
	require.NoError(t, err)

	got := &capture{readings: make(map[string]string)}
	eventbus.Subscribe(bus, func(_ context.Context, e events.OutboundMeasurement) error {
		got.mu.Lock()
		defer got.mu.Unlock()
		got.measurements = append(got.measurements, e.Item)
		return nil
	})
	eventbus.Subscribe(bus, func(_ context.Context, e events.SensorReading) error {
		got.mu.Lock()
		defer got.mu.Unlock()
		got.readings[e.Sensor] = e.Value
		return nil
	})
	return &harness{clock: clock, sched: sched, sensors: s, got: got}
}

// tick runs the scheduler for one scan interval of d.
func (h *harness) tick(t *testing.T, d time.Duration) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		h.sched.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	waitCtx, waitCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer waitCancel()
	require.NoError(t, h.clock.BlockUntilContext(waitCtx, 1))
	h.clock.Advance(d)
}

func TestNew_Validation(t *testing.T) {
	bus := eventbus.New(zerolog.Nop())
	sched := scheduler.New(nil, zerolog.Nop())
	_, err := sensors.New(nil, sched, "h", zerolog.Nop())
	assert.Error(t, err)
	_, err = sensors.New(bus, sched, "", zerolog.Nop())
	assert.Error(t, err)
}

func TestRegister(t *testing.T) {
	t.Run("nothing enabled", func(t *testing.T) {
		h := newHarness(t)
		n, err := h.sensors.Register(sensors.Config{
			CPUTemperature: []sensors.PathItem{{Path: "/tmp/x"}},
		})
		require.NoError(t, err)
		assert.Equal(t, 0, n)
	})

	t.Run("invalid item", func(t *testing.T) {
		h := newHarness(t)
		_, err := h.sensors.Register(sensors.Config{
			TCPPort: []sensors.TCPPortItem{{Enable: true, Hostname: "db"}},
		})
		assert.Error(t, err)
	})

	t.Run("counts enabled items", func(t *testing.T) {
		h := newHarness(t)
		n, err := h.sensors.Register(sensors.Config{
			Heartbeat: sensors.Toggle{Enable: true},
			NSResolve: []sensors.NSResolveItem{
				{Enable: true, Hostname: "a.example"},
				{Enable: true, Hostname: "b.example"},
				{Hostname: "c.example"},
			},
		})
		require.NoError(t, err)
		assert.Equal(t, 3, n)
	})

	t.Run("duplicate alias and target", func(t *testing.T) {
		h := newHarness(t)
		_, err := h.sensors.Register(sensors.Config{
			TCPPort: []sensors.TCPPortItem{
				{Enable: true, Alias: "db", Hostname: "db", Port: 5432},
				{Enable: true, Alias: "db", Hostname: "db", Port: 5432},
			},
		})
		assert.ErrorContains(t, err, "duplicate")
	})

	t.Run("same target under two aliases", func(t *testing.T) {
		h := newHarness(t)
		n, err := h.sensors.Register(sensors.Config{
			TCPPort: []sensors.TCPPortItem{
				{Enable: true, Alias: "primary", Hostname: "db", Port: 5432},
				{Enable: true, Alias: "replica-check", Hostname: "db", Port: 5432},
			},
		})
		require.NoError(t, err)
		assert.Equal(t, 2, n)
	})

	t.Run("daemon backed sensors", func(t *testing.T) {
		h := newHarness(t)
		n, err := h.sensors.Register(sensors.Config{
			Ping: []sensors.PingItem{{Enable: true, Hostname: "gw"}},
			HDDTemperature: sensors.HDDTemperatureConfig{
				Items: []sensors.PathItem{{Enable: true, Path: "/dev/sda"}, {Enable: true, Path: "/dev/sdb"}},
			},
			UPS: sensors.UPSConfig{Enable: true},
		})
		require.NoError(t, err)
		assert.Equal(t, 3, n, "hdd temperature devices share one scan")
	})
}

func TestHostSensors(t *testing.T) {
	// Arrange
	proc := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(proc, "loadavg"), []byte("0.50 0.40 0.30 1/123 4567\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(proc, "uptime"), []byte("93784.50 1000.00\n"), 0o644))
	h := newHarness(t, sensors.WithProcRoot(proc))
	_, err := h.sensors.Register(sensors.Config{
		Heartbeat: sensors.Toggle{Enable: true},
		Load:      sensors.Toggle{Enable: true},
		Uptime:    sensors.Toggle{Enable: true, ScanRate: time.Second},
	})
	require.NoError(t, err)

	// Act
	h.tick(t, time.Second)

	// Assert
	require.Eventually(t, func() bool {
		return len(h.got.byKind(measurement.KindUptime)) == 1 &&
			len(h.got.byKind(measurement.KindLoad)) == 1 &&
			len(h.got.byKind(measurement.KindHeartbeat)) == 1
	}, time.Second, 5*time.Millisecond)

	load := h.got.byKind(measurement.KindLoad)[0].(*measurement.Load)
	assert.Equal(t, "test-host", load.Hostname)
	assert.Equal(t, 0.5, load.LastOneMinute)
	assert.Equal(t, 0.3, load.LastFifteenMinutes)
	v, _ := h.got.reading("load")
	assert.Equal(t, "0.50, 0.40, 0.30", v)

	up := h.got.byKind(measurement.KindUptime)[0].(*measurement.Uptime)
	assert.Equal(t, 93784500*time.Millisecond, up.Total.Std())
	assert.Equal(t, "1 days, 02:03:04", up.TotalHumanReadable)
	assert.True(t, up.Since.Equal(up.Timestamp.Add(-up.Total.Std())))
	since, ok := h.got.reading("uptime/since")
	assert.True(t, ok)
	assert.Contains(t, since, "ago")

	_, ok = h.got.reading("heartbeat")
	assert.True(t, ok)
}

func TestCPUTemperature(t *testing.T) {
	// Arrange
	zone := filepath.Join(t.TempDir(), "temp")
	require.NoError(t, os.WriteFile(zone, []byte("45678\n"), 0o644))
	h := newHarness(t)
	_, err := h.sensors.Register(sensors.Config{
		CPUTemperature: []sensors.PathItem{
			{Enable: true, Alias: "core0", Path: zone, ScanRate: time.Second},
			{Enable: true, Alias: "missing", Path: filepath.Join(t.TempDir(), "none"), ScanRate: time.Second},
		},
	})
	require.NoError(t, err)

	// Act
	h.tick(t, time.Second)

	// Assert
	require.Eventually(t, func() bool {
		_, ok := h.got.reading("cpu/core0/temperature")
		return ok
	}, time.Second, 5*time.Millisecond)
	temps := h.got.byKind(measurement.KindCPUTemperature)
	require.Len(t, temps, 1, "an unreadable zone does not stop the others")
	assert.InDelta(t, 45.678, temps[0].(*measurement.CPUTemperature).Temperature, 1e-9)
	v, _ := h.got.reading("cpu/core0/temperature/celsius")
	assert.Equal(t, "45.7", v)
	v, _ = h.got.reading("cpu/core0/temperature")
	assert.Equal(t, "45.7°C", v)
}

func TestHDDUsage(t *testing.T) {
	if runtime.GOOS != "linux" && runtime.GOOS != "darwin" && runtime.GOOS != "freebsd" {
		t.Skip("filesystem statistics are not supported on " + runtime.GOOS)
	}
	// Arrange
	h := newHarness(t)
	_, err := h.sensors.Register(sensors.Config{
		HDDUsage: []sensors.PathItem{{Enable: true, Alias: "tmp", Path: t.TempDir(), ScanRate: time.Second}},
	})
	require.NoError(t, err)

	// Act
	h.tick(t, time.Second)

	// Assert
	require.Eventually(t, func() bool {
		return len(h.got.byKind(measurement.KindHDDUsage)) == 1
	}, time.Second, 5*time.Millisecond)
	usage := h.got.byKind(measurement.KindHDDUsage)[0].(*measurement.HDDUsage)
	assert.Positive(t, usage.Total)
	assert.LessOrEqual(t, usage.Used, usage.Total)
	assert.NotEmpty(t, usage.TotalHumanReadable)
	for _, sensor := range []string{"size", "size/bytes", "used", "used/bytes", "available", "available/bytes"} {
		_, ok := h.got.reading("hdd/tmp/" + sensor)
		assert.True(t, ok, "missing reading %s", sensor)
	}
}

func TestTCPPort(t *testing.T) {
	// Arrange
	up, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = up.Close() })
	down, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	downPort := down.Addr().(*net.TCPAddr).Port
	require.NoError(t, down.Close())

	h := newHarness(t)
	_, err = h.sensors.Register(sensors.Config{
		TCPPort: []sensors.TCPPortItem{
			{Enable: true, Alias: "up", Hostname: "127.0.0.1", Port: up.Addr().(*net.TCPAddr).Port, ScanRate: time.Second},
			{Enable: true, Hostname: "127.0.0.1", Port: downPort, ScanRate: time.Second, Timeout: 500 * time.Millisecond},
		},
	})
	require.NoError(t, err)

	// Act
	h.tick(t, time.Second)

	// Assert
	require.Eventually(t, func() bool {
		return len(h.got.byKind(measurement.KindTCPPortState)) == 2
	}, 2*time.Second, 5*time.Millisecond)
	states := map[string]*measurement.TCPPortState{}
	for _, m := range h.got.byKind(measurement.KindTCPPortState) {
		s := m.(*measurement.TCPPortState)
		states[s.Alias] = s
	}
	require.Contains(t, states, "up")
	assert.Equal(t, measurement.TCPPortUp, states["up"].Status)
	assert.Equal(t, time.Second, states["up"].Timeout.Std(), "default timeout applies")

	downAlias := net.JoinHostPort("127.0.0.1", itoa(downPort))
	require.Contains(t, states, downAlias)
	assert.Equal(t, measurement.TCPPortDown, states[downAlias].Status)
	v, _ := h.got.reading("tcp-port/up/status")
	assert.Equal(t, "Up", v)
	v, _ = h.got.reading("tcp-port/up/timeout/milliseconds")
	assert.Equal(t, "1000", v)
}

type fakeResolver map[string][]string

func (r fakeResolver) LookupHost(_ context.Context, host string) ([]string, error) {
	addrs, ok := r[host]
	if !ok {
		return nil, errors.New("no such host")
	}
	return addrs, nil
}

func TestNSResolve(t *testing.T) {
	// Arrange
	h := newHarness(t, sensors.WithResolver(fakeResolver{
		"ok.example":    {"192.0.2.1"},
		"empty.example": {},
	}))
	_, err := h.sensors.Register(sensors.Config{
		NSResolve: []sensors.NSResolveItem{
			{Enable: true, Hostname: "ok.example", ScanRate: time.Second},
			{Enable: true, Hostname: "empty.example", ScanRate: time.Second},
			{Enable: true, Hostname: "nx.example", Alias: "nx", ScanRate: time.Second},
		},
	})
	require.NoError(t, err)

	// Act
	h.tick(t, time.Second)

	// Assert
	require.Eventually(t, func() bool {
		return len(h.got.byKind(measurement.KindNSResolve)) == 3
	}, time.Second, 5*time.Millisecond)
	status := map[string]measurement.NSResolveStatus{}
	for _, m := range h.got.byKind(measurement.KindNSResolve) {
		r := m.(*measurement.NSResolve)
		assert.Equal(t, "test-host", r.Source)
		status[r.Alias] = r.Status
	}
	assert.Equal(t, measurement.NSResolveSuccess, status["ok.example"])
	assert.Equal(t, measurement.NSResolveFailure, status["empty.example"])
	assert.Equal(t, measurement.NSResolveFailure, status["nx"])
}

func itoa(n int) string {
	return strconv.Itoa(n)
}
