package measurement_test

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/illmade-knight/go-hostwatch/pkg/measurement"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindFromTopic(t *testing.T) {
	k, ok := measurement.KindFromTopic("event/measurement/load")
	require.True(t, ok)
	assert.Equal(t, measurement.KindLoad, k)

	_, ok = measurement.KindFromTopic("event/measurement/unknown")
	assert.False(t, ok)
	_, ok = measurement.KindFromTopic("event/measurement/load/extra")
	assert.False(t, ok)
	_, ok = measurement.KindFromTopic("sensors/host/load")
	assert.False(t, ok)
	_, ok = measurement.KindFromTopic("event/measurement/generic-json")
	assert.False(t, ok)
}

func TestNew_CoversEveryKind(t *testing.T) {
	for _, k := range append(measurement.Kinds, measurement.KindGenericJSON) {
		m, err := measurement.New(k)
		require.NoError(t, err, k)
		assert.Equal(t, k, m.Kind())
	}
	_, err := measurement.New("nope")
	assert.Error(t, err)
}

func TestDecode_Ping(t *testing.T) {
	payload := []byte(`{
		"Timestamp": "2024-03-01T10:00:00Z",
		"Source": "agent-1",
		"Target": "8.8.8.8",
		"Alias": "google-dns",
		"Status": "TimedOut",
		"RoundtripTime": "00:00:00.0125000",
		"Timeout": "00:00:05"
	}`)

	m, err := measurement.Decode("event/measurement/ping", payload)
	require.NoError(t, err)

	ping, ok := m.(*measurement.Ping)
	require.True(t, ok)
	assert.Equal(t, measurement.PingTimedOut, ping.Status)
	assert.Equal(t, 12500*time.Microsecond, ping.RoundtripTime.Std())
	assert.Equal(t, 5*time.Second, ping.Timeout.Std())
	assert.Equal(t, "agent-1/google-dns", ping.Subject())

	params := map[string]any{}
	for _, p := range ping.Params() {
		params[p.Name] = p.Value
	}
	assert.Equal(t, "TimedOut", params["StatusAsText"])
	assert.Equal(t, 11010, params["Status"])
	assert.InDelta(t, 5.0, params["Timeout"], 1e-9)
	assert.InDelta(t, 0.0125, params["RoundtripTime"], 1e-9)
}

func TestDecode_NumericStatusAndSeconds(t *testing.T) {
	payload := []byte(`{"Source":"a","Target":"db","Port":5432,"Status":1,"After":0.25,"Timeout":"3s"}`)

	m, err := measurement.Decode("event/measurement/tcp-port-state", payload)
	require.NoError(t, err)

	tcp := m.(*measurement.TCPPortState)
	assert.Equal(t, measurement.TCPPortUp, tcp.Status)
	assert.Equal(t, 250*time.Millisecond, tcp.After.Std())
	assert.Equal(t, 3*time.Second, tcp.Timeout.Std())
}

func TestDecode_Errors(t *testing.T) {
	_, err := measurement.Decode("event/measurement/bogus", []byte(`{}`))
	assert.True(t, errors.Is(err, measurement.ErrUnknownTopic))

	_, err = measurement.Decode("event/measurement/load", []byte(`not json`))
	require.Error(t, err)
	assert.False(t, errors.Is(err, measurement.ErrUnknownTopic))
}

func TestDuration(t *testing.T) {
	testCases := []struct {
		in   string
		want time.Duration
	}{
		{"00:00:01", time.Second},
		{"01:02:03.5", time.Hour + 2*time.Minute + 3*time.Second + 500*time.Millisecond},
		{"2.00:00:00", 48 * time.Hour},
		{"-00:00:02", -2 * time.Second},
		{"1.5", 1500 * time.Millisecond},
		{"250ms", 250 * time.Millisecond},
	}
	for _, tc := range testCases {
		t.Run(tc.in, func(t *testing.T) {
			d, err := measurement.ParseDuration(tc.in)
			require.NoError(t, err)
			assert.Equal(t, tc.want, d.Std())
		})
	}

	assert.Equal(t, "00:00:01.5000000", measurement.Duration(1500*time.Millisecond).String())
	assert.Equal(t, "1.02:00:00", measurement.Duration(26*time.Hour).String())

	_, err := measurement.ParseDuration("")
	assert.Error(t, err)
	_, err = measurement.ParseDuration("aa:bb:cc")
	assert.Error(t, err)
}

func TestDuration_RejectsUnrepresentable(t *testing.T) {
	for _, in := range []string{"NaN", "Inf", "-Inf", "1e300", "9300000000", "-9300000000", "200000.00:00:00"} {
		t.Run(in, func(t *testing.T) {
			_, err := measurement.ParseDuration(in)
			assert.Error(t, err)
		})
	}

	for _, in := range []string{`1e300`, `-1e300`, `9300000000`} {
		t.Run("json "+in, func(t *testing.T) {
			var d measurement.Duration
			err := json.Unmarshal([]byte(in), &d)
			assert.Error(t, err)
			assert.Zero(t, d)
		})
	}

	d, err := measurement.ParseDuration("9000000000")
	require.NoError(t, err)
	assert.Equal(t, 9000000000*time.Second, d.Std(), "largest whole seconds still fit")
}

func TestUPSBattery_OptionalParams(t *testing.T) {
	charge := 87.5
	ups := &measurement.UPSBattery{Hostname: "nas", BatteryCharge: &charge}

	params := map[string]any{}
	for _, p := range ups.Params() {
		params[p.Name] = p.Value
	}
	assert.Equal(t, 87.5, params["BatteryCharge"])
	assert.Nil(t, params["TimeLeft"])
	assert.Nil(t, params["ManufacturingDate"])
}

func TestSnapshot(t *testing.T) {
	load := &measurement.Load{Hostname: "host-1", LastOneMinute: 0.5}
	rec := measurement.NewRecord(load, time.Unix(100, 0))

	snap, err := measurement.NewSnapshot(rec)
	require.NoError(t, err)
	assert.Equal(t, "load/host-1", snap.Key())

	var body map[string]any
	require.NoError(t, json.Unmarshal(snap.Body, &body))
	assert.Equal(t, 0.5, body["LastOneMinute"])
}

func TestDecodeGeneric(t *testing.T) {
	g, err := measurement.DecodeGeneric("home/sensor/1", "INSERT ...", []byte(`{"t":1}`), time.Now())
	require.NoError(t, err)
	assert.Equal(t, measurement.KindGenericJSON, g.Kind())
	assert.JSONEq(t, `{"t":1}`, string(g.Payload))

	_, err = measurement.DecodeGeneric("home/sensor/1", "", []byte(`{`), time.Now())
	assert.Error(t, err)
}
