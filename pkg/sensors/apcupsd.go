package sensors

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/illmade-knight/go-hostwatch/pkg/events"
	"github.com/illmade-knight/go-hostwatch/pkg/measurement"
)

// queryApcupsd sends the "status" command to an apcupsd network information
// server and returns its KEY : value lines.
func queryApcupsd(ctx context.Context, address string, timeout time.Duration) (map[string]string, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, fmt.Errorf("failed to dial apcupsd at %s: %w", address, err)
	}
	defer conn.Close()
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	const cmd = "status"
	req := binary.BigEndian.AppendUint16(nil, uint16(len(cmd)))
	if _, err := conn.Write(append(req, cmd...)); err != nil {
		return nil, fmt.Errorf("failed to send apcupsd request: %w", err)
	}

	fields := make(map[string]string)
	r := bufio.NewReader(conn)
	for {
		var size uint16
		if err := binary.Read(r, binary.BigEndian, &size); err != nil {
			return nil, fmt.Errorf("failed to read apcupsd answer: %w", err)
		}
		if size == 0 {
			return fields, nil
		}
		line := make([]byte, size)
		if _, err := io.ReadFull(r, line); err != nil {
			return nil, fmt.Errorf("failed to read apcupsd answer: %w", err)
		}
		key, value, ok := strings.Cut(string(line), ":")
		if !ok {
			continue
		}
		fields[strings.TrimSpace(key)] = strings.TrimSpace(value)
	}
}

// leadingFloat parses the number in front of a unit, as in "13.5 Volts".
func leadingFloat(v string) (float64, bool) {
	f := strings.Fields(v)
	if len(f) == 0 {
		return 0, false
	}
	x, err := strconv.ParseFloat(f[0], 64)
	return x, err == nil
}

func optFloat(fields map[string]string, key string) *float64 {
	if x, ok := leadingFloat(fields[key]); ok {
		return &x
	}
	return nil
}

func optDuration(fields map[string]string, key string, unit time.Duration) *measurement.Duration {
	if x, ok := leadingFloat(fields[key]); ok {
		d := measurement.Duration(x * float64(unit))
		return &d
	}
	return nil
}

// upsBattery maps an apcupsd status record. now dates the Age of the record.
func upsBattery(fields map[string]string, hostname, alias string, now time.Time) (*measurement.UPSBattery, error) {
	status := fields["STATUS"]
	if status == "" {
		return nil, errors.New("apcupsd answer has no STATUS")
	}
	m := &measurement.UPSBattery{
		Timestamp:                     now.UTC(),
		Hostname:                      hostname,
		Model:                         fields["MODEL"],
		Alias:                         alias,
		StatusText:                    status,
		IsOnline:                      strings.Contains(status, "ONLINE"),
		IsOnBattery:                   strings.Contains(status, "ONBATT"),
		IsOnLowBattery:                strings.Contains(status, "LOWBATT"),
		IsCommunicationLost:           strings.Contains(status, "COMMLOST"),
		IsShuttingDown:                strings.Contains(status, "SHUTTING DOWN"),
		IsOverload:                    strings.Contains(status, "OVERLOAD"),
		IsBatteryReplacementRequested: strings.Contains(status, "REPLACEBATT"),
		IsBatteryMissing:              strings.Contains(status, "NOBATT"),
		BatteryCharge:                 optFloat(fields, "BCHARGE"),
		MinBatteryCharge:              optFloat(fields, "MBATTCHG"),
		CurrentBatteryVoltage:         optFloat(fields, "BATTV"),
		NominativeBatteryVoltage:      optFloat(fields, "NOMBATTV"),
		TimeLeft:                      optDuration(fields, "TIMELEFT", time.Minute),
		MinTimeLeft:                   optDuration(fields, "MINTIMEL", time.Minute),
		CumulativeOnBattery:           optDuration(fields, "CUMONBATT", time.Second),
	}
	if v := fields["DATE"]; len(v) >= 19 {
		if ts, err := time.ParseInLocation(time.DateTime, v[:19], time.Local); err == nil {
			age := measurement.Duration(now.Sub(ts))
			m.Age = &age
		}
	}
	if v := fields["MANDATE"]; v != "" {
		if d, err := time.Parse(time.DateOnly, v); err == nil {
			m.ManufacturingDate = &d
		}
	}
	return m, nil
}

func (s *Sensors) ups(ctx context.Context, cfg UPSConfig) error {
	fields, err := queryApcupsd(ctx, cfg.Address, cfg.Timeout)
	if err != nil {
		return err
	}
	m, err := upsBattery(fields, s.hostname, cfg.Alias, s.clock.Now())
	if err != nil {
		return err
	}
	readings := []events.SensorReading{reading("ups/"+cfg.Alias+"/status", m.StatusText)}
	if m.BatteryCharge != nil {
		readings = append(readings, reading("ups/"+cfg.Alias+"/battery/charge/percent", strconv.FormatFloat(*m.BatteryCharge, 'f', 1, 64)))
	}
	if m.TimeLeft != nil {
		readings = append(readings, reading("ups/"+cfg.Alias+"/timeleft/minutes", strconv.FormatFloat(m.TimeLeft.Std().Minutes(), 'f', 1, 64)))
	}
	return s.emit(ctx, m, readings...)
}
