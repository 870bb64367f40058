package sensors

import (
	"context"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/illmade-knight/go-hostwatch/pkg/measurement"
)

// driveTemperature is one record of a hddtemp daemon answer.
type driveTemperature struct {
	device  string
	model   string
	celsius float64
}

// parseHDDTemp parses the daemon format "|/dev/sda|Model|40|C||/dev/sdb|...|".
// Drives that are asleep or report no value are left out.
func parseHDDTemp(raw string) ([]driveTemperature, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	if !strings.HasPrefix(raw, "|") || !strings.HasSuffix(raw, "|") {
		return nil, fmt.Errorf("malformed hddtemp answer %q", raw)
	}
	var out []driveTemperature
	for _, rec := range strings.Split(strings.Trim(raw, "|"), "||") {
		fields := strings.Split(rec, "|")
		if len(fields) != 4 {
			return nil, fmt.Errorf("malformed hddtemp record %q", rec)
		}
		v, err := strconv.ParseFloat(fields[2], 64)
		if err != nil {
			// NA, SLP, UNK and ERR mark drives without a reading.
			continue
		}
		switch fields[3] {
		case "C":
		case "F":
			v = (v - 32) * 5 / 9
		default:
			continue
		}
		out = append(out, driveTemperature{device: fields[0], model: fields[1], celsius: v})
	}
	return out, nil
}

func queryHDDTemp(ctx context.Context, address string, timeout time.Duration) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", address)
	if err != nil {
		return "", fmt.Errorf("failed to dial hddtemp at %s: %w", address, err)
	}
	defer conn.Close()
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetReadDeadline(deadline)
	}
	b, err := io.ReadAll(conn)
	if err != nil {
		return "", fmt.Errorf("failed to read hddtemp answer: %w", err)
	}
	return string(b), nil
}

// hddTemperature queries the daemon once and emits every enabled device it
// reports. Devices missing from the answer are skipped.
func (s *Sensors) hddTemperature(ctx context.Context, cfg HDDTemperatureConfig) error {
	raw, err := queryHDDTemp(ctx, cfg.Address, cfg.Timeout)
	if err != nil {
		return err
	}
	drives, err := parseHDDTemp(raw)
	if err != nil {
		return err
	}
	byDevice := make(map[string]driveTemperature, len(drives))
	for _, d := range drives {
		byDevice[d.device] = d
	}

	now := s.clock.Now().UTC()
	for _, item := range cfg.Items {
		if !item.Enable {
			continue
		}
		d, ok := byDevice[item.Path]
		if !ok {
			continue
		}
		alias := item.alias()
		if err := s.emit(ctx,
			&measurement.HDDTemperature{
				Timestamp:   now,
				Hostname:    s.hostname,
				HDD:         d.device,
				Alias:       alias,
				Temperature: d.celsius,
			},
			reading("hdd/"+alias+"/temperature/celsius", fmt.Sprintf("%.1f", d.celsius)),
			reading("hdd/"+alias+"/temperature", fmt.Sprintf("%.1f°C", d.celsius)),
		); err != nil {
			return err
		}
	}
	return nil
}
