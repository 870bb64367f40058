package sensors

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/illmade-knight/go-hostwatch/pkg/measurement"
)

const heartbeatLayout = "2006-01-02T15:04:05.0000000"

func (s *Sensors) heartbeat(ctx context.Context) error {
	now := s.clock.Now().UTC()
	return s.emit(ctx,
		&measurement.Heartbeat{Timestamp: now, Hostname: s.hostname},
		reading("heartbeat", now.Format(heartbeatLayout)),
	)
}

func (s *Sensors) load(ctx context.Context) error {
	raw, err := os.ReadFile(filepath.Join(s.procRoot, "loadavg"))
	if err != nil {
		return fmt.Errorf("failed to read load average: %w", err)
	}
	fields := strings.Fields(string(raw))
	if len(fields) < 3 {
		return fmt.Errorf("unexpected loadavg content %q", strings.TrimSpace(string(raw)))
	}
	var avg [3]float64
	for i := range avg {
		if avg[i], err = strconv.ParseFloat(fields[i], 64); err != nil {
			return fmt.Errorf("failed to parse load average %q: %w", fields[i], err)
		}
	}
	return s.emit(ctx,
		&measurement.Load{
			Timestamp:          s.clock.Now().UTC(),
			Hostname:           s.hostname,
			LastOneMinute:      avg[0],
			LastFiveMinutes:    avg[1],
			LastFifteenMinutes: avg[2],
		},
		reading("load", strings.Join(fields[:3], ", ")),
	)
}

func (s *Sensors) uptime(ctx context.Context) error {
	raw, err := os.ReadFile(filepath.Join(s.procRoot, "uptime"))
	if err != nil {
		return fmt.Errorf("failed to read uptime: %w", err)
	}
	fields := strings.Fields(string(raw))
	if len(fields) == 0 {
		return fmt.Errorf("empty uptime file")
	}
	seconds, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return fmt.Errorf("failed to parse uptime %q: %w", fields[0], err)
	}

	now := s.clock.Now().UTC()
	total := time.Duration(seconds * float64(time.Second))
	since := now.Add(-total)
	text := formatUptime(total)
	return s.emit(ctx,
		&measurement.Uptime{
			Timestamp:          now,
			Hostname:           s.hostname,
			Since:              since,
			Total:              measurement.Duration(total),
			TotalHumanReadable: text,
		},
		reading("uptime", text),
		reading("uptime/since", humanize.RelTime(since, now, "ago", "from now")),
	)
}

// formatUptime renders d as "N days, hh:mm:ss".
func formatUptime(d time.Duration) string {
	days := int64(d / (24 * time.Hour))
	d -= time.Duration(days) * 24 * time.Hour
	h := int64(d / time.Hour)
	d -= time.Duration(h) * time.Hour
	m := int64(d / time.Minute)
	d -= time.Duration(m) * time.Minute
	sec := int64(d / time.Second)
	return fmt.Sprintf("%s days, %02d:%02d:%02d", humanize.Comma(days), h, m, sec)
}

// cpuTemperature reads a thermal zone file holding milli-degrees Celsius.
func (s *Sensors) cpuTemperature(ctx context.Context, item PathItem) error {
	raw, err := os.ReadFile(item.Path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", item.Path, err)
	}
	milli, err := strconv.ParseFloat(strings.TrimSpace(string(raw)), 64)
	if err != nil {
		return fmt.Errorf("failed to parse temperature in %s: %w", item.Path, err)
	}
	celsius := milli / 1000
	alias := item.alias()
	return s.emit(ctx,
		&measurement.CPUTemperature{
			Timestamp:   s.clock.Now().UTC(),
			Hostname:    s.hostname,
			CPU:         item.Path,
			Alias:       item.Alias,
			Temperature: celsius,
		},
		reading("cpu/"+alias+"/temperature/celsius", fmt.Sprintf("%.1f", celsius)),
		reading("cpu/"+alias+"/temperature", fmt.Sprintf("%.1f°C", celsius)),
	)
}

type diskStats struct {
	Total     uint64
	Available uint64
	Used      uint64
}

func (s *Sensors) hddUsage(ctx context.Context, item PathItem) error {
	st, err := s.statfs(item.Path)
	if err != nil {
		return fmt.Errorf("failed to stat filesystem %s: %w", item.Path, err)
	}
	alias := item.alias()
	m := &measurement.HDDUsage{
		Timestamp:              s.clock.Now().UTC(),
		Hostname:               s.hostname,
		HDD:                    item.Path,
		Alias:                  item.Alias,
		Total:                  int64(st.Total),
		Available:              int64(st.Available),
		Used:                   int64(st.Used),
		TotalHumanReadable:     humanize.IBytes(st.Total),
		AvailableHumanReadable: humanize.IBytes(st.Available),
		UsedHumanReadable:      humanize.IBytes(st.Used),
	}
	prefix := "hdd/" + alias
	return s.emit(ctx, m,
		reading(prefix+"/size/bytes", strconv.FormatUint(st.Total, 10)),
		reading(prefix+"/size", m.TotalHumanReadable),
		reading(prefix+"/used/bytes", strconv.FormatUint(st.Used, 10)),
		reading(prefix+"/used", m.UsedHumanReadable),
		reading(prefix+"/available/bytes", strconv.FormatUint(st.Available, 10)),
		reading(prefix+"/available", m.AvailableHumanReadable),
	)
}
