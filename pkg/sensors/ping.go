package sensors

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/illmade-knight/go-hostwatch/pkg/measurement"
	probing "github.com/prometheus-community/pro-bing"
)

// ErrNoReply is returned by a Pinger when no echo reply arrived in time.
var ErrNoReply = errors.New("no echo reply")

// Pinger sends one ICMP echo to host and returns the round trip time.
type Pinger interface {
	Ping(ctx context.Context, host string, timeout time.Duration) (time.Duration, error)
}

// WithPinger replaces the ICMP pinger of the ping sensor.
func WithPinger(p Pinger) Option {
	return func(s *Sensors) { s.pinger = p }
}

type icmpPinger struct {
	privileged bool
}

func (p icmpPinger) Ping(ctx context.Context, host string, timeout time.Duration) (time.Duration, error) {
	pinger, err := probing.NewPinger(host)
	if err != nil {
		return 0, err
	}
	pinger.Count = 1
	pinger.Timeout = timeout
	pinger.SetPrivileged(p.privileged)
	if err := pinger.RunWithContext(ctx); err != nil {
		return 0, fmt.Errorf("ping %s: %w", host, err)
	}
	stats := pinger.Statistics()
	if stats.PacketsRecv == 0 {
		return 0, ErrNoReply
	}
	return stats.AvgRtt, nil
}

// ping sends one echo to the item's host. A lost reply reports the timeout
// as round trip time.
func (s *Sensors) ping(ctx context.Context, item PingItem) error {
	rtt, err := s.pinger.Ping(ctx, item.Hostname, item.Timeout)
	status := measurement.PingSuccess
	var dnsErr *net.DNSError
	switch {
	case err == nil:
	case errors.Is(err, ErrNoReply):
		status, rtt = measurement.PingTimedOut, item.Timeout
	case errors.As(err, &dnsErr):
		status = measurement.PingDestinationHostUnreachable
	default:
		if ctx.Err() != nil {
			return ctx.Err()
		}
		status = measurement.PingUnknown
	}
	if err != nil {
		s.logger.Debug().Err(err).Str("target", item.Hostname).Msg("Ping failed.")
	}

	alias := item.alias()
	return s.emit(ctx,
		&measurement.Ping{
			Timestamp:     s.clock.Now().UTC(),
			Source:        s.hostname,
			Target:        item.Hostname,
			Alias:         alias,
			Status:        status,
			RoundtripTime: measurement.Duration(rtt),
			Timeout:       measurement.Duration(item.Timeout),
		},
		reading("ping/"+alias+"/status", status.String()),
		reading("ping/"+alias+"/timeout/milliseconds", strconv.FormatInt(item.Timeout.Milliseconds(), 10)),
		reading("ping/"+alias+"/rtt/milliseconds", strconv.FormatInt(rtt.Milliseconds(), 10)),
	)
}
