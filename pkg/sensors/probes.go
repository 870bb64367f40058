package sensors

import (
	"context"
	"net"
	"strconv"

	"github.com/illmade-knight/go-hostwatch/pkg/measurement"
)

// tcpPort dials the item's endpoint. A failed or timed out dial is a Down
// reading, not an error.
func (s *Sensors) tcpPort(ctx context.Context, item TCPPortItem) error {
	dialCtx, cancel := context.WithTimeout(ctx, item.Timeout)
	defer cancel()

	start := s.clock.Now()
	status := measurement.TCPPortDown
	var d net.Dialer
	conn, err := d.DialContext(dialCtx, "tcp", net.JoinHostPort(item.Hostname, strconv.Itoa(item.Port)))
	if err == nil {
		status = measurement.TCPPortUp
		_ = conn.Close()
	} else {
		s.logger.Debug().Err(err).Str("target", item.address()).Msg("TCP port probe failed.")
	}
	elapsed := s.clock.Since(start)

	alias := item.alias()
	return s.emit(ctx,
		&measurement.TCPPortState{
			Timestamp: s.clock.Now().UTC(),
			Source:    s.hostname,
			Target:    item.Hostname,
			Port:      item.Port,
			Alias:     alias,
			Status:    status,
			After:     measurement.Duration(elapsed),
			Timeout:   measurement.Duration(item.Timeout),
		},
		reading("tcp-port/"+alias+"/timeout/milliseconds", strconv.FormatInt(item.Timeout.Milliseconds(), 10)),
		reading("tcp-port/"+alias+"/status", status.String()),
	)
}

// nsResolve looks the item's host name up. An empty answer counts as a
// failure.
func (s *Sensors) nsResolve(ctx context.Context, item NSResolveItem) error {
	lookupCtx, cancel := context.WithTimeout(ctx, item.Timeout)
	defer cancel()

	start := s.clock.Now()
	status := measurement.NSResolveFailure
	addrs, err := s.resolver.LookupHost(lookupCtx, item.Hostname)
	if err == nil && len(addrs) > 0 {
		status = measurement.NSResolveSuccess
	} else if err != nil {
		s.logger.Debug().Err(err).Str("target", item.Hostname).Msg("Name resolution failed.")
	}
	elapsed := s.clock.Since(start)

	alias := item.alias()
	return s.emit(ctx,
		&measurement.NSResolve{
			Timestamp: s.clock.Now().UTC(),
			Source:    s.hostname,
			Target:    item.Hostname,
			Alias:     alias,
			Status:    status,
			After:     measurement.Duration(elapsed),
			Timeout:   measurement.Duration(item.Timeout),
		},
		reading("ns-resolve/"+alias+"/status", status.String()),
	)
}
