package measurement

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// PingStatus is the outcome of an ICMP echo. Values follow the IP status
// codes reported by existing agents.
type PingStatus int

const (
	PingUnknown                    PingStatus = -1
	PingSuccess                    PingStatus = 0
	PingDestinationNetUnreachable  PingStatus = 11002
	PingDestinationHostUnreachable PingStatus = 11003
	PingTimedOut                   PingStatus = 11010
	PingTTLExpired                 PingStatus = 11013
)

var pingStatusNames = map[PingStatus]string{
	PingUnknown:                    "Unknown",
	PingSuccess:                    "Success",
	PingDestinationNetUnreachable:  "DestinationNetworkUnreachable",
	PingDestinationHostUnreachable: "DestinationHostUnreachable",
	PingTimedOut:                   "TimedOut",
	PingTTLExpired:                 "TtlExpired",
}

func (s PingStatus) String() string { return enumName(pingStatusNames, s) }

func (s PingStatus) MarshalJSON() ([]byte, error) { return json.Marshal(s.String()) }

func (s *PingStatus) UnmarshalJSON(data []byte) error {
	return unmarshalEnum(data, pingStatusNames, s)
}

// TCPPortStatus is the reachability of a TCP port.
type TCPPortStatus int

const (
	TCPPortDown TCPPortStatus = 0
	TCPPortUp   TCPPortStatus = 1
)

var tcpPortStatusNames = map[TCPPortStatus]string{
	TCPPortDown: "Down",
	TCPPortUp:   "Up",
}

func (s TCPPortStatus) String() string { return enumName(tcpPortStatusNames, s) }

func (s TCPPortStatus) MarshalJSON() ([]byte, error) { return json.Marshal(s.String()) }

func (s *TCPPortStatus) UnmarshalJSON(data []byte) error {
	return unmarshalEnum(data, tcpPortStatusNames, s)
}

// NSResolveStatus is the outcome of a name lookup.
type NSResolveStatus int

const (
	NSResolveFailure NSResolveStatus = 0
	NSResolveSuccess NSResolveStatus = 1
)

var nsResolveStatusNames = map[NSResolveStatus]string{
	NSResolveFailure: "Failure",
	NSResolveSuccess: "Success",
}

func (s NSResolveStatus) String() string { return enumName(nsResolveStatusNames, s) }

func (s NSResolveStatus) MarshalJSON() ([]byte, error) { return json.Marshal(s.String()) }

func (s *NSResolveStatus) UnmarshalJSON(data []byte) error {
	return unmarshalEnum(data, nsResolveStatusNames, s)
}

func enumName[E ~int](names map[E]string, v E) string {
	if name, ok := names[v]; ok {
		return name
	}
	return strconv.Itoa(int(v))
}

// unmarshalEnum accepts either the symbolic name or the numeric value.
func unmarshalEnum[E ~int](data []byte, names map[E]string, dst *E) error {
	if len(data) > 0 && data[0] != '"' {
		n, err := strconv.Atoi(string(data))
		if err != nil {
			return fmt.Errorf("invalid status %s: %w", data, err)
		}
		*dst = E(n)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	for v, name := range names {
		if name == s {
			*dst = v
			return nil
		}
	}
	if n, err := strconv.Atoi(s); err == nil {
		*dst = E(n)
		return nil
	}
	return fmt.Errorf("unknown status %q", s)
}
