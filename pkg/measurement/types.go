package measurement

import (
	"encoding/json"
	"time"
)

// Param is a named value bound into an insert statement.
type Param struct {
	Name  string
	Value any
}

// Measurement is implemented by every concrete measurement type.
type Measurement interface {
	// Kind is the measurement's kind; it also names its topic.
	Kind() Kind
	// ObservedAt is when the reading was taken.
	ObservedAt() time.Time
	// Subject identifies what was measured within the kind, for example the
	// host, disk or probe alias. It keys the latest-value cache.
	Subject() string
	// Params returns the named statement parameters in a fixed order.
	// Timestamps are local time and durations are float seconds.
	Params() []Param
}

type CPUTemperature struct {
	Timestamp   time.Time `json:"Timestamp"`
	Hostname    string    `json:"Hostname"`
	CPU         string    `json:"Cpu"`
	Alias       string    `json:"Alias"`
	Temperature float64   `json:"Temperature"`
}

func (m *CPUTemperature) Kind() Kind            { return KindCPUTemperature }
func (m *CPUTemperature) ObservedAt() time.Time { return m.Timestamp }
func (m *CPUTemperature) Subject() string       { return subject(m.Hostname, m.Alias) }
func (m *CPUTemperature) Params() []Param {
	return []Param{
		{"Timestamp", m.Timestamp.Local()},
		{"Hostname", m.Hostname},
		{"Alias", m.Alias},
		{"Cpu", m.CPU},
		{"Temperature", m.Temperature},
	}
}

type HDDTemperature struct {
	Timestamp   time.Time `json:"Timestamp"`
	Hostname    string    `json:"Hostname"`
	HDD         string    `json:"Hdd"`
	Alias       string    `json:"Alias"`
	Temperature float64   `json:"Temperature"`
}

func (m *HDDTemperature) Kind() Kind            { return KindHDDTemperature }
func (m *HDDTemperature) ObservedAt() time.Time { return m.Timestamp }
func (m *HDDTemperature) Subject() string       { return subject(m.Hostname, m.Alias) }
func (m *HDDTemperature) Params() []Param {
	return []Param{
		{"Timestamp", m.Timestamp.Local()},
		{"Hostname", m.Hostname},
		{"Alias", m.Alias},
		{"Hdd", m.HDD},
		{"Temperature", m.Temperature},
	}
}

type HDDUsage struct {
	Timestamp              time.Time `json:"Timestamp"`
	Hostname               string    `json:"Hostname"`
	HDD                    string    `json:"Hdd"`
	Alias                  string    `json:"Alias"`
	Total                  int64     `json:"Total"`
	Available              int64     `json:"Available"`
	Used                   int64     `json:"Used"`
	TotalHumanReadable     string    `json:"TotalHumanReadable"`
	AvailableHumanReadable string    `json:"AvailableHumanReadable"`
	UsedHumanReadable      string    `json:"UsedHumanReadable"`
}

func (m *HDDUsage) Kind() Kind            { return KindHDDUsage }
func (m *HDDUsage) ObservedAt() time.Time { return m.Timestamp }
func (m *HDDUsage) Subject() string       { return subject(m.Hostname, m.Alias) }
func (m *HDDUsage) Params() []Param {
	return []Param{
		{"Timestamp", m.Timestamp.Local()},
		{"Alias", m.Alias},
		{"Hdd", m.HDD},
		{"Hostname", m.Hostname},
		{"Available", m.Available},
		{"Used", m.Used},
		{"Total", m.Total},
	}
}

type Heartbeat struct {
	Timestamp time.Time `json:"Timestamp"`
	Hostname  string    `json:"Hostname"`
}

func (m *Heartbeat) Kind() Kind            { return KindHeartbeat }
func (m *Heartbeat) ObservedAt() time.Time { return m.Timestamp }
func (m *Heartbeat) Subject() string       { return m.Hostname }
func (m *Heartbeat) Params() []Param {
	return []Param{
		{"Timestamp", m.Timestamp.Local()},
		{"Hostname", m.Hostname},
	}
}

type Load struct {
	Timestamp          time.Time `json:"Timestamp"`
	Hostname           string    `json:"Hostname"`
	LastOneMinute      float64   `json:"LastOneMinute"`
	LastFiveMinutes    float64   `json:"LastFiveMinutes"`
	LastFifteenMinutes float64   `json:"LastFifteenMinutes"`
}

func (m *Load) Kind() Kind            { return KindLoad }
func (m *Load) ObservedAt() time.Time { return m.Timestamp }
func (m *Load) Subject() string       { return m.Hostname }
func (m *Load) Params() []Param {
	return []Param{
		{"Timestamp", m.Timestamp.Local()},
		{"Hostname", m.Hostname},
		{"LastOneMinute", m.LastOneMinute},
		{"LastFiveMinutes", m.LastFiveMinutes},
		{"LastFifteenMinutes", m.LastFifteenMinutes},
	}
}

type Ping struct {
	Timestamp     time.Time  `json:"Timestamp"`
	Source        string     `json:"Source"`
	Target        string     `json:"Target"`
	Alias         string     `json:"Alias"`
	Status        PingStatus `json:"Status"`
	RoundtripTime Duration   `json:"RoundtripTime"`
	Timeout       Duration   `json:"Timeout"`
}

func (m *Ping) Kind() Kind            { return KindPing }
func (m *Ping) ObservedAt() time.Time { return m.Timestamp }
func (m *Ping) Subject() string       { return subject(m.Source, m.Alias) }
func (m *Ping) Params() []Param {
	return []Param{
		{"Timestamp", m.Timestamp.Local()},
		{"Source", m.Source},
		{"Target", m.Target},
		{"Alias", m.Alias},
		{"StatusAsText", m.Status.String()},
		{"Status", int(m.Status)},
		{"Timeout", m.Timeout.Seconds()},
		{"RoundtripTime", m.RoundtripTime.Seconds()},
	}
}

type TCPPortState struct {
	Timestamp time.Time     `json:"Timestamp"`
	Source    string        `json:"Source"`
	Target    string        `json:"Target"`
	Port      int           `json:"Port"`
	Alias     string        `json:"Alias"`
	Status    TCPPortStatus `json:"Status"`
	After     Duration      `json:"After"`
	Timeout   Duration      `json:"Timeout"`
}

func (m *TCPPortState) Kind() Kind            { return KindTCPPortState }
func (m *TCPPortState) ObservedAt() time.Time { return m.Timestamp }
func (m *TCPPortState) Subject() string       { return subject(m.Source, m.Alias) }
func (m *TCPPortState) Params() []Param {
	return []Param{
		{"Timestamp", m.Timestamp.Local()},
		{"Source", m.Source},
		{"Target", m.Target},
		{"Port", m.Port},
		{"Alias", m.Alias},
		{"StatusAsText", m.Status.String()},
		{"Status", int(m.Status)},
		{"After", m.After.Seconds()},
		{"Timeout", m.Timeout.Seconds()},
	}
}

type Uptime struct {
	Timestamp          time.Time `json:"Timestamp"`
	Hostname           string    `json:"Hostname"`
	Since              time.Time `json:"Since"`
	Total              Duration  `json:"Total"`
	TotalHumanReadable string    `json:"TotalHumanReadable"`
}

func (m *Uptime) Kind() Kind            { return KindUptime }
func (m *Uptime) ObservedAt() time.Time { return m.Timestamp }
func (m *Uptime) Subject() string       { return m.Hostname }
func (m *Uptime) Params() []Param {
	return []Param{
		{"Timestamp", m.Timestamp.Local()},
		{"Hostname", m.Hostname},
		{"Since", m.Since.Local()},
		{"Total", m.Total.Seconds()},
	}
}

type NSResolve struct {
	Timestamp time.Time       `json:"Timestamp"`
	Source    string          `json:"Source"`
	Target    string          `json:"Target"`
	Alias     string          `json:"Alias"`
	Status    NSResolveStatus `json:"Status"`
	After     Duration        `json:"After"`
	Timeout   Duration        `json:"Timeout"`
}

func (m *NSResolve) Kind() Kind            { return KindNSResolve }
func (m *NSResolve) ObservedAt() time.Time { return m.Timestamp }
func (m *NSResolve) Subject() string       { return subject(m.Source, m.Alias) }
func (m *NSResolve) Params() []Param {
	return []Param{
		{"Timestamp", m.Timestamp.Local()},
		{"Source", m.Source},
		{"Target", m.Target},
		{"Alias", m.Alias},
		{"StatusAsText", m.Status.String()},
		{"Status", int(m.Status)},
		{"After", m.After.Seconds()},
		{"Timeout", m.Timeout.Seconds()},
	}
}

type DHT22 struct {
	Timestamp            time.Time `json:"Timestamp"`
	Hostname             string    `json:"Hostname"`
	Alias                string    `json:"Alias"`
	LastTemperature      float64   `json:"LastTemperature"`
	LastRelativeHumidity float64   `json:"LastRelativeHumidity"`
	IsLastReadSuccessful bool      `json:"IsLastReadSuccessful"`
	LastReadAge          Duration  `json:"LastReadAge"`
}

func (m *DHT22) Kind() Kind            { return KindDHT22 }
func (m *DHT22) ObservedAt() time.Time { return m.Timestamp }
func (m *DHT22) Subject() string       { return subject(m.Hostname, m.Alias) }
func (m *DHT22) Params() []Param {
	return []Param{
		{"Timestamp", m.Timestamp.Local()},
		{"Alias", m.Alias},
		{"Hostname", m.Hostname},
		{"IsLastReadSuccessful", m.IsLastReadSuccessful},
		{"LastReadAge", m.LastReadAge.Seconds()},
		{"LastRelativeHumidity", m.LastRelativeHumidity},
		{"LastTemperature", m.LastTemperature},
	}
}

type State struct {
	Timestamp  time.Time `json:"Timestamp"`
	Metric     string    `json:"Metric"`
	Status     int       `json:"Status"`
	StatusText string    `json:"StatusText"`
	Comment    string    `json:"Comment"`
}

func (m *State) Kind() Kind            { return KindState }
func (m *State) ObservedAt() time.Time { return m.Timestamp }
func (m *State) Subject() string       { return m.Metric }
func (m *State) Params() []Param {
	return []Param{
		{"Timestamp", m.Timestamp.Local()},
		{"Metric", m.Metric},
		{"Status", m.Status},
		{"StatusText", m.StatusText},
		{"Comment", m.Comment},
	}
}

type RationalNumber struct {
	Timestamp time.Time `json:"Timestamp"`
	Category  string    `json:"Category"`
	Metric    string    `json:"Metric"`
	Value     float64   `json:"Value"`
}

func (m *RationalNumber) Kind() Kind            { return KindRationalNumber }
func (m *RationalNumber) ObservedAt() time.Time { return m.Timestamp }
func (m *RationalNumber) Subject() string       { return subject(m.Category, m.Metric) }
func (m *RationalNumber) Params() []Param {
	return []Param{
		{"Timestamp", m.Timestamp.Local()},
		{"Metric", m.Metric},
		{"Category", m.Category},
		{"Value", m.Value},
	}
}

// UPSBattery carries apcupsd style battery state. Pointer fields are absent
// when the UPS does not report them.
type UPSBattery struct {
	Timestamp                     time.Time  `json:"Timestamp"`
	Age                           *Duration  `json:"Age,omitempty"`
	Hostname                      string     `json:"Hostname"`
	Model                         string     `json:"Model"`
	Alias                         string     `json:"Alias"`
	StatusText                    string     `json:"StatusText"`
	IsOnline                      bool       `json:"IsOnline"`
	IsOnBattery                   bool       `json:"IsOnBattery"`
	IsOnLowBattery                bool       `json:"IsOnLowBattery"`
	IsCommunicationLost           bool       `json:"IsCommunicationLost"`
	IsShuttingDown                bool       `json:"IsShuttingDown"`
	IsOverload                    bool       `json:"IsOverload"`
	IsBatteryReplacementRequested bool       `json:"IsBatteryReplacementRequested"`
	IsBatteryMissing              bool       `json:"IsBatteryMissing"`
	BatteryCharge                 *float64   `json:"BatteryCharge,omitempty"`
	TimeLeft                      *Duration  `json:"TimeLeft,omitempty"`
	MinBatteryCharge              *float64   `json:"MinBatteryCharge,omitempty"`
	MinTimeLeft                   *Duration  `json:"MinTimeLeft,omitempty"`
	CumulativeOnBattery           *Duration  `json:"CumulativeOnBattery,omitempty"`
	CurrentBatteryVoltage         *float64   `json:"CurrentBatteryVoltage,omitempty"`
	NominativeBatteryVoltage      *float64   `json:"NominativeBatteryVoltage,omitempty"`
	ManufacturingDate             *time.Time `json:"ManufacturingDate,omitempty"`
}

func (m *UPSBattery) Kind() Kind            { return KindUPSBattery }
func (m *UPSBattery) ObservedAt() time.Time { return m.Timestamp }
func (m *UPSBattery) Subject() string       { return subject(m.Hostname, m.Alias) }
func (m *UPSBattery) Params() []Param {
	return []Param{
		{"Timestamp", m.Timestamp.Local()},
		{"Age", optionalSeconds(m.Age)},
		{"Hostname", m.Hostname},
		{"Model", m.Model},
		{"Alias", m.Alias},
		{"StatusText", m.StatusText},
		{"IsOnline", m.IsOnline},
		{"IsOnBattery", m.IsOnBattery},
		{"IsOnLowBattery", m.IsOnLowBattery},
		{"IsCommunicationLost", m.IsCommunicationLost},
		{"IsShuttingDown", m.IsShuttingDown},
		{"IsOverload", m.IsOverload},
		{"IsBatteryReplacementRequested", m.IsBatteryReplacementRequested},
		{"IsBatteryMissing", m.IsBatteryMissing},
		{"BatteryCharge", optionalFloat(m.BatteryCharge)},
		{"TimeLeft", optionalSeconds(m.TimeLeft)},
		{"MinBatteryCharge", optionalFloat(m.MinBatteryCharge)},
		{"MinTimeLeft", optionalSeconds(m.MinTimeLeft)},
		{"CumulativeOnBattery", optionalSeconds(m.CumulativeOnBattery)},
		{"CurrentBatteryVoltage", optionalFloat(m.CurrentBatteryVoltage)},
		{"NominativeBatteryVoltage", optionalFloat(m.NominativeBatteryVoltage)},
		{"ManufacturingDate", optionalTime(m.ManufacturingDate)},
	}
}

// GenericJSON is an arbitrary JSON document received on a configured route.
// Statement is the route's insert statement.
type GenericJSON struct {
	Timestamp time.Time       `json:"Timestamp"`
	Topic     string          `json:"Topic"`
	Statement string          `json:"-"`
	Payload   json.RawMessage `json:"Payload"`
}

func (m *GenericJSON) Kind() Kind            { return KindGenericJSON }
func (m *GenericJSON) ObservedAt() time.Time { return m.Timestamp }
func (m *GenericJSON) Subject() string       { return m.Topic }
func (m *GenericJSON) Params() []Param {
	return []Param{
		{"Timestamp", m.Timestamp.Local()},
		{"Topic", m.Topic},
		{"Payload", string(m.Payload)},
	}
}

func subject(parts ...string) string {
	out := ""
	for _, p := range parts {
		if p == "" {
			continue
		}
		if out != "" {
			out += "/"
		}
		out += p
	}
	return out
}

func optionalSeconds(d *Duration) any {
	if d == nil {
		return nil
	}
	return d.Seconds()
}

func optionalFloat(f *float64) any {
	if f == nil {
		return nil
	}
	return *f
}

func optionalTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Local()
}
