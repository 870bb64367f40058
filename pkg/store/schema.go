package store

import "github.com/illmade-knight/go-hostwatch/pkg/measurement"

// DefaultSQLiteSchema creates one table per persisted kind. Heartbeat and
// uptime are not persisted by default.
const DefaultSQLiteSchema = `
CREATE TABLE IF NOT EXISTS cpu_temperature (
	timestamp TEXT NOT NULL, hostname TEXT, alias TEXT, cpu TEXT, temperature REAL
);
CREATE TABLE IF NOT EXISTS hdd_temperature (
	timestamp TEXT NOT NULL, hostname TEXT, alias TEXT, hdd TEXT, temperature REAL
);
CREATE TABLE IF NOT EXISTS hdd_usage (
	timestamp TEXT NOT NULL, hostname TEXT, alias TEXT, hdd TEXT,
	total INTEGER, available INTEGER, used INTEGER
);
CREATE TABLE IF NOT EXISTS load (
	timestamp TEXT NOT NULL, hostname TEXT,
	last_one_minute REAL, last_five_minutes REAL, last_fifteen_minutes REAL
);
CREATE TABLE IF NOT EXISTS ping (
	timestamp TEXT NOT NULL, source TEXT, target TEXT, alias TEXT,
	status INTEGER, status_text TEXT, roundtrip_time REAL, timeout REAL
);
CREATE TABLE IF NOT EXISTS tcp_port_state (
	timestamp TEXT NOT NULL, source TEXT, target TEXT, port INTEGER, alias TEXT,
	status INTEGER, status_text TEXT, after_seconds REAL, timeout REAL
);
CREATE TABLE IF NOT EXISTS ns_resolve (
	timestamp TEXT NOT NULL, source TEXT, target TEXT, alias TEXT,
	status INTEGER, status_text TEXT, after_seconds REAL, timeout REAL
);
CREATE TABLE IF NOT EXISTS dht22 (
	timestamp TEXT NOT NULL, hostname TEXT, alias TEXT,
	temperature REAL, relative_humidity REAL, read_successful INTEGER, read_age REAL
);
CREATE TABLE IF NOT EXISTS state (
	timestamp TEXT NOT NULL, metric TEXT, status INTEGER, status_text TEXT, comment TEXT
);
CREATE TABLE IF NOT EXISTS rational_number (
	timestamp TEXT NOT NULL, category TEXT, metric TEXT, value REAL
);
CREATE TABLE IF NOT EXISTS ups_battery (
	timestamp TEXT NOT NULL, hostname TEXT, alias TEXT, model TEXT, status_text TEXT,
	online INTEGER, on_battery INTEGER, battery_charge REAL, time_left REAL
);
`

// DefaultSQLiteStatements matches DefaultSQLiteSchema.
func DefaultSQLiteStatements() Statements {
	return Statements{
		measurement.KindCPUTemperature: `INSERT INTO cpu_temperature (timestamp, hostname, alias, cpu, temperature)
			VALUES (@Timestamp, @Hostname, @Alias, @Cpu, @Temperature)`,
		measurement.KindHDDTemperature: `INSERT INTO hdd_temperature (timestamp, hostname, alias, hdd, temperature)
			VALUES (@Timestamp, @Hostname, @Alias, @Hdd, @Temperature)`,
		measurement.KindHDDUsage: `INSERT INTO hdd_usage (timestamp, hostname, alias, hdd, total, available, used)
			VALUES (@Timestamp, @Hostname, @Alias, @Hdd, @Total, @Available, @Used)`,
		measurement.KindLoad: `INSERT INTO load (timestamp, hostname, last_one_minute, last_five_minutes, last_fifteen_minutes)
			VALUES (@Timestamp, @Hostname, @LastOneMinute, @LastFiveMinutes, @LastFifteenMinutes)`,
		measurement.KindPing: `INSERT INTO ping (timestamp, source, target, alias, status, status_text, roundtrip_time, timeout)
			VALUES (@Timestamp, @Source, @Target, @Alias, @Status, @StatusAsText, @RoundtripTime, @Timeout)`,
		measurement.KindTCPPortState: `INSERT INTO tcp_port_state (timestamp, source, target, port, alias, status, status_text, after_seconds, timeout)
			VALUES (@Timestamp, @Source, @Target, @Port, @Alias, @Status, @StatusAsText, @After, @Timeout)`,
		measurement.KindNSResolve: `INSERT INTO ns_resolve (timestamp, source, target, alias, status, status_text, after_seconds, timeout)
			VALUES (@Timestamp, @Source, @Target, @Alias, @Status, @StatusAsText, @After, @Timeout)`,
		measurement.KindDHT22: `INSERT INTO dht22 (timestamp, hostname, alias, temperature, relative_humidity, read_successful, read_age)
			VALUES (@Timestamp, @Hostname, @Alias, @LastTemperature, @LastRelativeHumidity, @IsLastReadSuccessful, @LastReadAge)`,
		measurement.KindState: `INSERT INTO state (timestamp, metric, status, status_text, comment)
			VALUES (@Timestamp, @Metric, @Status, @StatusText, @Comment)`,
		measurement.KindRationalNumber: `INSERT INTO rational_number (timestamp, category, metric, value)
			VALUES (@Timestamp, @Category, @Metric, @Value)`,
		measurement.KindUPSBattery: `INSERT INTO ups_battery (timestamp, hostname, alias, model, status_text, online, on_battery, battery_charge, time_left)
			VALUES (@Timestamp, @Hostname, @Alias, @Model, @StatusText, @IsOnline, @IsOnBattery, @BatteryCharge, @TimeLeft)`,
	}
}
