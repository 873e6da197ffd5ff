// Package metrics ships security-event counters to InfluxDB.
//
// The sink is optional: when disabled, the audit trail simply runs without
// it. Losing a metric point is acceptable; losing an audit row is not,
// which is why the durable trail lives in SQLite and this package only
// mirrors coarse counters.
package metrics
