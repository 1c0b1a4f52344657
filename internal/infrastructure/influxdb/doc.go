// Package influxdb provides InfluxDB connectivity for Gray Logic Groups.
//
// It wraps the official influxdb-client-go v2 library with Gray Logic-specific
// patterns for connection management, state history writing, and health monitoring.
//
// # Purpose
//
// This package handles time-series data storage for:
//   - Composite group state transitions
//   - Member entity state transitions
//
// # Usage
//
//	cfg := config.InfluxDBConfig{
//	    URL:    "http://localhost:8086",
//	    Token:  "your-token",
//	    Org:    "graylogic",
//	    Bucket: "states",
//	}
//
//	client, err := influxdb.Connect(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	// Record a group state transition
//	client.WriteGroupState("downstairs_lights", "on", 4, false)
//
// # Thread Safety
//
// All methods are safe for concurrent use from multiple goroutines.
// The underlying write API uses non-blocking batched writes.
//
// # Error Handling
//
// Write operations are non-blocking and batch errors are logged via a callback.
// Connection and health check errors are returned directly.
//
// # Performance
//
// Writes are batched according to config.yaml settings (batch_size, flush_interval).
// This reduces network overhead for high-frequency state churn.
package influxdb
