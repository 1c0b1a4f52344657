// Package mqtt provides MQTT client connectivity for Gray Logic Groups.
//
// This package manages:
//   - Connection to Mosquitto broker with auto-reconnect
//   - Message publishing with QoS guarantees
//   - Topic subscriptions with wildcard support
//   - Last Will and Testament (LWT) for offline detection
//   - Connection health monitoring
//
// # Architecture
//
// Gray Logic uses MQTT as the internal message bus. Bridges publish entity
// state onto retained state topics; the groups service consumes those,
// recomputes composite group states, and republishes them on the same
// scheme. Commands flow the other way.
//
//	Protocol Bridges ↔ MQTT Broker ↔ Gray Logic Groups
//
// # Security Considerations
//
//   - TLS is required for production deployments (cfg.Broker.TLS=true)
//   - Credentials are validated against broker ACL
//   - Anonymous access is only for local development
//   - Message payloads are not encrypted beyond TLS transport
//
// # Performance Characteristics
//
//   - Connection: <1 second to local broker
//   - Publish latency: <10ms for QoS 1 to local broker
//   - Reconnect: Exponential backoff 1s-60s with jitter
//   - Message throughput: Broker-limited (typically 10K+ msg/sec)
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	// Subscribe to all entity state updates
//	err = client.Subscribe(mqtt.Topics{}.AllEntityStates(), 1,
//	    func(topic string, payload []byte) error {
//	        log.Printf("Received: %s = %s", topic, payload)
//	        return nil
//	    })
//
//	// Publish command
//	topic := mqtt.Topics{}.EntityCommand("light", "living_main")
//	client.Publish(topic, []byte(`{"service":"turn_on"}`), 1, false)
package mqtt
