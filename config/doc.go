// Package config loads the bridge configuration from YAML files and the environment.
//
// Loading starts from Default(), decodes each file layer over it in order, then
// applies OMPROG_BRIDGE_* environment overrides. Fields a layer does not mention
// keep their previous value; unknown keys are rejected so that a typo in a
// production file fails at startup instead of silently using a default.
//
// # Basic Usage
//
//	loader := config.NewLoader()
//	loader.AddLayer("/etc/omprog-bridge/base.yaml")
//	loader.AddLayer("/etc/omprog-bridge/site.yaml") // Overrides base
//
//	cfg, err := loader.Load()
//	if err != nil {
//		return err
//	}
//
// # Environment Overrides
//
//	OMPROG_BRIDGE_PRODUCER_TYPE    producer.type
//	OMPROG_BRIDGE_PRODUCER_TOPIC   producer.topic
//	OMPROG_BRIDGE_NATS_URLS        producer.urls (comma separated)
//	OMPROG_BRIDGE_KAFKA_BROKERS    producer.brokers (comma separated)
//	OMPROG_BRIDGE_USERNAME         producer.username
//	OMPROG_BRIDGE_PASSWORD         producer.password
//	OMPROG_BRIDGE_TOKEN            producer.token
//
// # File Safety
//
// Only regular .yaml/.yml files up to 1MB are read. Relative paths must resolve
// inside the working directory.
//
// # Validation
//
// Validate returns an Invalid-class error wrapping errors.ErrInvalidConfig. A
// missing layer is reported as errors.ErrConfigNotFound so callers can decide
// whether running on defaults is acceptable.
package config
