// Package componentregistry registers the producer backends shipped with the bridge.
package componentregistry

import (
	"errors"

	pkgerrors "github.com/c360/omprogbridge/errors"
	"github.com/c360/omprogbridge/producer"
	"github.com/c360/omprogbridge/producer/franz"
	"github.com/c360/omprogbridge/producer/jetstream"
	"github.com/c360/omprogbridge/producer/kafkago"
	"github.com/c360/omprogbridge/producer/sarama"
)

// Register adds every built-in backend to registry:
//   - jetstream (NATS JetStream, the default)
//   - kafka (segmentio/kafka-go)
//   - sarama (IBM/sarama)
//   - franz (twmb/franz-go)
func Register(registry *producer.Registry) error {
	// Nil registry is a programming error
	if registry == nil {
		return pkgerrors.WrapFatal(
			errors.New("registry cannot be nil"),
			"ComponentRegistry", "Register", "registry validation")
	}

	if err := jetstream.Register(registry); err != nil {
		return pkgerrors.WrapInvalid(err, "ComponentRegistry", "Register", "JetStream producer registration")
	}

	if err := kafkago.Register(registry); err != nil {
		return pkgerrors.WrapInvalid(err, "ComponentRegistry", "Register", "kafka-go producer registration")
	}

	if err := sarama.Register(registry); err != nil {
		return pkgerrors.WrapInvalid(err, "ComponentRegistry", "Register", "Sarama producer registration")
	}

	if err := franz.Register(registry); err != nil {
		return pkgerrors.WrapInvalid(err, "ComponentRegistry", "Register", "franz-go producer registration")
	}

	return nil
}

// NewRegistry returns a registry holding every built-in backend.
func NewRegistry() (*producer.Registry, error) {
	registry := producer.NewRegistry()
	if err := Register(registry); err != nil {
		return nil, err
	}
	return registry, nil
}
