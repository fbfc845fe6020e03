// Package eventstreamutils builds event publishers by provider name.
package eventstreamutils

import (
	"fmt"
	"log/slog"

	"github.com/papercomputeco/tana-helper/pkg/eventstream"
	"github.com/papercomputeco/tana-helper/pkg/eventstream/kafka"
	"github.com/papercomputeco/tana-helper/pkg/eventstream/nop"
)

// Provider names accepted by NewPublisher.
const (
	ProviderNop   = "nop"
	ProviderKafka = "kafka"
)

type NewPublisherOpts struct {
	ProviderType string
	Brokers      []string
	Topic        string
	Logger       *slog.Logger
}

func NewPublisher(o *NewPublisherOpts) (eventstream.Publisher, error) {
	switch o.ProviderType {
	case ProviderNop, "":
		return nop.NewPublisher(), nil
	case ProviderKafka:
		return kafka.NewPublisher(kafka.Config{
			Brokers: o.Brokers,
			Topic:   o.Topic,
			Logger:  o.Logger,
		})
	default:
		return nil, fmt.Errorf("unsupported event stream provider: %s", o.ProviderType)
	}
}
