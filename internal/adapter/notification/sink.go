package notification

import (
	"fmt"
	"net/http"

	"moneyflow/config"
	"moneyflow/internal/core/ports"
)

// Sink is a NotificationSink that owns resources released at shutdown.
type Sink interface {
	ports.NotificationSink
	Close() error
}

// New builds the sink selected by cfg.Driver.
func New(cfg config.NotificationConfig, sigSvc ports.SignatureService) (Sink, error) {
	switch cfg.Driver {
	case "http", "":
		if cfg.URL == "" {
			return nil, fmt.Errorf("notification.url is required for the http driver")
		}
		client := &http.Client{Timeout: cfg.Timeout}
		return closer{NewHTTPSink(cfg.URL, cfg.Secret, sigSvc, client)}, nil
	case "kafka":
		brokers := cfg.Kafka.BrokerList()
		if len(brokers) == 0 {
			return nil, fmt.Errorf("notification.kafka.brokers is required for the kafka driver")
		}
		return NewKafkaSink(brokers, cfg.Kafka.Topic), nil
	default:
		return nil, fmt.Errorf("unknown notification driver %q", cfg.Driver)
	}
}

type closer struct {
	ports.NotificationSink
}

func (closer) Close() error { return nil }
