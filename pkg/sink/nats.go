package sink

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/divertsy/beacon-scanner/internal/log"
	"github.com/divertsy/beacon-scanner/pkg/frame"
)

const DefaultSubject = "divertsy.weights"

// Publisher is the subset of *nats.Conn used by the NATS sink.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// WeightMessage is the JSON payload published for each reading.
type WeightMessage struct {
	Weight   float64    `json:"weight"`
	Unit     frame.Unit `json:"unit"`
	Name     string     `json:"name"`
	Negative bool       `json:"negative"`
	Text     string     `json:"text"`
	Received time.Time  `json:"received"`
}

// NATS publishes readings to a subject. Publishing is fire-and-forget: failures are logged and
// the reading is dropped.
type NATS struct {
	publisher Publisher
	subject   string
	conn      *nats.Conn
	clock     func() time.Time
}

func NewNATS(publisher Publisher, subject string) *NATS {
	if subject == "" {
		subject = DefaultSubject
	}
	return &NATS{publisher: publisher, subject: subject, clock: time.Now}
}

// DialNATS connects to the server at url, authenticating with token if it is not empty. The
// connection reconnects indefinitely; Close drains it.
func DialNATS(url, subject, token string) (*NATS, error) {
	options := []nats.Option{
		nats.Name("beacon-scanner"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warning("Disconnected from NATS: %s", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("Reconnected to NATS at %s", nc.ConnectedUrl())
		}),
	}
	if token != "" {
		options = append(options, nats.Token(token))
	}
	conn, err := nats.Connect(url, options...)
	if err != nil {
		return nil, fmt.Errorf("sink: failed to connect to NATS at %s: %w", url, err)
	}
	n := NewNATS(conn, subject)
	n.conn = conn
	return n, nil
}

func (n *NATS) PublishWeight(reading frame.WeightReading) {
	payload, err := json.Marshal(WeightMessage{
		Weight:   reading.Value,
		Unit:     reading.Unit,
		Name:     reading.Device,
		Negative: reading.Negative,
		Text:     reading.Text,
		Received: n.clock().UTC(),
	})
	if err != nil {
		log.Error("Failed to encode weight reading: %s", err)
		return
	}
	if err := n.publisher.Publish(n.subject, payload); err != nil {
		log.Warning("Failed to publish weight reading to %s: %s", n.subject, err)
		return
	}
	log.Debug("Published %s to %s", reading, n.subject)
}

// Close drains the connection opened by DialNATS. It has no effect on a NATS sink created with
// NewNATS.
func (n *NATS) Close() error {
	if n.conn == nil {
		return nil
	}
	return n.conn.Drain()
}
