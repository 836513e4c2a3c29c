package mqtt

import (
	"context"
	"encoding/json"
	"path"

	"github.com/tphakala/seisnet-go/internal/detection"
	"github.com/tphakala/seisnet-go/internal/errors"
	"github.com/tphakala/seisnet-go/internal/logger"
	"github.com/tphakala/seisnet-go/internal/output"
)

// DetectionMessage is the JSON payload published per detection.
type DetectionMessage struct {
	RunID string `json:"run_id"`
	output.DetectionView
}

// Publisher sends catalogs over a Client.
type Publisher struct {
	client Client
	topic  string
	log    logger.Logger
}

// NewPublisher returns a Publisher writing below topic.
func NewPublisher(client Client, topic string, log logger.Logger) *Publisher {
	return &Publisher{
		client: client,
		topic:  path.Join(topic, DetectionsSubtopic),
		log:    logger.OrDiscard(log).Module(componentName),
	}
}

// Topic returns the detections topic.
func (p *Publisher) Topic() string {
	return p.topic
}

// PublishCatalog publishes one message per detection in catalog order and
// returns the number published. It stops at the first failure.
func (p *Publisher) PublishCatalog(ctx context.Context, runID string, catalog *detection.Catalog) (int, error) {
	if catalog.Len() == 0 {
		return 0, nil
	}
	if !p.client.IsConnected() {
		if err := p.client.Connect(ctx); err != nil {
			return 0, err
		}
	}

	for i := range catalog.Detections {
		msg := DetectionMessage{RunID: runID, DetectionView: output.NewDetectionView(&catalog.Detections[i])}
		payload, err := json.Marshal(msg)
		if err != nil {
			return i, errors.New(err).
				Component(componentName).
				Category(errors.CategoryGeneric).
				Context("detection_id", msg.ID).
				Build()
		}
		if err := p.client.Publish(ctx, p.topic, payload); err != nil {
			p.log.Error("failed to publish detection",
				logger.String("topic", p.topic),
				logger.String("detection_id", msg.ID),
				logger.Error(err))
			return i, err
		}
	}

	p.log.Info("catalog published",
		logger.String("topic", p.topic),
		logger.String("run_id", runID),
		logger.Int("detections", catalog.Len()))
	return catalog.Len(), nil
}
