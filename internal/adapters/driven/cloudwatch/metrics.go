// Package cloudwatch implements the metrics port on AWS CloudWatch.
package cloudwatch

import (
	"context"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"github.com/driftwood-labs/driftsync/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.MetricsEmitter = (*Emitter)(nil)

// putTimeout bounds one PutMetricData call; emission must never stall the
// pipeline.
const putTimeout = 10 * time.Second

// Emitter publishes datapoints to a CloudWatch namespace. Emission is best
// effort: backend failures are logged and swallowed.
type Emitter struct {
	client    *cloudwatch.Client
	namespace string
	logger    *slog.Logger
}

// NewEmitter creates a CloudWatch-backed Emitter.
func NewEmitter(client *cloudwatch.Client, namespace string, logger *slog.Logger) *Emitter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Emitter{client: client, namespace: namespace, logger: logger}
}

// Emit publishes the datapoints in one call.
func (e *Emitter) Emit(metrics ...driven.Metric) {
	if len(metrics) == 0 {
		return
	}

	now := time.Now().UTC()
	data := make([]types.MetricDatum, 0, len(metrics))
	for _, m := range metrics {
		datum := types.MetricDatum{
			MetricName: aws.String(m.Name),
			Value:      aws.Float64(m.Value),
			Unit:       types.StandardUnit(m.Unit),
			Timestamp:  aws.Time(now),
		}
		for name, value := range m.Dimensions {
			datum.Dimensions = append(datum.Dimensions, types.Dimension{
				Name:  aws.String(name),
				Value: aws.String(value),
			})
		}
		data = append(data, datum)
	}

	ctx, cancel := context.WithTimeout(context.Background(), putTimeout)
	defer cancel()

	_, err := e.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace:  aws.String(e.namespace),
		MetricData: data,
	})
	if err != nil {
		e.logger.Warn("failed to publish metrics", "count", len(data), "error", err)
	}
}
