// Package sns implements the notification port on AWS SNS.
package sns

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"

	"github.com/driftwood-labs/driftsync/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.Notifier = (*Notifier)(nil)

// Notifier publishes alerts to an SNS topic. Severity rides along as a
// message attribute so subscribers can filter.
type Notifier struct {
	client   *sns.Client
	topicARN string
}

// NewNotifier creates an SNS-backed Notifier.
func NewNotifier(client *sns.Client, topicARN string) *Notifier {
	return &Notifier{client: client, topicARN: topicARN}
}

// Publish sends one alert. The body is serialized as JSON.
func (n *Notifier) Publish(ctx context.Context, severity driven.AlertSeverity, subject string, body map[string]any) error {
	message, err := json.MarshalIndent(body, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling alert body: %w", err)
	}

	_, err = n.client.Publish(ctx, &sns.PublishInput{
		TopicArn: aws.String(n.topicARN),
		Subject:  aws.String(subject),
		Message:  aws.String(string(message)),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"severity": {
				DataType:    aws.String("String"),
				StringValue: aws.String(string(severity)),
			},
		},
	})
	if err != nil {
		return fmt.Errorf("publishing alert: %w", err)
	}
	return nil
}
