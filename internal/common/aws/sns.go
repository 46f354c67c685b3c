// internal/common/aws/sns.go
package aws

import (
	"context"
	"errors"
	"fmt"

	"followup-orchestrator/internal/models"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"
)

type SNSService interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// SNSTransport delivers the text body of a follow-up as an SMS.
type SNSTransport struct {
	client   SNSService
	senderID string
}

func NewSNSTransport(ctx context.Context, region, senderID string) (*SNSTransport, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return NewSNSTransportWithClient(sns.NewFromConfig(cfg), senderID), nil
}

func NewSNSTransportWithClient(client SNSService, senderID string) *SNSTransport {
	return &SNSTransport{client: client, senderID: senderID}
}

func (t *SNSTransport) Name() string { return "sms" }

func (t *SNSTransport) Send(ctx context.Context, recipient string, msg models.OutboundMessage) error {
	if recipient == "" {
		return errors.New("recipient phone is empty")
	}
	if msg.Text == "" {
		return errors.New("sms body is empty")
	}

	input := &sns.PublishInput{
		PhoneNumber: awssdk.String(recipient),
		Message:     awssdk.String(msg.Text),
	}
	if t.senderID != "" {
		input.MessageAttributes = map[string]types.MessageAttributeValue{
			"AWS.SNS.SMS.SenderID": {
				DataType:    awssdk.String("String"),
				StringValue: awssdk.String(t.senderID),
			},
		}
	}

	if _, err := t.client.Publish(ctx, input); err != nil {
		return fmt.Errorf("sns publish: %w", err)
	}
	return nil
}
