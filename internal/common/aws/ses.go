// internal/common/aws/ses.go
package aws

import (
	"context"
	"errors"
	"fmt"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
)

// SESService is the slice of the SES client used here, for mocking.
type SESService interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

// SESAlerter e-mails operational alerts to a fixed recipient list.
type SESAlerter struct {
	client     SESService
	from       string
	recipients []string
}

func NewSESAlerter(ctx context.Context, region, from string, recipients []string) (*SESAlerter, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return NewSESAlerterWithClient(ses.NewFromConfig(cfg), from, recipients), nil
}

func NewSESAlerterWithClient(client SESService, from string, recipients []string) *SESAlerter {
	return &SESAlerter{client: client, from: from, recipients: recipients}
}

func (a *SESAlerter) Alert(ctx context.Context, subject, body string) error {
	if len(a.recipients) == 0 {
		return errors.New("no alert recipients configured")
	}
	_, err := a.client.SendEmail(ctx, &ses.SendEmailInput{
		Destination: &types.Destination{
			ToAddresses: a.recipients,
		},
		Message: &types.Message{
			Subject: &types.Content{Data: awssdk.String(subject)},
			Body: &types.Body{
				Text: &types.Content{Data: awssdk.String(body)},
			},
		},
		Source: awssdk.String(a.from),
	})
	if err != nil {
		return fmt.Errorf("ses send: %w", err)
	}
	return nil
}
