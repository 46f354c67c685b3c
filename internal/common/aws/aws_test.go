// internal/common/aws/aws_test.go
package aws

import (
	"context"
	"errors"
	"testing"

	"followup-orchestrator/internal/models"

	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockSESService struct {
	mock.Mock
}

func (m *MockSESService) SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ses.SendEmailOutput), args.Error(1)
}

type MockSNSService struct {
	mock.Mock
}

func (m *MockSNSService) Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*sns.PublishOutput), args.Error(1)
}

func TestSESAlerter_Alert(t *testing.T) {
	sesMock := new(MockSESService)
	sesMock.On("SendEmail", mock.Anything, mock.MatchedBy(func(in *ses.SendEmailInput) bool {
		return *in.Source == "alerts@example.com" &&
			len(in.Destination.ToAddresses) == 1 &&
			*in.Message.Subject.Data == "scheduler degraded"
	})).Return(&ses.SendEmailOutput{}, nil)

	a := NewSESAlerterWithClient(sesMock, "alerts@example.com", []string{"ops@example.com"})
	require.NoError(t, a.Alert(context.Background(), "scheduler degraded", "errors in last hour: 12"))
	sesMock.AssertExpectations(t)
}

func TestSESAlerter_NoRecipients(t *testing.T) {
	a := NewSESAlerterWithClient(new(MockSESService), "alerts@example.com", nil)
	assert.Error(t, a.Alert(context.Background(), "s", "b"))
}

func TestSNSTransport_Send(t *testing.T) {
	snsMock := new(MockSNSService)
	snsMock.On("Publish", mock.Anything, mock.MatchedBy(func(in *sns.PublishInput) bool {
		_, hasSender := in.MessageAttributes["AWS.SNS.SMS.SenderID"]
		return *in.PhoneNumber == "+919800000000" && *in.Message == "Hi Asha" && hasSender
	})).Return(&sns.PublishOutput{}, nil).Once()

	tr := NewSNSTransportWithClient(snsMock, "FOLLOWUP")
	err := tr.Send(context.Background(), "+919800000000", models.OutboundMessage{Text: "Hi Asha", TemplateName: "checkin"})
	require.NoError(t, err)
	snsMock.AssertExpectations(t)
}

func TestSNSTransport_PublishError(t *testing.T) {
	snsMock := new(MockSNSService)
	snsMock.On("Publish", mock.Anything, mock.Anything).Return(nil, errors.New("throttled"))

	tr := NewSNSTransportWithClient(snsMock, "")
	err := tr.Send(context.Background(), "+919800000000", models.OutboundMessage{Text: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "throttled")
}

func TestSNSTransport_RejectsEmpty(t *testing.T) {
	tr := NewSNSTransportWithClient(new(MockSNSService), "")
	assert.Error(t, tr.Send(context.Background(), "", models.OutboundMessage{Text: "x"}))
	assert.Error(t, tr.Send(context.Background(), "+91", models.OutboundMessage{}))
}
