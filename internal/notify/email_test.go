package notify

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/sendgrid/rest"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aatwiz/calendar-reminder/pkg/logging"
)

type fakeSendGrid struct {
	status int
	err    error
	got    *sgmail.SGMailV3
}

func (f *fakeSendGrid) SendWithContext(_ context.Context, m *sgmail.SGMailV3) (*rest.Response, error) {
	f.got = m
	if f.err != nil {
		return nil, f.err
	}
	return &rest.Response{StatusCode: f.status}, nil
}

type fakeSES struct {
	err   error
	input *sesv2.SendEmailInput
}

func (f *fakeSES) SendEmail(_ context.Context, in *sesv2.SendEmailInput, _ ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error) {
	f.input = in
	if f.err != nil {
		return nil, f.err
	}
	return &sesv2.SendEmailOutput{MessageId: aws.String("ses-1")}, nil
}

func alertEmail() EmailMessage {
	return EmailMessage{To: "dr@clinic.example.com", Subject: "Appointment Reminder - Mary Murphy", Text: "Patient: Mary Murphy", EventID: "evt-9"}
}

func TestNewSendGridSenderNilWithoutAPIKey(t *testing.T) {
	assert.Nil(t, NewSendGridSender(SendGridConfig{FromEmail: "clinic@example.com"}, nil))
	sender := NewSendGridSender(SendGridConfig{APIKey: "SG.key", FromEmail: "clinic@example.com"}, nil)
	require.NotNil(t, sender)
	assert.Equal(t, defaultFromName, sender.from.name)
}

func TestSendGridSenderTagsAlert(t *testing.T) {
	fake := &fakeSendGrid{status: 202}
	sender := newSendGridSender(fake, SendGridConfig{FromEmail: "clinic@example.com", FromName: "Clinic"}, logging.Discard())

	require.NoError(t, sender.Send(context.Background(), alertEmail()))
	require.NotNil(t, fake.got)
	assert.Equal(t, "Appointment Reminder - Mary Murphy", fake.got.Subject)
	assert.Equal(t, "clinic@example.com", fake.got.From.Address)
	assert.Equal(t, []string{emailCategory}, fake.got.Categories)
	assert.Equal(t, "evt-9", fake.got.CustomArgs["event_id"])
}

func TestSendGridSenderFailures(t *testing.T) {
	cfg := SendGridConfig{FromEmail: "clinic@example.com"}

	sender := newSendGridSender(&fakeSendGrid{status: 401}, cfg, logging.Discard())
	assert.ErrorContains(t, sender.Send(context.Background(), alertEmail()), "status 401")

	sender = newSendGridSender(&fakeSendGrid{err: errors.New("dial tcp")}, cfg, logging.Discard())
	assert.ErrorContains(t, sender.Send(context.Background(), alertEmail()), "dial tcp")

	noFrom := newSendGridSender(&fakeSendGrid{status: 202}, SendGridConfig{}, logging.Discard())
	assert.ErrorIs(t, noFrom.Send(context.Background(), alertEmail()), ErrNotConfigured)

	var nilSender *SendGridSender
	assert.ErrorIs(t, nilSender.Send(context.Background(), alertEmail()), ErrNotConfigured)
}

func TestEmailMessageValidation(t *testing.T) {
	fake := &fakeSendGrid{status: 202}
	sender := newSendGridSender(fake, SendGridConfig{FromEmail: "clinic@example.com"}, logging.Discard())

	msg := alertEmail()
	msg.To = "not an address"
	assert.ErrorContains(t, sender.Send(context.Background(), msg), "recipient")

	msg = alertEmail()
	msg.Subject = " "
	assert.ErrorContains(t, sender.Send(context.Background(), msg), "subject")
	assert.Nil(t, fake.got, "invalid messages never reach the provider")
}

func TestSESSenderSend(t *testing.T) {
	fake := &fakeSES{}
	sender := NewSESSender(fake, SESConfig{FromEmail: "clinic@example.com"}, logging.Discard())

	msg := alertEmail()
	msg.EventID = "abc#123"
	require.NoError(t, sender.Send(context.Background(), msg))
	assert.Equal(t, `"Clinic Reminders" <clinic@example.com>`, aws.ToString(fake.input.FromEmailAddress))
	assert.Equal(t, []string{"dr@clinic.example.com"}, fake.input.Destination.ToAddresses)
	assert.Equal(t, "Patient: Mary Murphy", aws.ToString(fake.input.Content.Simple.Body.Text.Data))
	require.Len(t, fake.input.EmailTags, 2)
	assert.Equal(t, "abc_123", aws.ToString(fake.input.EmailTags[1].Value))

	fake.err = errors.New("throttled")
	assert.ErrorContains(t, sender.Send(context.Background(), alertEmail()), "throttled")
}

func TestNewSESSenderNilClient(t *testing.T) {
	assert.Nil(t, NewSESSender(nil, SESConfig{}, nil))
	sender := NewSESSender(&fakeSES{}, SESConfig{}, nil)
	assert.ErrorIs(t, sender.Send(context.Background(), alertEmail()), ErrNotConfigured)
}
