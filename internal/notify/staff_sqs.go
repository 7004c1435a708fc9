package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
)

type sqsAPI interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// SQSStaffNotifier publishes alerts as JSON onto a queue consumed by the
// clinic's own tooling.
type SQSStaffNotifier struct {
	client   sqsAPI
	queueURL string
}

var _ StaffNotifier = (*SQSStaffNotifier)(nil)

func NewSQSStaffNotifier(client sqsAPI, queueURL string) *SQSStaffNotifier {
	if client == nil {
		panic("notify: SQS client cannot be nil")
	}
	if queueURL == "" {
		panic("notify: SQS queueURL cannot be empty")
	}
	return &SQSStaffNotifier{client: client, queueURL: queueURL}
}

func (n *SQSStaffNotifier) NotifyReschedule(ctx context.Context, alert StaffAlert) error {
	body, err := json.Marshal(struct {
		Type string `json:"type"`
		StaffAlert
	}{Type: "reschedule_requested", StaffAlert: alert})
	if err != nil {
		return fmt.Errorf("notify: marshal staff alert: %w", err)
	}
	_, err = n.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(n.queueURL),
		MessageBody: aws.String(string(body)),
	})
	if err != nil {
		return fmt.Errorf("notify: failed to send SQS message: %w", err)
	}
	return nil
}
