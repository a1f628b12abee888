package delivery

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"

	"github.com/ignite/leadflow/internal/lead"
)

type fakeSES struct {
	input *sesv2.SendEmailInput
	err   error
}

func (f *fakeSES) SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error) {
	f.input = params
	if f.err != nil {
		return nil, f.err
	}
	return &sesv2.SendEmailOutput{MessageId: aws.String("msg-1")}, nil
}

func TestSend(t *testing.T) {
	fake := &fakeSES{}
	s := &Sender{client: fake, fromEmail: "sdr@ignite.io"}

	id, err := s.Send(context.Background(), "jane@acme.io", "Quick question", "Hi Jane")
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if id != "msg-1" {
		t.Errorf("MessageID = %q", id)
	}

	if got := aws.ToString(fake.input.FromEmailAddress); got != "sdr@ignite.io" {
		t.Errorf("From = %q", got)
	}
	if fake.input.Destination.ToAddresses[0] != "jane@acme.io" {
		t.Errorf("To = %v", fake.input.Destination.ToAddresses)
	}
	if got := aws.ToString(fake.input.Content.Simple.Subject.Data); got != "Quick question" {
		t.Errorf("Subject = %q", got)
	}
}

func TestQueueLeadSendsToLeadEmail(t *testing.T) {
	fake := &fakeSES{}
	s := &Sender{client: fake, fromEmail: "sdr@ignite.io"}

	l := lead.New("amy@beta.co", "Beta")
	id, err := s.QueueLead(context.Background(), l, "Subject", "Body")
	if err != nil {
		t.Fatalf("QueueLead failed: %v", err)
	}
	if id != "msg-1" {
		t.Errorf("MessageID = %q", id)
	}
	if fake.input.Destination.ToAddresses[0] != "amy@beta.co" {
		t.Errorf("To = %v", fake.input.Destination.ToAddresses)
	}
}

func TestSendError(t *testing.T) {
	s := &Sender{client: &fakeSES{err: errors.New("throttled")}, fromEmail: "sdr@ignite.io"}
	if _, err := s.Send(context.Background(), "jane@acme.io", "s", "b"); err == nil {
		t.Error("Expected error from SES failure")
	}
}
