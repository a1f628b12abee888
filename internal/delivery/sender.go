// Package delivery sends crafted messages directly over AWS SES v2.
// It is the fallback channel when Instantly is disabled or down, and
// the only channel the sandbox exercises end to end.
package delivery

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"

	appconfig "github.com/ignite/leadflow/internal/config"
	"github.com/ignite/leadflow/internal/lead"
)

// sesAPI is the subset of the SES v2 client the sender uses.
type sesAPI interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// Sender delivers single emails through SES.
type Sender struct {
	client    sesAPI
	fromEmail string
}

// NewSender creates an SES v2 sender.
func NewSender(ctx context.Context, cfg appconfig.SESConfig) (*Sender, error) {
	opts := []func(*config.LoadOptions) error{
		config.WithRegion(cfg.Region),
	}
	if cfg.AccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}

	return &Sender{
		client:    sesv2.NewFromConfig(awsCfg),
		fromEmail: cfg.FromEmail,
	}, nil
}

// Send delivers one plain-text email. Returns the SES message ID.
func (s *Sender) Send(ctx context.Context, to, subject, body string) (string, error) {
	input := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(s.fromEmail),
		Destination: &types.Destination{
			ToAddresses: []string{to},
		},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{
					Data:    aws.String(subject),
					Charset: aws.String("UTF-8"),
				},
				Body: &types.Body{
					Text: &types.Content{
						Data:    aws.String(body),
						Charset: aws.String("UTF-8"),
					},
				},
			},
		},
	}

	output, err := s.client.SendEmail(ctx, input)
	if err != nil {
		return "", fmt.Errorf("sending email to %s: %w", to, err)
	}

	return aws.ToString(output.MessageId), nil
}

// QueueLead satisfies the pipeline's delivery interface. SES has no
// campaign queue, so the message goes out immediately.
func (s *Sender) QueueLead(ctx context.Context, l *lead.Lead, subject, body string) (string, error) {
	return s.Send(ctx, l.Email, subject, body)
}
