package ses

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"

	appconfig "github.com/ignite/ses-guard/internal/config"
	"github.com/ignite/ses-guard/internal/events"
	"github.com/ignite/ses-guard/internal/pkg/logger"
)

// API is the subset of the SES v2 client used here.
type API interface {
	SendEmail(ctx context.Context, in *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
	PutSuppressedDestination(ctx context.Context, in *sesv2.PutSuppressedDestinationInput, optFns ...func(*sesv2.Options)) (*sesv2.PutSuppressedDestinationOutput, error)
}

// SendGuard decides whether a send may proceed. A non-nil error refuses it.
type SendGuard interface {
	CheckBeforeSend(ctx context.Context, recipients []string, subject string) error
}

// Client is an AWS SES v2 client that refuses sends the guard blocks.
type Client struct {
	api    API
	guard  SendGuard
	region string
}

// NewClient creates a new SES API client. Static credentials are used when
// configured, otherwise the default credential chain (IAM role on ECS).
func NewClient(ctx context.Context, cfg appconfig.SESConfig, guard SendGuard) (*Client, error) {
	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		creds := credentials.NewStaticCredentialsProvider(
			cfg.AccessKey,
			cfg.SecretKey,
			"", // session token (empty for static creds)
		)
		opts = append(opts, config.WithCredentialsProvider(creds))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}

	return New(sesv2.NewFromConfig(awsCfg), guard, cfg.Region), nil
}

// New wraps an existing SES API implementation.
func New(api API, guard SendGuard, region string) *Client {
	return &Client{api: api, guard: guard, region: region}
}

// Region returns the configured AWS region.
func (c *Client) Region() string {
	return c.region
}

// Email is an outbound message.
type Email struct {
	From             string
	To               []string
	Cc               []string
	Bcc              []string
	Subject          string
	HTML             string
	Text             string
	ConfigurationSet string
}

func (e Email) recipients() []string {
	out := make([]string, 0, len(e.To)+len(e.Cc)+len(e.Bcc))
	out = append(out, e.To...)
	out = append(out, e.Cc...)
	return append(out, e.Bcc...)
}

// Send checks every recipient with the guard and sends only if all pass.
// The guard's error is returned unchanged so callers can inspect it.
func (c *Client) Send(ctx context.Context, msg Email) (string, error) {
	recipients := msg.recipients()
	if len(recipients) == 0 {
		return "", errors.New("ses: message has no recipients")
	}
	if c.guard != nil {
		if err := c.guard.CheckBeforeSend(ctx, recipients, msg.Subject); err != nil {
			logger.Warn("[ses] send refused", "subject", msg.Subject, "error", err)
			return "", err
		}
	}

	body := &types.Body{}
	if msg.HTML != "" {
		body.Html = &types.Content{Data: aws.String(msg.HTML), Charset: aws.String("UTF-8")}
	}
	if msg.Text != "" {
		body.Text = &types.Content{Data: aws.String(msg.Text), Charset: aws.String("UTF-8")}
	}

	in := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(msg.From),
		Destination: &types.Destination{
			ToAddresses:  msg.To,
			CcAddresses:  msg.Cc,
			BccAddresses: msg.Bcc,
		},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: aws.String(msg.Subject), Charset: aws.String("UTF-8")},
				Body:    body,
			},
		},
	}
	if msg.ConfigurationSet != "" {
		in.ConfigurationSetName = aws.String(msg.ConfigurationSet)
	}

	out, err := c.api.SendEmail(ctx, in)
	if err != nil {
		return "", fmt.Errorf("sending email: %w", err)
	}
	return aws.ToString(out.MessageId), nil
}

// Suppress adds email to the SES account-level suppression list.
func (c *Client) Suppress(ctx context.Context, email string, reason types.SuppressionListReason) error {
	_, err := c.api.PutSuppressedDestination(ctx, &sesv2.PutSuppressedDestinationInput{
		EmailAddress: aws.String(email),
		Reason:       reason,
	})
	if err != nil {
		return fmt.Errorf("suppressing destination: %w", err)
	}
	return nil
}

// SuppressionSync mirrors permanent bounces and complaints into the SES
// account suppression list.
func (c *Client) SuppressionSync() events.Listener {
	return events.ListenerFunc(func(ctx context.Context, e events.Event) error {
		switch ev := e.(type) {
		case events.BounceReceived:
			if !ev.IsPermanent() {
				return nil
			}
			return c.Suppress(ctx, ev.Email(), types.SuppressionListReasonBounce)
		case events.ComplaintReceived:
			return c.Suppress(ctx, ev.Email(), types.SuppressionListReasonComplaint)
		}
		return nil
	})
}
