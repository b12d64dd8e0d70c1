package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
)

// SESAPI is the part of the SES v2 client the notifier uses.
type SESAPI interface {
	SendEmail(ctx context.Context, in *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// SESNotifier emails alerts through Amazon SES.
type SESNotifier struct {
	client   SESAPI
	from     string
	fromName string
}

// NewSESNotifier loads the default AWS configuration for region and builds
// an SES client.
func NewSESNotifier(ctx context.Context, region, from, fromName string) (*SESNotifier, error) {
	if from == "" {
		return nil, errors.New("ses notifier: from address required")
	}
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	return NewSESNotifierWithClient(sesv2.NewFromConfig(cfg), from, fromName), nil
}

// NewSESNotifierWithClient uses an existing client.
func NewSESNotifierWithClient(client SESAPI, from, fromName string) *SESNotifier {
	return &SESNotifier{client: client, from: from, fromName: fromName}
}

func (n *SESNotifier) Notify(ctx context.Context, a Alert) error {
	if a.Email == "" {
		return nil
	}
	from := n.from
	if n.fromName != "" {
		from = fmt.Sprintf("%s <%s>", n.fromName, n.from)
	}
	subject, body := message(a)

	_, err := n.client.SendEmail(ctx, &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(from),
		Destination: &types.Destination{
			ToAddresses: []string{a.Email},
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
	})
	if err != nil {
		return fmt.Errorf("send alert email: %w", err)
	}
	return nil
}
