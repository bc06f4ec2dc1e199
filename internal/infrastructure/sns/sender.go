package sns

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/go-whatsapp-otp/internal/config"
	"github.com/go-whatsapp-otp/internal/infrastructure/awscfg"
	"github.com/go-whatsapp-otp/internal/pkg/phone"
)

// PublishAPI is the subset of the SNS client used here.
type PublishAPI interface {
	Publish(ctx context.Context, in *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// NewClient creates an SNS client in cfg.SNSRegion.
func NewClient(ctx context.Context, cfg *config.Config) (*sns.Client, error) {
	awsCfg, err := awscfg.Load(ctx, cfg, cfg.SNSRegion)
	if err != nil {
		return nil, err
	}
	var opts []func(*sns.Options)
	if cfg.AWSEndpointURL != "" {
		opts = append(opts, func(o *sns.Options) {
			o.BaseEndpoint = aws.String(cfg.AWSEndpointURL)
		})
	}
	return sns.NewFromConfig(awsCfg, opts...), nil
}

type expiredEvent struct {
	Event       string    `json:"event"`
	PhoneNumber string    `json:"phoneNumber"`
	At          time.Time `json:"at"`
}

// ExpiryPublisher publishes an event to a topic whenever an issued OTP
// expires without being verified.
type ExpiryPublisher struct {
	client   PublishAPI
	topicARN string
	log      *slog.Logger
	now      func() time.Time
}

func NewExpiryPublisher(client PublishAPI, topicARN string, log *slog.Logger) *ExpiryPublisher {
	return &ExpiryPublisher{client: client, topicARN: topicARN, log: log, now: time.Now}
}

// OTPExpired implements otp.ExpiryObserver. Failures are logged.
func (p *ExpiryPublisher) OTPExpired(ctx context.Context, id phone.Identity) {
	if err := p.publish(ctx, id); err != nil {
		p.log.Warn("publish otp expiry", "phone", id.Standardized, "err", err)
	}
}

func (p *ExpiryPublisher) publish(ctx context.Context, id phone.Identity) error {
	body, err := json.Marshal(expiredEvent{Event: "otp.expired", PhoneNumber: id.Standardized, At: p.now().UTC()})
	if err != nil {
		return err
	}
	_, err = p.client.Publish(ctx, &sns.PublishInput{
		TopicArn: aws.String(p.topicARN),
		Message:  aws.String(string(body)),
	})
	if err != nil {
		return fmt.Errorf("sns publish: %w", err)
	}
	return nil
}
