package push

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	awssns "github.com/aws/aws-sdk-go-v2/service/sns"
)

type snsPublisher interface {
	Publish(ctx context.Context, params *awssns.PublishInput, optFns ...func(*awssns.Options)) (*awssns.PublishOutput, error)
}

// SNSClient publishes to a platform endpoint ARN stored as the device token.
type SNSClient struct {
	client snsPublisher
}

func NewSNSClient(ctx context.Context, region string) (*SNSClient, error) {
	if region == "" {
		region = "us-east-1"
	}
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return &SNSClient{client: awssns.NewFromConfig(cfg)}, nil
}

func (c *SNSClient) Send(ctx context.Context, msg Message) (Receipt, error) {
	message, err := snsMessage(msg)
	if err != nil {
		return Receipt{}, err
	}

	out, err := c.client.Publish(ctx, &awssns.PublishInput{
		MessageStructure: aws.String("json"),
		Message:          aws.String(message),
		TargetArn:        aws.String(msg.To),
	})
	if err != nil {
		return Receipt{}, fmt.Errorf("sns publish: %w", err)
	}
	return Receipt{Success: true, ProviderResponse: aws.ToString(out.MessageId)}, nil
}

// snsMessage builds the per-protocol envelope; each platform value is itself a JSON string.
func snsMessage(msg Message) (string, error) {
	gcm, err := json.Marshal(map[string]any{
		"notification": map[string]string{"title": msg.Title, "body": msg.Body},
		"data":         msg.Data,
	})
	if err != nil {
		return "", err
	}
	apns, err := json.Marshal(map[string]any{
		"aps":  map[string]any{"alert": map[string]string{"title": msg.Title, "body": msg.Body}, "sound": "default"},
		"data": msg.Data,
	})
	if err != nil {
		return "", err
	}
	envelope, err := json.Marshal(map[string]string{
		"default":      msg.Body,
		"GCM":          string(gcm),
		"APNS":         string(apns),
		"APNS_SANDBOX": string(apns),
	})
	if err != nil {
		return "", err
	}
	return string(envelope), nil
}
