package publishers

import (
	"context"
	"errors"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"
)

type snsClient interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

type snsSender struct {
	topicARN string
	client   snsClient
}

func newSNSSender(ctx context.Context, cfg *SNSConfig) (*snsSender, error) {
	if cfg == nil {
		return nil, errors.New("sns section is missing")
	}
	awsCfg, err := loadAWSConfig(ctx, cfg.AWSAuth)
	if err != nil {
		return nil, err
	}
	return &snsSender{topicARN: cfg.TopicARN, client: sns.NewFromConfig(awsCfg)}, nil
}

// Send publishes with the post title as the subject so email subscriptions read well.
func (s *snsSender) Send(ctx context.Context, body []byte, attrs map[string]string, evt Event) (string, error) {
	input := &sns.PublishInput{
		TopicArn: aws.String(s.topicARN),
		Message:  aws.String(string(body)),
		MessageAttributes: stringAttributes(attrs, func(v string) types.MessageAttributeValue {
			return types.MessageAttributeValue{DataType: aws.String("String"), StringValue: aws.String(v)}
		}),
	}
	if subject := snsSubject(evt.Title); subject != "" {
		input.Subject = aws.String(subject)
	}
	out, err := s.client.Publish(ctx, input)
	if err != nil {
		return "", err
	}
	return aws.ToString(out.MessageId), nil
}

// snsSubject fits SNS subject rules: at most 100 characters, no line breaks.
func snsSubject(title string) string {
	r := []rune(title)
	out := make([]rune, 0, min(len(r), 100))
	for _, c := range r {
		if c == '\n' || c == '\r' {
			c = ' '
		}
		out = append(out, c)
		if len(out) == 100 {
			break
		}
	}
	return string(out)
}
