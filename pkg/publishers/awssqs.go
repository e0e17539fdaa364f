package publishers

import (
	"context"
	"errors"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
)

// fifoGroupID keeps every post in one ordered group on FIFO queues.
const fifoGroupID = "localainews"

type sqsClient interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// sqsSender writes to a standard or FIFO queue. FIFO queues dedupe on the draft id, so a
// retried delivery of the same post is dropped by SQS.
type sqsSender struct {
	queueURL string
	fifo     bool
	client   sqsClient
}

func newSQSSender(ctx context.Context, cfg *SQSConfig) (*sqsSender, error) {
	if cfg == nil {
		return nil, errors.New("sqs section is missing")
	}
	awsCfg, err := loadAWSConfig(ctx, cfg.AWSAuth)
	if err != nil {
		return nil, err
	}
	return &sqsSender{
		queueURL: cfg.QueueURL,
		fifo:     strings.HasSuffix(cfg.QueueURL, ".fifo"),
		client:   sqs.NewFromConfig(awsCfg),
	}, nil
}

func (s *sqsSender) Send(ctx context.Context, body []byte, attrs map[string]string, evt Event) (string, error) {
	input := &sqs.SendMessageInput{
		QueueUrl:    aws.String(s.queueURL),
		MessageBody: aws.String(string(body)),
		MessageAttributes: stringAttributes(attrs, func(v string) types.MessageAttributeValue {
			return types.MessageAttributeValue{DataType: aws.String("String"), StringValue: aws.String(v)}
		}),
	}
	if s.fifo {
		input.MessageGroupId = aws.String(fifoGroupID)
		input.MessageDeduplicationId = aws.String(evt.DraftID)
	}
	out, err := s.client.SendMessage(ctx, input)
	if err != nil {
		return "", err
	}
	return aws.ToString(out.MessageId), nil
}
