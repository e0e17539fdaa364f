package publishers

import (
	"bytes"
	"context"
	"fmt"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

type s3Client interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// archivePublisher keeps one JSON record per published post at
// <prefix>/<yyyy>/<mm>/<dd>/<draft id>.json. Rewriting the same post overwrites the
// same key.
type archivePublisher struct {
	id     string
	bucket string
	prefix string
	client s3Client
	log    Logger
}

func newArchivePublisher(ctx context.Context, cfg SinkConfig, log Logger) (Publisher, error) {
	a := cfg.Archive
	if a == nil {
		return nil, fmt.Errorf("sink %q: archive section is missing", cfg.ID)
	}
	awsCfg, err := loadAWSConfig(ctx, a.AWSAuth)
	if err != nil {
		return nil, err
	}
	return &archivePublisher{
		id:     cfg.ID,
		bucket: a.Bucket,
		prefix: a.Prefix,
		client: s3.NewFromConfig(awsCfg),
		log:    log,
	}, nil
}

func (p *archivePublisher) ID() string   { return p.id }
func (p *archivePublisher) Type() string { return TypeArchive }

func (p *archivePublisher) Publish(ctx context.Context, evt Event) error {
	body, err := evt.encode()
	if err != nil {
		return err
	}
	key := p.objectKey(evt)
	if _, err := p.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(p.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	}); err != nil {
		return fmt.Errorf("archive %s: put %s: %w", p.id, key, err)
	}
	p.log.DebugObj("archive sink stored event", "sink_archive_stored", map[string]any{
		"sink":     p.id,
		"draft_id": evt.DraftID,
		"key":      key,
	})
	return nil
}

func (p *archivePublisher) objectKey(evt Event) string {
	return path.Join(p.prefix, evt.PublishedAt.UTC().Format("2006/01/02"), evt.DraftID+".json")
}
