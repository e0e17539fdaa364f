package publishers

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Sink types.
const (
	TypeQueue   = "queue"
	TypeWebhook = "webhook"
	TypeArchive = "archive"
)

// Queue providers.
const (
	ProviderSQS    = "sqs"
	ProviderSNS    = "sns"
	ProviderPubSub = "pubsub"
)

const (
	defaultWebhookMethod  = "POST"
	defaultWebhookTimeout = 5
)

type sinksFile struct {
	Sinks []SinkConfig `json:"sinks" yaml:"sinks"`
}

// SinkConfig declares one downstream sink. Topics, when set, limits the sink to posts
// about those topics.
type SinkConfig struct {
	ID      string         `json:"id" yaml:"id"`
	Type    string         `json:"type" yaml:"type"`
	Enabled *bool          `json:"enabled,omitempty" yaml:"enabled"`
	Topics  []string       `json:"topics,omitempty" yaml:"topics"`
	Queue   *QueueConfig   `json:"queue,omitempty" yaml:"queue"`
	Webhook *WebhookConfig `json:"webhook,omitempty" yaml:"webhook"`
	Archive *ArchiveConfig `json:"archive,omitempty" yaml:"archive"`
}

// AWSAuth is shared by the AWS-backed sinks. Keys are optional; without them the
// default credential chain applies.
type AWSAuth struct {
	Region          string `json:"region" yaml:"region"`
	AccessKeyID     string `json:"access_key_id" yaml:"access_key_id"`
	SecretAccessKey string `json:"secret_access_key" yaml:"secret_access_key"`
}

type QueueConfig struct {
	Provider string        `json:"provider" yaml:"provider"`
	SQS      *SQSConfig    `json:"sqs,omitempty" yaml:"sqs"`
	SNS      *SNSConfig    `json:"sns,omitempty" yaml:"sns"`
	PubSub   *PubSubConfig `json:"pubsub,omitempty" yaml:"pubsub"`
}

type SQSConfig struct {
	QueueURL string `json:"queue_url" yaml:"queue_url"`
	AWSAuth  `yaml:",inline"`
}

type SNSConfig struct {
	TopicARN string `json:"topic_arn" yaml:"topic_arn"`
	AWSAuth  `yaml:",inline"`
}

type PubSubConfig struct {
	ProjectID       string `json:"project_id" yaml:"project_id"`
	Topic           string `json:"topic" yaml:"topic"`
	CredentialsFile string `json:"credentials_file" yaml:"credentials_file"`
}

// ArchiveConfig stores one JSON object per published post in an S3 bucket.
type ArchiveConfig struct {
	Bucket  string `json:"bucket" yaml:"bucket"`
	Prefix  string `json:"prefix" yaml:"prefix"`
	AWSAuth `yaml:",inline"`
}

type WebhookConfig struct {
	URL            string            `json:"url" yaml:"url"`
	Method         string            `json:"method" yaml:"method"`
	Headers        map[string]string `json:"headers" yaml:"headers"`
	TimeoutSeconds int               `json:"timeout_seconds" yaml:"timeout_seconds"`
}

// IsEnabled defaults to true when the flag is omitted.
func (c SinkConfig) IsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

// Catalog is the validated content of a sinks file, in file order.
type Catalog struct {
	sinks []SinkConfig
	byID  map[string]int
}

// LoadCatalog reads sink definitions from a YAML or JSON file. ${VAR} references are
// expanded from the environment first so secrets can stay out of the file.
func LoadCatalog(path string) (*Catalog, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("sinks file path is empty")
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read sinks file: %w", err)
	}
	file, err := decodeSinks([]byte(os.ExpandEnv(string(raw))), filepath.Ext(path))
	if err != nil {
		return nil, err
	}
	return NewCatalog(file.Sinks)
}

// NewCatalog normalizes and validates cfgs.
func NewCatalog(cfgs []SinkConfig) (*Catalog, error) {
	if len(cfgs) == 0 {
		return nil, errors.New("no sinks declared")
	}
	c := &Catalog{
		sinks: make([]SinkConfig, 0, len(cfgs)),
		byID:  make(map[string]int, len(cfgs)),
	}
	for i, cfg := range cfgs {
		cfg = cfg.normalize()
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("sinks[%d]: %w", i, err)
		}
		if _, dup := c.byID[cfg.ID]; dup {
			return nil, fmt.Errorf("sinks[%d]: duplicate id %q", i, cfg.ID)
		}
		c.byID[cfg.ID] = len(c.sinks)
		c.sinks = append(c.sinks, cfg)
	}
	return c, nil
}

// Get returns the sink declared with id.
func (c *Catalog) Get(id string) (SinkConfig, bool) {
	if c == nil {
		return SinkConfig{}, false
	}
	i, ok := c.byID[strings.TrimSpace(id)]
	if !ok {
		return SinkConfig{}, false
	}
	return c.sinks[i], true
}

// Enabled returns the enabled sinks in file order.
func (c *Catalog) Enabled() []SinkConfig {
	if c == nil {
		return nil
	}
	out := make([]SinkConfig, 0, len(c.sinks))
	for _, cfg := range c.sinks {
		if cfg.IsEnabled() {
			out = append(out, cfg)
		}
	}
	return out
}

func (c *Catalog) Len() int {
	if c == nil {
		return 0
	}
	return len(c.sinks)
}

func decodeSinks(data []byte, ext string) (sinksFile, error) {
	var file sinksFile
	var err error
	switch strings.ToLower(ext) {
	case ".json":
		err = json.Unmarshal(data, &file)
	default:
		// YAML also accepts JSON documents.
		err = yaml.Unmarshal(data, &file)
	}
	if err != nil {
		return sinksFile{}, fmt.Errorf("decode sinks file: %w", err)
	}
	return file, nil
}

func (c SinkConfig) normalize() SinkConfig {
	c.ID = strings.TrimSpace(c.ID)
	c.Type = strings.ToLower(strings.TrimSpace(c.Type))

	var topics []string
	for _, t := range c.Topics {
		if t = strings.TrimSpace(t); t != "" {
			topics = append(topics, t)
		}
	}
	c.Topics = topics

	if c.Queue != nil {
		q := *c.Queue
		q.Provider = strings.ToLower(strings.TrimSpace(q.Provider))
		if q.SQS != nil {
			s := *q.SQS
			s.QueueURL = strings.TrimSpace(s.QueueURL)
			s.AWSAuth = s.AWSAuth.normalize()
			q.SQS = &s
		}
		if q.SNS != nil {
			s := *q.SNS
			s.TopicARN = strings.TrimSpace(s.TopicARN)
			s.AWSAuth = s.AWSAuth.normalize()
			q.SNS = &s
		}
		if q.PubSub != nil {
			p := *q.PubSub
			p.ProjectID = strings.TrimSpace(p.ProjectID)
			p.Topic = strings.TrimSpace(p.Topic)
			p.CredentialsFile = strings.TrimSpace(p.CredentialsFile)
			q.PubSub = &p
		}
		c.Queue = &q
	}
	if c.Webhook != nil {
		w := *c.Webhook
		w.URL = strings.TrimSpace(w.URL)
		if w.Method = strings.ToUpper(strings.TrimSpace(w.Method)); w.Method == "" {
			w.Method = defaultWebhookMethod
		}
		if w.TimeoutSeconds <= 0 {
			w.TimeoutSeconds = defaultWebhookTimeout
		}
		w.Headers = cleanHeaders(w.Headers)
		c.Webhook = &w
	}
	if c.Archive != nil {
		a := *c.Archive
		a.Bucket = strings.TrimSpace(a.Bucket)
		a.Prefix = strings.Trim(strings.TrimSpace(a.Prefix), "/")
		a.AWSAuth = a.AWSAuth.normalize()
		c.Archive = &a
	}
	return c
}

func (a AWSAuth) normalize() AWSAuth {
	a.Region = strings.TrimSpace(a.Region)
	a.AccessKeyID = strings.TrimSpace(a.AccessKeyID)
	a.SecretAccessKey = strings.TrimSpace(a.SecretAccessKey)
	return a
}

func cleanHeaders(headers map[string]string) map[string]string {
	out := make(map[string]string, len(headers))
	for k, v := range headers {
		k, v = strings.TrimSpace(k), strings.TrimSpace(v)
		if k != "" && v != "" {
			out[k] = v
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// Validate checks the fields the sink's type requires.
func (c SinkConfig) Validate() error {
	if c.ID == "" {
		return errors.New("sink id is required")
	}
	switch c.Type {
	case TypeQueue:
		return c.validateQueue()
	case TypeWebhook:
		if c.Webhook == nil || c.Webhook.URL == "" {
			return fmt.Errorf("sink %q: webhook.url is required", c.ID)
		}
	case TypeArchive:
		if c.Archive == nil || c.Archive.Bucket == "" {
			return fmt.Errorf("sink %q: archive.bucket is required", c.ID)
		}
		return c.Archive.AWSAuth.validate(c.ID, "archive")
	case "":
		return fmt.Errorf("sink %q: type is required", c.ID)
	default:
		return fmt.Errorf("sink %q: type %q not supported", c.ID, c.Type)
	}
	return nil
}

func (c SinkConfig) validateQueue() error {
	q := c.Queue
	if q == nil {
		return fmt.Errorf("sink %q: queue section is required", c.ID)
	}
	switch q.Provider {
	case ProviderSQS:
		if q.SQS == nil || q.SQS.QueueURL == "" {
			return fmt.Errorf("sink %q: queue.sqs.queue_url is required", c.ID)
		}
		return q.SQS.AWSAuth.validate(c.ID, "queue.sqs")
	case ProviderSNS:
		if q.SNS == nil || q.SNS.TopicARN == "" {
			return fmt.Errorf("sink %q: queue.sns.topic_arn is required", c.ID)
		}
		return q.SNS.AWSAuth.validate(c.ID, "queue.sns")
	case ProviderPubSub:
		if q.PubSub == nil || q.PubSub.ProjectID == "" || q.PubSub.Topic == "" {
			return fmt.Errorf("sink %q: queue.pubsub.project_id and topic are required", c.ID)
		}
	default:
		return fmt.Errorf("sink %q: queue provider %q not supported", c.ID, q.Provider)
	}
	return nil
}

func (a AWSAuth) validate(id, section string) error {
	if a.Region == "" {
		return fmt.Errorf("sink %q: %s.region is required", id, section)
	}
	if (a.AccessKeyID == "") != (a.SecretAccessKey == "") {
		return fmt.Errorf("sink %q: %s access_key_id and secret_access_key must be set together", id, section)
	}
	return nil
}
