package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const baseYAML = `
env: development
topics:
  list: ["local llm", "open source ai"]
newsapi:
  api_key: news-key
lmstudio:
  base_url: http://127.0.0.1:1234/
  model: qwen2.5-7b-instruct
discord:
  token: bot-token
  review_channel_id: "111"
  public_channel_id: "222"
review:
  admin_user_ids: ["42"]
`

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadAppliesDefaultsAndSanitizes(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "config.yaml", baseYAML)

	cfg, err := Load(path, filepath.Join(dir, "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.Env)
	assert.Equal(t, "http://127.0.0.1:1234", cfg.LMStudio.BaseURL)
	assert.Equal(t, StoreBolt, cfg.Store.Backend)
	assert.Equal(t, "*/30 9-22 * * *", cfg.Pipeline.Schedule)
	assert.Equal(t, "0 9 * * *", cfg.Pipeline.TopicReset)
	assert.Equal(t, 1, cfg.Pipeline.MaxDraftsPerCycle)
	assert.Equal(t, 15*time.Minute, cfg.Pipeline.RateLimitCooldown)
	assert.Equal(t, 24*time.Hour, cfg.Review.Window)
	assert.Equal(t, []string{"local llm", "open source ai"}, cfg.Topics.List)
	assert.Equal(t, "https://discord.com/api/v10", cfg.Discord.APIBase)
}

func TestLoadEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "config.yaml", baseYAML)

	t.Setenv("LOCALAINEWS_PIPELINE_MAX_DRAFTS_PER_CYCLE", "3")
	t.Setenv("DISCORD_TOKEN", "from-env")
	t.Setenv("LOCALAINEWS_REVIEW_WINDOW", "2h")
	t.Setenv("ADMIN_API_TOKEN", " s3cret ")

	cfg, err := Load(path, filepath.Join(dir, "missing.env"))
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Pipeline.MaxDraftsPerCycle)
	assert.Equal(t, "from-env", cfg.Discord.Token)
	assert.Equal(t, 2*time.Hour, cfg.Review.Window)
	assert.Equal(t, "s3cret", cfg.HTTP.AdminToken)
}

func TestLoadReadsDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "config.yaml", baseYAML)
	envPath := writeFile(t, dir, "test.env", "LOCALAINEWS_KAFKA_GROUP_ID=from-dotenv\n")
	t.Cleanup(func() { os.Unsetenv("LOCALAINEWS_KAFKA_GROUP_ID") })

	cfg, err := Load(path, envPath)
	require.NoError(t, err)
	assert.Equal(t, "from-dotenv", cfg.Kafka.GroupID)
}

func TestLoadReportsMissingRequired(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "config.yaml", "topics:\n  list: [ai]\n")
	for _, name := range []string{"DISCORD_TOKEN", "ADMIN_CHANNEL_ID", "POST_CHANNEL_ID", "LMSTUDIO_BASE_URL", "LMSTUDIO_MODEL", "NEWS_API_KEY"} {
		t.Setenv(name, "")
	}

	_, err := Load(path, filepath.Join(dir, "missing.env"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "discord.token")
	assert.Contains(t, err.Error(), "lmstudio.model")
}

func TestValidateRejectsUnknownBackend(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "config.yaml", baseYAML+"store:\n  backend: postgres\n")

	_, err := Load(path, filepath.Join(dir, "missing.env"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "postgres")
}

func TestValidateKafkaRequiresBrokers(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "config.yaml", baseYAML+"kafka:\n  enabled: true\n")

	_, err := Load(path, filepath.Join(dir, "missing.env"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "kafka.brokers")
}

func TestCleanListSplitsCommaValues(t *testing.T) {
	assert.Equal(t, []string{"1", "2", "3"}, cleanList([]string{" 1, 2", "", "3 "}))
	assert.Nil(t, cleanList(nil))
}

func TestLoadTopicsMergesListAndFile(t *testing.T) {
	dir := t.TempDir()
	file := writeFile(t, dir, "topics.txt", "# comment\nLocal LLM\n\nrobotics\n")

	topics, err := LoadTopics(TopicsConfig{List: []string{"local llm", "ai safety"}, File: file})
	require.NoError(t, err)
	assert.Equal(t, []string{"local llm", "ai safety", "robotics"}, topics)
}

func TestLoadTopicsErrors(t *testing.T) {
	_, err := LoadTopics(TopicsConfig{})
	require.Error(t, err)

	_, err = LoadTopics(TopicsConfig{File: filepath.Join(t.TempDir(), "nope.txt")})
	require.Error(t, err)
}

func TestParseFlags(t *testing.T) {
	opts, err := ParseFlags([]string{"-c", "cfg.yaml", "--once"})
	require.NoError(t, err)
	assert.Equal(t, "cfg.yaml", opts.ConfigPath)
	assert.Equal(t, ".env", opts.EnvFile)
	assert.True(t, opts.Once)

	_, err = ParseFlags([]string{"--bogus"})
	require.Error(t, err)
}
