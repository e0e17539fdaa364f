package main

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/LiamFearon/LocalAINews/internal/logger"
	"github.com/LiamFearon/LocalAINews/pkg/discord"
)

type fakeChannels map[string]discord.Channel

func (f fakeChannels) GetChannel(_ context.Context, id string) (discord.Channel, error) {
	ch, ok := f[id]
	if !ok {
		return discord.Channel{}, errors.New("discord: HTTP 403: Missing Access")
	}
	return ch, nil
}

func TestCheckChannelsLogsUnreachableAndContinues(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	log := logger.FromZap(zap.New(core))
	channels := fakeChannels{"111": {ID: "111", Name: "review"}}

	reachable := checkChannels(context.Background(), channels, log, "222", "111")
	assert.Equal(t, 1, reachable)

	warned := logs.FilterMessage("discord channel unreachable").All()
	require.Len(t, warned, 1)
	assert.Equal(t, "222", warned[0].ContextMap()["channel_id"])
	assert.Len(t, logs.FilterMessage("discord channel reachable").All(), 1)
}
