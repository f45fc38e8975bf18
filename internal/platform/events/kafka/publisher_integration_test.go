//go:build integration

package kafka_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/botdiril/botdiril-game-backend/internal/game/models"
	"github.com/botdiril/botdiril-game-backend/internal/platform/events"
	"github.com/botdiril/botdiril-game-backend/internal/platform/events/kafka"
	"github.com/botdiril/botdiril-game-backend/pkg/domain"
	"github.com/botdiril/botdiril-game-backend/pkg/testutil/containers"
)

func TestPublisherAgainstBroker(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	broker := containers.GetManager().GetRedpanda(t)
	const topic = "game.player-events.test"

	client, err := kafka.NewClient(broker.Brokers, topic)
	require.NoError(t, err)
	defer client.Close()
	require.NoError(t, kafka.EnsureTopic(ctx, client, topic, 1, 1))
	require.NoError(t, kafka.EnsureTopic(ctx, client, topic, 1, 1), "second call must tolerate an existing topic")

	require.NoError(t, kafka.NewPublisher(client, topic).Publish(ctx, domain.Identity(42), []models.PlayerEvent{models.EventLevelUp}))

	consumer, err := kgo.NewClient(
		kgo.SeedBrokers(broker.Brokers...),
		kgo.ConsumeTopics(topic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	require.NoError(t, err)
	defer consumer.Close()

	fetches := consumer.PollFetches(ctx)
	require.NoError(t, fetches.Err())
	records := fetches.Records()
	require.Len(t, records, 1)
	assert.Equal(t, []byte("42"), records[0].Key)

	var env events.Envelope
	require.NoError(t, json.Unmarshal(records[0].Value, &env))
	assert.Equal(t, models.EventLevelUp, env.Type)
	assert.Equal(t, domain.Identity(42), env.Identity)
}
