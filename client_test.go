package sandwich

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/WelcomerTeam/Sandwich-Client/discord"
	"github.com/WelcomerTeam/Sandwich-Client/pkg/limiter"
	"github.com/WelcomerTeam/Sandwich-Client/sandwichjson"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"
)

func TestNewClientValidates(t *testing.T) {
	t.Parallel()

	_, err := NewClient(context.Background(), &Configuration{}, nil, zerolog.Nop())
	assert.ErrorIs(t, err, ErrConfigurationValidateToken)
}

func TestClient(t *testing.T) {
	t.Parallel()

	gw := newTestGateway(t)
	events := NewChannelEventProvider(1024)

	configuration := newTestConfiguration(gw.URL())
	configuration.EventBlacklist = []string{"TYPING_START"}

	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()

	client, err := NewClient(ctx, configuration, events, zerolog.Nop())
	require.NoError(t, err)

	require.NoError(t, client.Connect(ctx))
	assert.ErrorIs(t, client.Connect(ctx), ErrClientConnected)

	gc := gw.accept(t)
	gc.hello(t, 45*time.Second)
	gc.expect(t, discord.GatewayOpIdentify)
	gc.dispatch(t, "READY", 1, readyPayload("session", gw.URL()))

	require.NoError(t, client.WaitForReady(ctx))

	gc.dispatch(t, "TYPING_START", 2, nil)
	gc.dispatch(t, "MESSAGE_CREATE", 3, nil)

	// The blacklisted dispatch is dropped before MESSAGE_CREATE arrives.
	event := waitForEvent(t, events, func(event Event) bool {
		return event.Type == EventDispatch && event.Name != "READY"
	})
	assert.Equal(t, "MESSAGE_CREATE", event.Name)

	client.SetEventBlacklist(nil)
	gc.dispatch(t, "TYPING_START", 4, nil)
	waitForEvent(t, events, isDispatch("TYPING_START"))

	require.NoError(t, client.EditStatus(ctx, &discord.UpdateStatus{Status: discord.StatusInvisible}))

	var status discord.UpdateStatus

	require.NoError(t, sandwichjson.Unmarshal(gc.expect(t, discord.GatewayOpPresenceUpdate).Data, &status))
	assert.Equal(t, discord.StatusInvisible, status.Status)

	assert.Equal(t, int32(0), client.ShardIDFor(discord.Snowflake(123<<22)))

	require.NoError(t, client.Disconnect(ctx))
	assert.Equal(t, websocket.StatusNormalClosure, gc.waitClosed(t))

	sh, ok := client.Manager.Shard(0)
	require.True(t, ok)
	assert.Equal(t, ShardStatusClosed, sh.Status())
}

func TestClientReconnectAfterDisconnect(t *testing.T) {
	t.Parallel()

	gw := newTestGateway(t)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := sandwichjson.Marshal(discord.GatewayBotResponse{
			URL:    gw.URL(),
			Shards: 1,
			SessionStartLimit: discord.SessionStartLimit{
				MaxConcurrency: 1,
			},
		})

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(body)
	}))
	t.Cleanup(server.Close)

	configuration := &Configuration{
		Token:   "token",
		BaseURL: server.URL,
	}

	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()

	client, err := NewClient(ctx, configuration, nil, zerolog.Nop())
	require.NoError(t, err)

	client.Manager.identifyQueue = limiter.NewIdentifyQueue(1, 10*time.Millisecond)

	for round := 0; round < 2; round++ {
		require.NoError(t, client.Connect(ctx), "round %d", round)

		gc := gw.accept(t)
		gc.hello(t, 45*time.Second)
		gc.expect(t, discord.GatewayOpIdentify)
		gc.dispatch(t, "READY", 1, readyPayload("session", gw.URL()))

		require.NoError(t, client.WaitForReady(ctx))
		assert.Equal(t, int32(1), client.Manager.ShardCount())

		require.NoError(t, client.Disconnect(ctx))
		assert.Equal(t, websocket.StatusNormalClosure, gc.waitClosed(t))
		assert.True(t, client.REST.Closed())
	}
}
