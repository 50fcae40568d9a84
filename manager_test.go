package sandwich

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/WelcomerTeam/Sandwich-Client/discord"
	"github.com/WelcomerTeam/Sandwich-Client/rest"
	"github.com/WelcomerTeam/Sandwich-Client/sandwichjson"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestREST(t *testing.T, status int, gateway discord.GatewayBotResponse) (*rest.Queue, *int32) {
	t.Helper()

	var calls int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)

		if r.URL.Path != "/gateway/bot" {
			w.WriteHeader(http.StatusNotFound)

			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)

		if status == http.StatusOK {
			body, _ := sandwichjson.Marshal(gateway)
			_, _ = w.Write(body)
		} else {
			_, _ = w.Write([]byte(`{"message": "401: Unauthorized", "code": 0}`))
		}
	}))
	t.Cleanup(server.Close)

	q := rest.NewQueue("token",
		rest.WithBaseURL(server.URL),
		rest.WithGlobalRate(0),
		rest.WithRetries(1, time.Millisecond),
	)
	t.Cleanup(q.Kill)

	return q, &calls
}

func newTopologyManager(t *testing.T, configuration *Configuration, q *rest.Queue) *ShardManager {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	return NewShardManager(ctx, configuration, q, nil, zerolog.Nop())
}

func TestShardIDFor(t *testing.T) {
	t.Parallel()

	m := newTopologyManager(t, &Configuration{Token: "token", ShardCount: 4, Concurrency: 1}, nil)

	assert.Equal(t, int32(1), m.ShardIDFor(discord.Snowflake(5<<22|123)))
	assert.Equal(t, int32(0), m.ShardIDFor(discord.Snowflake(8<<22)))
	assert.Equal(t, int32(3), m.ShardIDFor(discord.Snowflake(7<<22|(1<<22-1))))

	guildID := discord.Snowflake(41771983423143937)
	assert.Equal(t, int32((uint64(guildID)>>22)%4), m.ShardIDFor(guildID))
}

func TestShardIDs(t *testing.T) {
	t.Parallel()

	first := int32(2)
	last := int32(4)
	outOfRange := int32(100)

	tests := []struct {
		name          string
		configuration Configuration
		want          []int32
	}{
		{
			name:          "All",
			configuration: Configuration{ShardCount: 4},
			want:          []int32{0, 1, 2, 3},
		},
		{
			name:          "Range",
			configuration: Configuration{ShardCount: 8, ShardIDs: "0-3,6"},
			want:          []int32{0, 1, 2, 3, 6},
		},
		{
			name:          "RangeClipped",
			configuration: Configuration{ShardCount: 8, ShardIDs: "5-20,5,bad"},
			want:          []int32{5, 6, 7},
		},
		{
			name:          "FirstLast",
			configuration: Configuration{ShardCount: 8, FirstShardID: &first, LastShardID: &last},
			want:          []int32{2, 3, 4},
		},
		{
			name:          "LastOutOfRange",
			configuration: Configuration{ShardCount: 4, FirstShardID: &first, LastShardID: &outOfRange},
			want:          []int32{2, 3},
		},
		{
			name:          "Node",
			configuration: Configuration{ShardCount: 6, NodeCount: 2, NodeID: 1},
			want:          []int32{1, 3, 5},
		},
		{
			name:          "NodeRange",
			configuration: Configuration{ShardCount: 16, ShardIDs: "0-8", NodeCount: 3, NodeID: 0},
			want:          []int32{0, 3, 6},
		},
	}

	for _, tt := range tests {
		tt := tt

		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			configuration := tt.configuration
			configuration.Token = "token"

			m := newTopologyManager(t, &configuration, nil)

			assert.Equal(t, tt.want, m.ShardIDs())
		})
	}
}

func TestResolveTopology(t *testing.T) {
	t.Parallel()

	gateway := discord.GatewayBotResponse{
		URL:    "wss://gateway.example.com",
		Shards: 12,
		SessionStartLimit: discord.SessionStartLimit{
			Total:          1000,
			Remaining:      999,
			ResetAfter:     1000,
			MaxConcurrency: 4,
		},
	}

	t.Run("Auto", func(t *testing.T) {
		t.Parallel()

		q, calls := newTestREST(t, http.StatusOK, gateway)
		m := newTopologyManager(t, &Configuration{Token: "token"}, q)

		require.NoError(t, m.ResolveTopology(context.Background()))

		assert.Equal(t, int32(12), m.ShardCount())
		assert.Equal(t, int32(4), m.Concurrency())
		assert.Equal(t, 4, m.identifyQueue.Concurrency())
		assert.Equal(t, "wss://gateway.example.com", m.GatewayURL())
		assert.Equal(t, int32(1), atomic.LoadInt32(calls))
		require.NotNil(t, m.Gateway())
	})

	t.Run("Fixed", func(t *testing.T) {
		t.Parallel()

		q, calls := newTestREST(t, http.StatusOK, gateway)
		m := newTopologyManager(t, &Configuration{Token: "token", ShardCount: 2, Concurrency: 16}, q)

		require.NoError(t, m.ResolveTopology(context.Background()))

		assert.Equal(t, int32(2), m.ShardCount())
		assert.Equal(t, int32(16), m.Concurrency())
		assert.Equal(t, DefaultGatewayURL, m.GatewayURL())
		assert.Zero(t, atomic.LoadInt32(calls))
	})

	t.Run("PartialAuto", func(t *testing.T) {
		t.Parallel()

		q, _ := newTestREST(t, http.StatusOK, gateway)
		m := newTopologyManager(t, &Configuration{Token: "token", ShardCount: 24, GatewayURL: "wss://custom.example.com"}, q)

		require.NoError(t, m.ResolveTopology(context.Background()))

		assert.Equal(t, int32(24), m.ShardCount())
		assert.Equal(t, int32(4), m.Concurrency())
		assert.Equal(t, "wss://custom.example.com", m.GatewayURL())
	})

	t.Run("InvalidMetadata", func(t *testing.T) {
		t.Parallel()

		invalid := gateway
		invalid.SessionStartLimit.MaxConcurrency = 0

		q, _ := newTestREST(t, http.StatusOK, invalid)
		m := newTopologyManager(t, &Configuration{Token: "token"}, q)

		assert.ErrorIs(t, m.ResolveTopology(context.Background()), ErrGatewayMetadataInvalid)
	})

	t.Run("Unauthorized", func(t *testing.T) {
		t.Parallel()

		q, _ := newTestREST(t, http.StatusUnauthorized, gateway)
		m := newTopologyManager(t, &Configuration{Token: "token"}, q)

		err := m.ResolveTopology(context.Background())
		assert.ErrorIs(t, err, ErrInvalidToken)
		assert.ErrorIs(t, err, rest.ErrUnauthorized)
	})

	t.Run("Forbidden", func(t *testing.T) {
		t.Parallel()

		q, _ := newTestREST(t, http.StatusForbidden, gateway)
		m := newTopologyManager(t, &Configuration{Token: "token"}, q)

		err := m.ResolveTopology(context.Background())
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrInvalidToken)
		assert.Equal(t, 1, strings.Count(err.Error(), "failed to get gateway bot"), err.Error())
	})
}

func TestStartSessionLimit(t *testing.T) {
	t.Parallel()

	gateway := discord.GatewayBotResponse{
		URL:    "wss://gateway.example.com",
		Shards: 4,
		SessionStartLimit: discord.SessionStartLimit{
			Total:          1000,
			Remaining:      2,
			ResetAfter:     60000,
			MaxConcurrency: 1,
		},
	}

	q, _ := newTestREST(t, http.StatusOK, gateway)
	m := newTopologyManager(t, &Configuration{Token: "token"}, q)

	assert.ErrorIs(t, m.Start(context.Background()), ErrSessionLimitExhausted)
	assert.Zero(t, m.Shards.Count())
}

func TestStartMissingShards(t *testing.T) {
	t.Parallel()

	m := newTopologyManager(t, &Configuration{Token: "token", ShardCount: 2, Concurrency: 1, ShardIDs: "5-6"}, nil)

	assert.ErrorIs(t, m.Start(context.Background()), ErrMissingShards)
}

func TestBroadcastStatus(t *testing.T) {
	t.Parallel()

	gw := newTestGateway(t)

	configuration := newTestConfiguration(gw.URL())
	configuration.ShardCount = 2
	configuration.Concurrency = 2

	m := newTestManager(t, configuration, NewChannelEventProvider(1024))
	require.NoError(t, m.Start(context.Background()))

	conns := make(map[int32]*testGatewayConn, 2)

	for i := 0; i < 2; i++ {
		gc := gw.accept(t)
		gc.hello(t, 45*time.Second)

		var identify discord.Identify

		require.NoError(t, sandwichjson.Unmarshal(gc.expect(t, discord.GatewayOpIdentify).Data, &identify))

		conns[identify.Shard[0]] = gc
	}

	require.Len(t, conns, 2)

	conns[0].dispatch(t, "READY", 1, readyPayload("session", gw.URL()))

	sh, ok := m.Shard(0)
	require.True(t, ok)
	waitReady(t, sh)

	require.NoError(t, m.BroadcastStatus(context.Background(), &discord.UpdateStatus{
		Status:     discord.StatusIdle,
		Activities: []*discord.Activity{{Name: "on shard {{shard_id}}"}},
	}))

	var status discord.UpdateStatus

	require.NoError(t, sandwichjson.Unmarshal(conns[0].expect(t, discord.GatewayOpPresenceUpdate).Data, &status))
	assert.Equal(t, discord.StatusIdle, status.Status)
	require.Len(t, status.Activities, 1)
	assert.Equal(t, "on shard 0", status.Activities[0].Name)

	// Shard 1 never became ready.
	conns[1].expectNothing(t, 100*time.Millisecond)

	// Guild 1<<22 belongs to shard 1, which is not ready.
	err := m.RequestGuildMembers(context.Background(), discord.RequestGuildMembers{GuildID: discord.Snowflake(1 << 22)})
	assert.ErrorIs(t, err, ErrShardNotReady)

	require.NoError(t, m.RequestGuildMembers(context.Background(), discord.RequestGuildMembers{GuildID: discord.Snowflake(2 << 22), Limit: 10}))
	conns[0].expect(t, discord.GatewayOpRequestGuildMembers)
}

func TestRequestGuildMembersMissingShard(t *testing.T) {
	t.Parallel()

	m := newTopologyManager(t, &Configuration{Token: "token", ShardCount: 2, Concurrency: 1}, nil)

	err := m.RequestGuildMembers(context.Background(), discord.RequestGuildMembers{GuildID: 1})
	assert.ErrorIs(t, err, ErrInvalidShard)
}

func TestWaitForReadyContext(t *testing.T) {
	t.Parallel()

	m := newTopologyManager(t, &Configuration{Token: "token", ShardCount: 1, Concurrency: 1}, nil)
	m.Shards.Store(0, NewShard(m, 0))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	assert.ErrorIs(t, m.WaitForReady(ctx), context.DeadlineExceeded)
}

func TestStoppedShardReleasesIdentifyOrder(t *testing.T) {
	t.Parallel()

	gw := newTestGateway(t)

	configuration := newTestConfiguration(gw.URL())
	configuration.ShardCount = 2

	m := newTestManager(t, configuration, nil)
	require.NoError(t, m.ResolveTopology(context.Background()))

	m.identifyQueue.Reserve(0, 1)

	first := m.Spawn(0)

	gc := gw.accept(t)
	_ = gc.conn.Close(discord.CloseAuthenticationFailed, "Authentication failed.")

	select {
	case <-first.Done():
	case <-time.After(testTimeout):
		require.FailNow(t, "shard 0 did not stop")
	}

	assert.Equal(t, []int32{1}, m.identifyQueue.Pending())

	// Shard 0 gave up its place, so shard 1 does not wait for it.
	m.Spawn(1)

	gc = gw.accept(t)
	gc.hello(t, 45*time.Second)

	var identify discord.Identify

	require.NoError(t, sandwichjson.Unmarshal(gc.expect(t, discord.GatewayOpIdentify).Data, &identify))
	assert.Equal(t, [2]int32{1, 2}, identify.Shard)
}
