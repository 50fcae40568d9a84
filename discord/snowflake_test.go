package discord

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShardIDForGuild(t *testing.T) {
	t.Parallel()

	tests := []struct {
		guildID    Snowflake
		shardCount int32
		want       int32
	}{
		{guildID: 0, shardCount: 1, want: 0},
		{guildID: 41771983423143937, shardCount: 1, want: 0},
		{guildID: 41771983423143937, shardCount: 16, want: int32((41771983423143937 >> 22) % 16)},
		{guildID: 5 << 22, shardCount: 4, want: 1},
		{guildID: 7 << 22, shardCount: 0, want: 0},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, ShardIDForGuild(tt.guildID, tt.shardCount), "guild %d", tt.guildID)
	}
}

func TestSnowflakeJSON(t *testing.T) {
	t.Parallel()

	var payload struct {
		A Snowflake `json:"a"`
		B Snowflake `json:"b"`
		C Snowflake `json:"c"`
	}

	require.NoError(t, json.Unmarshal([]byte(`{"a":"175928847299117063","b":12,"c":null}`), &payload))

	assert.Equal(t, Snowflake(175928847299117063), payload.A)
	assert.Equal(t, Snowflake(12), payload.B)
	assert.True(t, payload.C.IsNil())

	out, err := json.Marshal(payload.A)
	require.NoError(t, err)
	assert.Equal(t, `"175928847299117063"`, string(out))

	assert.Equal(t, int64(1462015105796), payload.A.Time().UnixMilli())
}

func TestGatewayPayloadNullSequence(t *testing.T) {
	t.Parallel()

	var payload GatewayPayload

	require.NoError(t, json.Unmarshal([]byte(`{"op":10,"d":{"heartbeat_interval":41250},"s":null,"t":null}`), &payload))

	assert.Equal(t, GatewayOpHello, payload.Op)
	assert.Equal(t, int64(0), payload.Sequence)
	assert.Equal(t, "HELLO", payload.Op.String())
}
