package discord

import (
	"bytes"
	"fmt"
	"strconv"
	"time"
)

const DiscordCreation = 1420070400000

var null = []byte("null")

// Snowflake is a 64 bit identifier. It is sent as a string over the wire.
type Snowflake int64

func (s Snowflake) IsNil() bool {
	return s == 0
}

func (s *Snowflake) UnmarshalJSON(b []byte) error {
	if len(b) == 0 || bytes.Equal(b, null) {
		*s = 0

		return nil
	}

	if b[0] == '"' && len(b) >= 2 {
		b = b[1 : len(b)-1]
	}

	i, err := strconv.ParseInt(string(b), 10, 64)
	if err != nil {
		return fmt.Errorf("failed to unmarshal snowflake: %w", err)
	}

	*s = Snowflake(i)

	return nil
}

func (s Snowflake) MarshalJSON() ([]byte, error) {
	buf := make([]byte, 0, 22)
	buf = append(buf, '"')
	buf = strconv.AppendInt(buf, int64(s), 10)
	buf = append(buf, '"')

	return buf, nil
}

func (s Snowflake) String() string {
	return strconv.FormatInt(int64(s), 10)
}

// Time returns the creation time of the Snowflake.
func (s Snowflake) Time() time.Time {
	msec := (int64(s) >> 22) + DiscordCreation

	return time.UnixMilli(msec)
}

// ShardIDForGuild returns the shard that receives events for a guild.
func ShardIDForGuild(guildID Snowflake, shardCount int32) int32 {
	if shardCount <= 0 {
		return 0
	}

	return int32((uint64(guildID) >> 22) % uint64(shardCount))
}
