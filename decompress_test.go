package sandwich

import (
	"bytes"
	"compress/zlib"
	"context"
	"testing"
	"time"

	"github.com/WelcomerTeam/Sandwich-Client/discord"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestZlibStream(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	zw := zlib.NewWriter(&buf)

	compress := func(payload string) []byte {
		_, _ = zw.Write([]byte(payload))
		require.NoError(t, zw.Flush())

		out := append([]byte(nil), buf.Bytes()...)
		buf.Reset()

		return out
	}

	stream := newZlibStream()
	messageCh := make(chan discord.GatewayPayload, 4)
	errCh := make(chan error, 1)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		errCh <- stream.Decode(ctx, func(payload discord.GatewayPayload) bool {
			messageCh <- payload

			return true
		})
	}()

	hello := compress(`{"op":10,"d":{"heartbeat_interval":41250}}`)
	require.True(t, bytes.HasSuffix(hello, zlibSuffix))
	require.NoError(t, stream.Write(hello))

	// A message may be split over several frames.
	dispatch := compress(`{"op":0,"t":"MESSAGE_CREATE","s":2,"d":{"content":"` + string(bytes.Repeat([]byte("a"), 4096)) + `"}}`)
	require.NoError(t, stream.Write(dispatch[:10]))
	require.NoError(t, stream.Write(dispatch[10:]))

	for _, want := range []discord.GatewayOp{discord.GatewayOpHello, discord.GatewayOpDispatch} {
		select {
		case msg := <-messageCh:
			assert.Equal(t, want, msg.Op)
		case <-time.After(testTimeout):
			require.FailNow(t, "timed out waiting for payload")
		}
	}

	stream.Close(nil)

	select {
	case err := <-errCh:
		assert.Error(t, err)
	case <-time.After(testTimeout):
		require.FailNow(t, "decoder did not stop")
	}
}
