package sandwich

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/WelcomerTeam/Sandwich-Client/discord"
	"github.com/WelcomerTeam/Sandwich-Client/sandwichjson"
	"github.com/WelcomerTeam/czlib"
)

var zlibSuffix = []byte{0x00, 0x00, 0xff, 0xff}

// zlibStream inflates a zlib-stream transport. All frames of a connection
// share one inflate context, so it must be recreated for every socket.
//
// Frames are buffered until the flush suffix and then written into a pipe
// read by the inflater. The pipe blocks the writer until the decoder has
// consumed the message, which keeps the socket reader from running ahead of
// slow consumers.
type zlibStream struct {
	buf []byte

	pipeReader *io.PipeReader
	pipeWriter *io.PipeWriter
}

func newZlibStream() *zlibStream {
	pipeReader, pipeWriter := io.Pipe()

	return &zlibStream{
		pipeReader: pipeReader,
		pipeWriter: pipeWriter,
	}
}

// Write buffers a binary frame. It returns once a complete message has been
// handed to the inflater or more frames are needed.
func (z *zlibStream) Write(frame []byte) error {
	z.buf = append(z.buf, frame...)

	if len(z.buf) < len(zlibSuffix) || !bytes.HasSuffix(z.buf, zlibSuffix) {
		return nil
	}

	_, err := z.pipeWriter.Write(z.buf)
	z.buf = z.buf[:0]

	if err != nil {
		return fmt.Errorf("failed to write to inflater: %w", err)
	}

	return nil
}

// Decode inflates and decodes payloads until the stream is closed. deliver
// returns false once payloads are no longer wanted.
func (z *zlibStream) Decode(ctx context.Context, deliver func(discord.GatewayPayload) bool) error {
	zr, err := czlib.NewReader(z.pipeReader)
	if err != nil {
		return fmt.Errorf("failed to create inflater: %w", err)
	}

	defer zr.Close()

	decoder := sandwichjson.NewDecoder(zr)

	for {
		var payload discord.GatewayPayload

		if err := decoder.Decode(&payload); err != nil {
			return fmt.Errorf("failed to decode payload: %w", err)
		}

		if !deliver(payload) {
			return ctx.Err()
		}
	}
}

// Close unblocks both sides of the pipe.
func (z *zlibStream) Close(err error) {
	if err == nil {
		err = io.EOF
	}

	_ = z.pipeWriter.CloseWithError(err)
	_ = z.pipeReader.CloseWithError(err)
}
