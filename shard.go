package sandwich

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/WelcomerTeam/Sandwich-Client/discord"
	"github.com/WelcomerTeam/Sandwich-Client/pkg/limiter"
	"github.com/WelcomerTeam/Sandwich-Client/sandwichjson"
	"github.com/WelcomerTeam/czlib"
	"github.com/rs/zerolog"
	gotils_strconv "github.com/savsgio/gotils/strconv"
	"go.uber.org/atomic"
	"nhooyr.io/websocket"
)

const (
	WebsocketReadLimit          = 512 << 20
	WebsocketReconnectCloseCode = 4000

	MessageChannelBuffer = 64

	// Number of consecutive failed connection attempts before giving up on a shard.
	ShardConnectRetries = 10

	// Heartbeat intervals without an ACK before the connection is considered dead.
	MaxHeartbeatMisses = 2

	// The gateway allows 120 commands a minute. Heartbeats are not counted.
	ShardWSRateLimit = 110

	GatewayLargeThreshold = 250
)

// Shard represents a single gateway connection and its session.
type Shard struct {
	ctx    context.Context
	cancel context.CancelFunc

	Logger zerolog.Logger

	Manager *ShardManager

	ShardID int32

	Init  *atomic.Time
	Start *atomic.Time

	LastHeartbeatAck  *atomic.Time
	LastHeartbeatSent *atomic.Time
	HeartbeatInterval *atomic.Duration

	heartbeatMisses *atomic.Int32
	awaitingAck     *atomic.Bool
	latency         *atomic.Duration

	sequence         *atomic.Int64
	sessionID        *atomic.String
	resumeGatewayURL *atomic.String

	status *atomic.Int32

	wsConnMu sync.RWMutex
	wsConn   *websocket.Conn

	wsRatelimit *limiter.DurationLimiter

	opened    *atomic.Bool
	readyOnce sync.Once
	ready     chan struct{}
	done      chan struct{}
	err       *atomic.Error
}

// NewShard creates a new shard object. The shard does not connect until Open is called.
func NewShard(manager *ShardManager, shardID int32) *Shard {
	ctx, cancel := context.WithCancel(manager.ctx)

	sh := &Shard{
		ctx:    ctx,
		cancel: cancel,

		Logger: manager.Logger.With().Int32("shardId", shardID).Logger(),

		Manager: manager,
		ShardID: shardID,

		Init:  atomic.NewTime(time.Now().UTC()),
		Start: atomic.NewTime(time.Time{}),

		LastHeartbeatAck:  atomic.NewTime(time.Time{}),
		LastHeartbeatSent: atomic.NewTime(time.Time{}),
		HeartbeatInterval: atomic.NewDuration(0),

		heartbeatMisses: atomic.NewInt32(0),
		awaitingAck:     atomic.NewBool(false),
		latency:         atomic.NewDuration(0),

		sequence:         atomic.NewInt64(0),
		sessionID:        atomic.NewString(""),
		resumeGatewayURL: atomic.NewString(""),

		status: atomic.NewInt32(int32(ShardStatusIdle)),

		wsRatelimit: limiter.NewDurationLimiter(
			fmt.Sprintf("gateway:%d", shardID), ShardWSRateLimit, time.Minute),

		opened: atomic.NewBool(false),
		ready:  make(chan struct{}),
		done:   make(chan struct{}),
		err:    atomic.NewError(nil),
	}

	return sh
}

// Open runs the connection loop until the shard is closed or receives a
// close code it cannot recover from. Every connection resumes the stored
// session when one exists.
func (sh *Shard) Open() error {
	if !sh.opened.CompareAndSwap(false, true) {
		return nil
	}

	defer close(sh.done)

	// A stopped shard must not hold back the identify queue.
	defer sh.Manager.identifyQueue.Cancel(sh.ShardID)

	sh.Logger.Debug().Msg("Started listening to shard")

	var attempt, failures int

	for {
		ready, err := sh.connect(sh.ctx)

		if sh.ctx.Err() != nil {
			sh.SetStatus(ShardStatusClosed)

			return nil
		}

		if ready {
			attempt = 0
		}

		var closeError *GatewayCloseError
		if errors.As(err, &closeError) && closeError.Fatal() {
			sh.clearSession()

			return sh.fail(err)
		}

		if errors.Is(err, ErrShardConnect) {
			failures++

			if failures >= ShardConnectRetries {
				return sh.fail(err)
			}
		} else {
			failures = 0
		}

		sh.emit(context.WithoutCancel(sh.ctx), Event{Type: EventShardDisconnect, Err: err})

		if !sh.Manager.Configuration().ShouldAutoReconnect() {
			return sh.fail(err)
		}

		sh.SetStatus(ShardStatusReconnecting)

		var wait time.Duration

		if !errors.Is(err, errReconnect) {
			attempt++
			wait = backoff(attempt, sh.Manager.timings.reconnectWait, sh.Manager.timings.maxReconnectWait)
		}

		sh.Logger.Warn().Err(err).Dur("retry", wait).Msg("Gateway connection ended. Reconnecting")

		if sleepContext(sh.ctx, wait) != nil {
			sh.SetStatus(ShardStatusClosed)

			return nil
		}

		RecordReconnect(sh.ShardID)
	}
}

// connect dials the gateway, handshakes and handles events until the
// connection ends. ready reports whether the session reached Ready.
func (sh *Shard) connect(ctx context.Context) (ready bool, err error) {
	sh.Logger.Debug().Msg("Connecting shard")

	// Do not override status if it is currently Reconnecting.
	if sh.Status() != ShardStatusReconnecting {
		sh.SetStatus(ShardStatusConnecting)
	}

	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	gatewayURL := sh.gatewayURL()

	conn, _, err := websocket.Dial(connCtx, gatewayURL, nil)
	if err != nil {
		sh.Logger.Error().Err(err).Str("url", gatewayURL).Msg("Failed to dial gateway")

		return false, fmt.Errorf("%w: %w", ErrShardConnect, err)
	}

	conn.SetReadLimit(WebsocketReadLimit)

	sh.wsConnMu.Lock()
	sh.wsConn = conn
	sh.wsConnMu.Unlock()

	sh.wsRatelimit.Reset()

	defer sh.closeConn(conn, WebsocketReconnectCloseCode)

	messageCh, errorCh := sh.feedWebsocket(connCtx, conn)

	sh.SetStatus(ShardStatusAwaitingHello)

	msg, err := sh.readHello(connCtx, messageCh, errorCh)
	if err != nil {
		return false, fmt.Errorf("%w: %w", ErrShardConnect, err)
	}

	var hello discord.Hello

	err = decodeContent(msg, &hello)
	if err != nil {
		return false, fmt.Errorf("%w: %w", ErrShardConnect, err)
	}

	if hello.HeartbeatInterval <= 0 {
		return false, fmt.Errorf("%w: invalid heartbeat interval %d", ErrShardConnect, hello.HeartbeatInterval)
	}

	now := time.Now().UTC()

	sh.Start.Store(now)
	sh.LastHeartbeatAck.Store(now)
	sh.LastHeartbeatSent.Store(now)

	interval := time.Duration(hello.HeartbeatInterval) * time.Millisecond
	sh.HeartbeatInterval.Store(interval)

	heartbeatErrCh := make(chan error, 1)

	go sh.heartbeat(connCtx, interval, heartbeatErrCh)

	sh.Logger.Debug().
		Dur("interval", interval).
		Int64("sequence", sh.sequence.Load()).
		Msg("Received HELLO event")

	// The handshake may wait a long time for an identify slot, so it runs
	// alongside the event loop.
	handshakeErrCh := make(chan error, 1)
	handshakeDone := make(chan struct{})

	go func() {
		defer close(handshakeDone)

		handshakeErrCh <- sh.handshake(connCtx)
	}()

	defer func() {
		cancel()
		<-handshakeDone
	}()

	for {
		select {
		case <-connCtx.Done():
			return ready, connCtx.Err()
		case err = <-heartbeatErrCh:
			sh.Logger.Warn().Err(err).Msg("Heartbeat failed. Terminating connection")

			return ready, err
		case err = <-handshakeErrCh:
			if err != nil {
				return ready, err
			}

			handshakeErrCh = nil
		case err = <-errorCh:
			return ready, sh.closeError(err)
		case msg = <-messageCh:
			err = sh.OnEvent(connCtx, msg)

			ready = ready || sh.Status() == ShardStatusReady

			if err != nil {
				return ready, err
			}
		}
	}
}

// handshake resumes the stored session or identifies a new one.
func (sh *Shard) handshake(ctx context.Context) error {
	if sh.canResume() {
		sh.SetStatus(ShardStatusResuming)

		err := sh.Resume(ctx)
		if err != nil {
			sh.Logger.Error().Err(err).Msg("Failed to resume")

			return err
		}

		return nil
	}

	sh.SetStatus(ShardStatusIdentifying)

	err := sh.Identify(ctx)
	if err != nil && ctx.Err() == nil {
		sh.Logger.Error().Err(err).Msg("Failed to identify")
	}

	return err
}

func (sh *Shard) readHello(ctx context.Context, messageCh <-chan discord.GatewayPayload, errorCh <-chan error) (discord.GatewayPayload, error) {
	t := time.NewTimer(sh.Manager.timings.helloTimeout)
	defer t.Stop()

	select {
	case msg := <-messageCh:
		if msg.Op != discord.GatewayOpHello {
			return msg, fmt.Errorf("%w: received %s", ErrUnexpectedHello, msg.Op.String())
		}

		return msg, nil
	case err := <-errorCh:
		return discord.GatewayPayload{}, sh.closeError(err)
	case <-t.C:
		return discord.GatewayPayload{}, fmt.Errorf("%w: timed out", ErrUnexpectedHello)
	case <-ctx.Done():
		return discord.GatewayPayload{}, ctx.Err()
	}
}

// feedWebsocket reads websocket messages and feeds them through a channel.
// When zlib-stream is enabled a second goroutine inflates and decodes.
func (sh *Shard) feedWebsocket(ctx context.Context, conn *websocket.Conn) (<-chan discord.GatewayPayload, <-chan error) {
	messageCh := make(chan discord.GatewayPayload, MessageChannelBuffer)
	errorCh := make(chan error, 2)

	sendError := func(err error) {
		select {
		case errorCh <- err:
		default:
		}
	}

	// ACKs are handled before the channel so a busy event loop cannot
	// starve the heartbeat.
	deliver := func(msg discord.GatewayPayload) bool {
		if msg.Op == discord.GatewayOpHeartbeatACK {
			sh.onHeartbeatACK()

			return true
		}

		select {
		case messageCh <- msg:
			return true
		case <-ctx.Done():
			return false
		}
	}

	var stream *zlibStream

	if sh.Manager.Configuration().Compress {
		stream = newZlibStream()

		go func() {
			err := stream.Decode(ctx, deliver)
			if ctx.Err() == nil {
				sh.Logger.Error().Err(err).Msg("Failed to inflate gateway stream")
				sendError(err)
			}
		}()
	}

	go func() {
		if stream != nil {
			defer stream.Close(nil)
		}

		for {
			messageType, data, err := conn.Read(ctx)
			if err != nil {
				if ctx.Err() == nil {
					sendError(err)
				}

				return
			}

			if messageType == websocket.MessageBinary {
				if stream != nil {
					err = stream.Write(data)
					if err != nil {
						sendError(err)

						return
					}

					continue
				}

				data, err = czlib.Decompress(data)
				if err != nil {
					sh.Logger.Error().Err(err).Msg("Failed to decompress data")
					sendError(err)

					return
				}
			}

			var msg discord.GatewayPayload

			err = sandwichjson.Unmarshal(data, &msg)
			if err != nil {
				sh.Logger.Error().Err(err).Msg("Failed to unmarshal message")

				continue
			}

			if !deliver(msg) {
				return
			}
		}
	}()

	return messageCh, errorCh
}

// closeError converts gateway close frames into a GatewayCloseError.
func (sh *Shard) closeError(err error) error {
	var closeError websocket.CloseError

	if !errors.As(err, &closeError) {
		return err
	}

	sh.Logger.Warn().Int("code", int(closeError.Code)).Str("reason", closeError.Reason).Msg("Websocket was closed")

	if invalidatesSession(closeError.Code) {
		sh.clearSession()
	}

	if closeError.Code < WebsocketReconnectCloseCode {
		return err
	}

	return &GatewayCloseError{Code: closeError.Code, Reason: closeError.Reason}
}

// Heartbeat maintains a heartbeat with the gateway. The first beat is sent
// after a random fraction of the interval. If the previous beat has not been
// acknowledged when the next one is due it counts as a miss and no beat is
// sent. The second miss in a row terminates the connection.
func (sh *Shard) heartbeat(ctx context.Context, interval time.Duration, errorCh chan<- error) {
	sh.heartbeatMisses.Store(0)
	sh.awaitingAck.Store(false)

	jitter := time.Duration(float64(interval) * sh.Manager.timings.heartbeatJitter())

	t := time.NewTimer(jitter)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}

		t.Reset(interval)

		if sh.awaitingAck.Load() {
			misses := sh.heartbeatMisses.Inc()

			sh.Logger.Warn().Int32("misses", misses).Msg("Heartbeat was not acknowledged")

			if misses >= MaxHeartbeatMisses {
				errorCh <- ErrHeartbeatTimeout

				return
			}

			// Only one beat is left unacknowledged at a time.
			continue
		}

		err := sh.sendHeartbeat(ctx)
		if err != nil {
			if ctx.Err() == nil {
				errorCh <- fmt.Errorf("failed to heartbeat: %w", err)
			}

			return
		}
	}
}

func (sh *Shard) sendHeartbeat(ctx context.Context) error {
	var sequence *int64

	if seq := sh.sequence.Load(); seq != 0 {
		sequence = &seq
	}

	sh.awaitingAck.Store(true)
	sh.LastHeartbeatSent.Store(time.Now().UTC())

	return sh.SendEvent(ctx, discord.GatewayOpHeartbeat, sequence)
}

func (sh *Shard) onHeartbeatACK() {
	now := time.Now().UTC()

	sh.LastHeartbeatAck.Store(now)
	sh.awaitingAck.Store(false)
	sh.heartbeatMisses.Store(0)

	latency := now.Sub(sh.LastHeartbeatSent.Load())
	sh.latency.Store(latency)

	UpdateGatewayLatency(sh.ShardID, latency)

	sh.Logger.Debug().Int64("RTT", latency.Milliseconds()).Msg("Received heartbeat ACK")
}

// Latency returns the round trip time of the last acknowledged heartbeat.
func (sh *Shard) Latency() time.Duration {
	return sh.latency.Load()
}

// Identify waits for an identify slot and sends the identify packet. The
// send budget is taken first so the packet is written as soon as the slot
// is granted.
func (sh *Shard) Identify(ctx context.Context) error {
	err := sh.wsRatelimit.Wait(ctx)
	if err != nil {
		return fmt.Errorf("failed to wait for ratelimit: %w", err)
	}

	start := time.Now()

	err = sh.Manager.IdentifyProvider().Identify(ctx, sh)
	if err != nil {
		return fmt.Errorf("failed to wait for identify: %w", err)
	}

	GatewayMetrics.IdentifyWait.Observe(time.Since(start).Seconds())

	sh.Logger.Debug().Msg("Wait for identify completed")

	configuration := sh.Manager.Configuration()

	largeThreshold := configuration.LargeThreshold
	if largeThreshold <= 0 {
		largeThreshold = GatewayLargeThreshold
	}

	return sh.writeEvent(ctx, discord.GatewayOpIdentify, discord.Identify{
		Token: configuration.Token,
		Properties: &discord.IdentifyProperties{
			OS:      runtime.GOOS,
			Browser: "Sandwich " + Version,
			Device:  "Sandwich " + Version,
		},
		LargeThreshold: largeThreshold,
		Shard:          [2]int32{sh.ShardID, sh.Manager.ShardCount()},
		Presence:       sh.fillInUpdateStatus(&configuration.DefaultPresence),
		Intents:        configuration.Intents,
	})
}

// Resume sends the resume packet to the gateway.
func (sh *Shard) Resume(ctx context.Context) error {
	sh.Logger.Debug().Msg("Sending resume")

	return sh.SendEvent(ctx, discord.GatewayOpResume, discord.Resume{
		Token:     sh.Manager.Configuration().Token,
		SessionID: sh.sessionID.Load(),
		Sequence:  sh.sequence.Load(),
	})
}

// fillInUpdateStatus returns a copy of the status with {{shard_id}} replaced.
func (sh *Shard) fillInUpdateStatus(us *discord.UpdateStatus) *discord.UpdateStatus {
	if us == nil || (us.Status == "" && len(us.Activities) == 0) {
		return nil
	}

	shardID := strconv.Itoa(int(sh.ShardID))

	filled := *us
	filled.Activities = make([]*discord.Activity, 0, len(us.Activities))

	for _, activity := range us.Activities {
		if activity == nil {
			continue
		}

		filledActivity := *activity
		filledActivity.Name = strings.ReplaceAll(filledActivity.Name, "{{shard_id}}", shardID)
		filledActivity.State = strings.ReplaceAll(filledActivity.State, "{{shard_id}}", shardID)

		filled.Activities = append(filled.Activities, &filledActivity)
	}

	return &filled
}

// UpdatePresence sends a presence update. The shard must be Ready.
func (sh *Shard) UpdatePresence(ctx context.Context, us *discord.UpdateStatus) error {
	if sh.Status() != ShardStatusReady {
		return ErrShardNotReady
	}

	return sh.SendEvent(ctx, discord.GatewayOpPresenceUpdate, sh.fillInUpdateStatus(us))
}

// RequestGuildMembers asks the gateway to send GUILD_MEMBERS_CHUNK events.
func (sh *Shard) RequestGuildMembers(ctx context.Context, request discord.RequestGuildMembers) error {
	if sh.Status() != ShardStatusReady {
		return ErrShardNotReady
	}

	return sh.SendEvent(ctx, discord.GatewayOpRequestGuildMembers, request)
}

// SendEvent sends an event to the gateway. Everything except heartbeats
// waits on the send budget of the connection.
func (sh *Shard) SendEvent(ctx context.Context, op discord.GatewayOp, data interface{}) error {
	if op != discord.GatewayOpHeartbeat {
		err := sh.wsRatelimit.Wait(ctx)
		if err != nil {
			return fmt.Errorf("failed to wait for ratelimit: %w", err)
		}
	}

	return sh.writeEvent(ctx, op, data)
}

// writeEvent writes an event without waiting on the send budget.
func (sh *Shard) writeEvent(ctx context.Context, op discord.GatewayOp, data interface{}) error {
	payload, err := sandwichjson.Marshal(discord.SentPayload{
		Op:   op,
		Data: data,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	sh.wsConnMu.RLock()
	wsConn := sh.wsConn
	sh.wsConnMu.RUnlock()

	if wsConn == nil {
		return ErrNoWebsocket
	}

	if op != discord.GatewayOpIdentify && op != discord.GatewayOpResume {
		sh.Logger.Trace().Msg("<<< " + gotils_strconv.B2S(payload))
	}

	err = wsConn.Write(ctx, websocket.MessageText, payload)
	if err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}

	return nil
}

// OnEvent handles a single gateway payload.
func (sh *Shard) OnEvent(ctx context.Context, msg discord.GatewayPayload) error {
	handler, ok := gatewayHandlers[msg.Op]
	if !ok {
		sh.Logger.Debug().Err(ErrNoGatewayHandler).Int("op", int(msg.Op)).Msg("Ignoring gateway event")

		return nil
	}

	return handler(ctx, sh, msg)
}

// OnDispatch updates the session from a dispatch and forwards it.
func (sh *Shard) OnDispatch(ctx context.Context, msg discord.GatewayPayload) error {
	var replayed bool

	switch msg.Type {
	case "READY":
		var ready discord.Ready

		err := decodeContent(msg, &ready)
		if err != nil {
			return err
		}

		// A new session starts its own sequence.
		sh.sequence.Store(msg.Sequence)
		sh.sessionID.Store(ready.SessionID)
		sh.resumeGatewayURL.Store(ready.ResumeGatewayURL)

		sh.Manager.UserID.Store(int64(ready.User.ID))

		sh.Logger.Info().Str("sessionId", ready.SessionID).Msg("Shard is ready")

		sh.SetStatus(ShardStatusReady)
		sh.markReady()
		sh.emit(ctx, Event{Type: EventShardReady, Payload: msg.Data, Sequence: msg.Sequence})
	case "RESUMED":
		sh.observeSequence(msg.Sequence)

		sh.Logger.Info().Int64("sequence", sh.sequence.Load()).Msg("Shard has resumed")

		sh.SetStatus(ShardStatusReady)
		sh.markReady()
		sh.emit(ctx, Event{Type: EventShardResumed, Sequence: msg.Sequence})
	default:
		replayed = sh.observeSequence(msg.Sequence)
	}

	RecordEvent(msg.Type)

	sh.emit(ctx, Event{
		Type:     EventDispatch,
		Name:     msg.Type,
		Payload:  msg.Data,
		Sequence: msg.Sequence,
		Replayed: replayed,
	})

	return nil
}

// observeSequence moves the sequence forward. Sequences at or below the
// current value are not applied and reported as replayed.
func (sh *Shard) observeSequence(sequence int64) (replayed bool) {
	if sequence == 0 {
		return false
	}

	for {
		current := sh.sequence.Load()
		if sequence <= current {
			return true
		}

		if sh.sequence.CompareAndSwap(current, sequence) {
			return false
		}
	}
}

// Sequence returns the last applied sequence number.
func (sh *Shard) Sequence() int64 {
	return sh.sequence.Load()
}

// SessionID returns the current session id, or an empty string.
func (sh *Shard) SessionID() string {
	return sh.sessionID.Load()
}

func (sh *Shard) canResume() bool {
	return sh.sessionID.Load() != "" && sh.sequence.Load() != 0
}

func (sh *Shard) clearSession() {
	sh.sessionID.Store("")
	sh.sequence.Store(0)
	sh.resumeGatewayURL.Store("")
}

func (sh *Shard) gatewayURL() string {
	base := sh.resumeGatewayURL.Load()
	if base == "" || !sh.canResume() {
		base = sh.Manager.GatewayURL()
	}

	u, err := url.Parse(base)
	if err != nil {
		return base
	}

	if u.Path == "" {
		u.Path = "/"
	}

	query := u.Query()
	query.Set("v", strconv.Itoa(discord.GatewayVersion))
	query.Set("encoding", "json")

	if sh.Manager.Configuration().Compress {
		query.Set("compress", "zlib-stream")
	}

	u.RawQuery = query.Encode()

	return u.String()
}

func (sh *Shard) markReady() {
	sh.readyOnce.Do(func() {
		close(sh.ready)
	})
}

// emit passes an event to the event provider. Errors and panics in the
// provider do not affect the connection.
func (sh *Shard) emit(ctx context.Context, event Event) {
	provider := sh.Manager.EventProvider()
	if provider == nil {
		return
	}

	event.ShardID = sh.ShardID

	defer func() {
		if r := recover(); r != nil {
			sh.Logger.Error().Interface("recovered", r).Str("type", event.Type.String()).Msg("Recovered panic in event provider")
		}
	}()

	err := provider.Dispatch(ctx, event)
	if err != nil {
		sh.Logger.Error().Err(err).Str("type", event.Type.String()).Str("name", event.Name).Msg("Event provider failed")
	}
}

func (sh *Shard) fail(err error) error {
	sh.Logger.Error().Err(err).Msg("Shard stopped")

	sh.err.Store(err)
	sh.SetStatus(ShardStatusClosed)
	sh.emit(context.WithoutCancel(sh.ctx), Event{Type: EventShardError, Err: err})

	return err
}

// Err returns the error the shard stopped with, if any.
func (sh *Shard) Err() error {
	return sh.err.Load()
}

// Done is closed once the connection loop has exited.
func (sh *Shard) Done() <-chan struct{} {
	return sh.done
}

// Ready is closed the first time the shard reaches Ready.
func (sh *Shard) Ready() <-chan struct{} {
	return sh.ready
}

// Close closes the shard connection and stops reconnecting. Closing with
// 1000 or 1001 invalidates the session.
func (sh *Shard) Close(code websocket.StatusCode) {
	sh.Logger.Info().Int("code", int(code)).Msg("Closing shard")

	if code == websocket.StatusNormalClosure || code == websocket.StatusGoingAway {
		sh.clearSession()
	}

	_ = sh.CloseWS(code)

	sh.cancel()

	if !sh.opened.Load() {
		sh.SetStatus(ShardStatusClosed)
	}
}

// Disconnect closes the shard. When reconnect is true only the socket is
// closed with a resumable code and the shard resumes on a new connection.
func (sh *Shard) Disconnect(ctx context.Context, reconnect bool) error {
	if reconnect {
		return sh.CloseWS(WebsocketReconnectCloseCode)
	}

	sh.Close(websocket.StatusNormalClosure)

	if !sh.opened.Load() {
		return nil
	}

	select {
	case <-sh.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// CloseWS closes the websocket. The error is suppressed and logged.
func (sh *Shard) CloseWS(statusCode websocket.StatusCode) error {
	sh.wsConnMu.Lock()
	wsConn := sh.wsConn
	sh.wsConn = nil
	sh.wsConnMu.Unlock()

	if wsConn == nil {
		return nil
	}

	sh.Logger.Debug().Int("code", int(statusCode)).Msg("Closing websocket connection")

	err := wsConn.Close(statusCode, "")
	if err != nil && !errors.Is(err, context.Canceled) {
		sh.Logger.Debug().Err(err).Msg("Failed to close websocket connection")
	}

	return nil
}

// closeConn closes conn if it is still the shard's current connection.
func (sh *Shard) closeConn(conn *websocket.Conn, statusCode websocket.StatusCode) {
	sh.wsConnMu.RLock()
	current := sh.wsConn == conn
	sh.wsConnMu.RUnlock()

	if current {
		_ = sh.CloseWS(statusCode)
	}
}

// SetStatus sets the status of the shard and emits EventShardStatus.
func (sh *Shard) SetStatus(status ShardStatus) {
	previous := ShardStatus(sh.status.Swap(int32(status)))
	if previous == status {
		return
	}

	sh.Logger.Debug().Str("status", status.String()).Msg("Shard status changed")

	UpdateShardStatus(sh.ShardID, status)

	sh.emit(context.WithoutCancel(sh.ctx), Event{Type: EventShardStatus, Status: status})
}

// Status returns the status of the shard.
func (sh *Shard) Status() ShardStatus {
	return ShardStatus(sh.status.Load())
}
