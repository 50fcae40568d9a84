package sandwich

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/WelcomerTeam/Sandwich-Client/discord"
	"github.com/WelcomerTeam/Sandwich-Client/pkg/limiter"
	"github.com/WelcomerTeam/Sandwich-Client/rest"
	csmap "github.com/mhmtszr/concurrent-swiss-map"
	"github.com/rs/zerolog"
	"go.uber.org/atomic"
	"nhooyr.io/websocket"
)

const DefaultGatewayURL = "wss://gateway.discord.gg"

var (
	ReconnectWait         = time.Second
	MaxReconnectWait      = 60 * time.Second
	HelloTimeout          = 20 * time.Second
	InvalidSessionMinWait = time.Second
	InvalidSessionMaxWait = 5 * time.Second
)

type shardTimings struct {
	heartbeatJitter func() float64

	reconnectWait         time.Duration
	maxReconnectWait      time.Duration
	helloTimeout          time.Duration
	invalidSessionMinWait time.Duration
	invalidSessionMaxWait time.Duration
}

// ShardManager owns the shards of a token. It resolves the shard count and
// identify concurrency, spawns shards and routes guilds to them.
type ShardManager struct {
	ctx context.Context

	Logger zerolog.Logger

	configurationMu sync.RWMutex
	configuration   *Configuration

	rest *rest.Queue

	providerMu       sync.RWMutex
	eventProvider    EventProvider
	identifyProvider IdentifyProvider

	identifyQueue *limiter.IdentifyQueue

	spawnMu sync.Mutex
	Shards  *csmap.CsMap[int32, *Shard]

	UserID      *atomic.Int64
	shardCount  *atomic.Int32
	concurrency *atomic.Int32
	gatewayURL  *atomic.String

	gatewayMu sync.RWMutex
	gateway   *discord.GatewayBotResponse

	timings shardTimings
}

func NewShardManager(ctx context.Context, configuration *Configuration, restQueue *rest.Queue, eventProvider EventProvider, logger zerolog.Logger) *ShardManager {
	m := &ShardManager{
		ctx: ctx,

		Logger: logger,

		configuration: configuration,
		rest:          restQueue,

		eventProvider:    eventProvider,
		identifyProvider: IdentifyViaQueue{},

		identifyQueue: limiter.NewIdentifyQueue(1, IdentifyWindow),

		Shards: csmap.Create(
			csmap.WithSize[int32, *Shard](16),
		),

		UserID:      atomic.NewInt64(0),
		shardCount:  atomic.NewInt32(int32(configuration.ShardCount)),
		concurrency: atomic.NewInt32(int32(configuration.Concurrency)),
		gatewayURL:  atomic.NewString(configuration.GatewayURL),

		timings: shardTimings{
			heartbeatJitter:       rand.Float64,
			reconnectWait:         ReconnectWait,
			maxReconnectWait:      MaxReconnectWait,
			helloTimeout:          HelloTimeout,
			invalidSessionMinWait: InvalidSessionMinWait,
			invalidSessionMaxWait: InvalidSessionMaxWait,
		},
	}

	if !configuration.Concurrency.IsAuto() {
		m.identifyQueue.SetConcurrency(int(configuration.Concurrency))
	}

	return m
}

func (m *ShardManager) Configuration() *Configuration {
	m.configurationMu.RLock()
	defer m.configurationMu.RUnlock()

	return m.configuration
}

// SetConfiguration replaces the configuration used by new connections.
func (m *ShardManager) SetConfiguration(configuration *Configuration) {
	m.configurationMu.Lock()
	m.configuration = configuration
	m.configurationMu.Unlock()
}

func (m *ShardManager) EventProvider() EventProvider {
	m.providerMu.RLock()
	defer m.providerMu.RUnlock()

	return m.eventProvider
}

func (m *ShardManager) SetEventProvider(provider EventProvider) {
	m.providerMu.Lock()
	m.eventProvider = provider
	m.providerMu.Unlock()
}

// REST returns the request queue used to resolve the topology.
func (m *ShardManager) REST() *rest.Queue {
	m.providerMu.RLock()
	defer m.providerMu.RUnlock()

	return m.rest
}

func (m *ShardManager) SetREST(q *rest.Queue) {
	m.providerMu.Lock()
	m.rest = q
	m.providerMu.Unlock()
}

func (m *ShardManager) IdentifyProvider() IdentifyProvider {
	m.providerMu.RLock()
	defer m.providerMu.RUnlock()

	return m.identifyProvider
}

func (m *ShardManager) SetIdentifyProvider(provider IdentifyProvider) {
	m.providerMu.Lock()
	m.identifyProvider = provider
	m.providerMu.Unlock()
}

func (m *ShardManager) ShardCount() int32 {
	return m.shardCount.Load()
}

func (m *ShardManager) Concurrency() int32 {
	return m.concurrency.Load()
}

func (m *ShardManager) GatewayURL() string {
	if gatewayURL := m.gatewayURL.Load(); gatewayURL != "" {
		return gatewayURL
	}

	return DefaultGatewayURL
}

// Gateway returns the last /gateway/bot response, if one was fetched.
func (m *ShardManager) Gateway() *discord.GatewayBotResponse {
	m.gatewayMu.RLock()
	defer m.gatewayMu.RUnlock()

	return m.gateway
}

// ResolveTopology fills in the shard count and concurrency. /gateway/bot is
// only requested when either is set to auto.
func (m *ShardManager) ResolveTopology(ctx context.Context) error {
	configuration := m.Configuration()

	shardCount := int32(configuration.ShardCount)
	concurrency := int32(configuration.Concurrency)
	gatewayURL := configuration.GatewayURL

	if configuration.ShardCount.IsAuto() || configuration.Concurrency.IsAuto() {
		gateway, err := m.REST().GatewayBot(ctx)
		if err != nil {
			if errors.Is(err, rest.ErrUnauthorized) {
				return fmt.Errorf("%w: %w", ErrInvalidToken, err)
			}

			return err
		}

		if gateway.URL == "" || gateway.Shards < 1 || gateway.SessionStartLimit.MaxConcurrency < 1 {
			return fmt.Errorf("%w: url=%q shards=%d max_concurrency=%d", ErrGatewayMetadataInvalid,
				gateway.URL, gateway.Shards, gateway.SessionStartLimit.MaxConcurrency)
		}

		m.gatewayMu.Lock()
		m.gateway = gateway
		m.gatewayMu.Unlock()

		if configuration.ShardCount.IsAuto() {
			shardCount = gateway.Shards
		}

		if configuration.Concurrency.IsAuto() {
			concurrency = gateway.SessionStartLimit.MaxConcurrency
		}

		if gatewayURL == "" {
			gatewayURL = gateway.URL
		}
	}

	m.shardCount.Store(shardCount)
	m.concurrency.Store(concurrency)
	m.gatewayURL.Store(gatewayURL)

	m.identifyQueue.SetConcurrency(int(concurrency))

	m.Logger.Info().
		Int32("shardCount", shardCount).
		Int32("concurrency", concurrency).
		Str("gateway", m.GatewayURL()).
		Msg("Resolved gateway topology")

	return nil
}

// ShardIDs returns the shard ids this process should run.
func (m *ShardManager) ShardIDs() []int32 {
	configuration := m.Configuration()
	shardCount := m.ShardCount()

	if configuration.ShardIDs != "" {
		return returnRangeInt32(configuration.NodeCount, configuration.NodeID, configuration.ShardIDs, shardCount)
	}

	first := int32(0)
	last := shardCount - 1

	if configuration.FirstShardID != nil && *configuration.FirstShardID > first {
		first = *configuration.FirstShardID
	}

	if configuration.LastShardID != nil && *configuration.LastShardID < last {
		last = *configuration.LastShardID
	}

	shardIDs := make([]int32, 0, shardCount)

	for i := first; i <= last; i++ {
		shardIDs = append(shardIDs, i)
	}

	return filterNode(configuration.NodeCount, configuration.NodeID, shardIDs)
}

// Start resolves the topology and spawns every shard of this process. It
// does not wait for the shards to become ready.
func (m *ShardManager) Start(ctx context.Context) error {
	err := m.ResolveTopology(ctx)
	if err != nil {
		return err
	}

	shardIDs := m.ShardIDs()
	if len(shardIDs) == 0 {
		return ErrMissingShards
	}

	if gateway := m.Gateway(); gateway != nil && gateway.SessionStartLimit.Total > 0 &&
		int(gateway.SessionStartLimit.Remaining) < len(shardIDs) {
		return fmt.Errorf("%w: %d remaining, %d shards, resets in %s", ErrSessionLimitExhausted,
			gateway.SessionStartLimit.Remaining, len(shardIDs),
			time.Duration(gateway.SessionStartLimit.ResetAfter)*time.Millisecond)
	}

	m.Logger.Info().Int("shards", len(shardIDs)).Msg("Starting shards")

	m.identifyQueue.Reserve(shardIDs...)

	for _, shardID := range shardIDs {
		m.Spawn(shardID)
	}

	return nil
}

// Spawn creates a shard and runs its connection loop. An existing shard
// that has not stopped is returned instead.
func (m *ShardManager) Spawn(shardID int32) *Shard {
	m.spawnMu.Lock()
	defer m.spawnMu.Unlock()

	if sh, ok := m.Shards.Load(shardID); ok {
		select {
		case <-sh.Done():
		default:
			return sh
		}
	}

	sh := NewShard(m, shardID)
	m.Shards.Store(shardID, sh)

	m.identifyQueue.Reserve(shardID)

	go func() {
		_ = sh.Open()
	}()

	return sh
}

// AcquireIdentifySlot blocks until the shard may identify.
func (m *ShardManager) AcquireIdentifySlot(ctx context.Context, shardID int32) error {
	err := m.identifyQueue.Acquire(ctx, shardID)
	if err != nil {
		return fmt.Errorf("failed to acquire identify slot: %w", err)
	}

	return nil
}

// Shard returns a spawned shard.
func (m *ShardManager) Shard(shardID int32) (*Shard, bool) {
	return m.Shards.Load(shardID)
}

// ShardIDFor returns the shard that receives events for a guild.
func (m *ShardManager) ShardIDFor(guildID discord.Snowflake) int32 {
	return discord.ShardIDForGuild(guildID, m.ShardCount())
}

func (m *ShardManager) shards() []*Shard {
	shards := make([]*Shard, 0, m.Shards.Count())

	m.Shards.Range(func(_ int32, sh *Shard) bool {
		shards = append(shards, sh)

		return false
	})

	sort.Slice(shards, func(i, j int) bool {
		return shards[i].ShardID < shards[j].ShardID
	})

	return shards
}

// BroadcastStatus sends a presence update to every Ready shard. Shards that
// are not Ready are skipped.
func (m *ShardManager) BroadcastStatus(ctx context.Context, status *discord.UpdateStatus) error {
	var errs []error

	for _, sh := range m.shards() {
		if sh.Status() != ShardStatusReady {
			continue
		}

		if err := sh.UpdatePresence(ctx, status); err != nil {
			errs = append(errs, fmt.Errorf("shard %d: %w", sh.ShardID, err))
		}
	}

	return errors.Join(errs...)
}

// RequestGuildMembers sends the request on the shard owning the guild.
func (m *ShardManager) RequestGuildMembers(ctx context.Context, request discord.RequestGuildMembers) error {
	shardID := m.ShardIDFor(request.GuildID)

	sh, ok := m.Shard(shardID)
	if !ok {
		return fmt.Errorf("%w: shard %d is not running", ErrInvalidShard, shardID)
	}

	return sh.RequestGuildMembers(ctx, request)
}

// WaitForReady blocks until every spawned shard has been Ready once. A shard
// stopping first returns its error.
func (m *ShardManager) WaitForReady(ctx context.Context) error {
	for _, sh := range m.shards() {
		select {
		case <-sh.Ready():
		case <-sh.Done():
			if err := sh.Err(); err != nil {
				return fmt.Errorf("shard %d: %w", sh.ShardID, err)
			}

			return fmt.Errorf("shard %d: %w", sh.ShardID, ErrShardClosed)
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	return nil
}

// Close closes every shard and waits for their connection loops to exit.
// Shards can be started again afterwards.
func (m *ShardManager) Close(ctx context.Context, code websocket.StatusCode) error {
	shards := m.shards()

	for _, sh := range shards {
		sh.Close(code)
	}

	for _, sh := range shards {
		if !sh.opened.Load() {
			continue
		}

		select {
		case <-sh.Done():
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	return nil
}
