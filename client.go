package sandwich

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"

	"github.com/WelcomerTeam/Sandwich-Client/discord"
	"github.com/WelcomerTeam/Sandwich-Client/messaging"
	"github.com/WelcomerTeam/Sandwich-Client/rest"
	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"
	"nhooyr.io/websocket"
)

const Version = "1.0.0"

// Client ties together the REST queue and the shard manager of one token.
type Client struct {
	Logger zerolog.Logger

	REST    *rest.Queue
	Manager *ShardManager

	eventProvider EventProvider
	blacklist     *EventProviderWithBlacklist

	mu        sync.Mutex
	connected bool
	producer  *ProducerEventProvider
	redis     redis.UniversalClient

	restOptions []rest.Option
}

// NewClient validates the configuration and creates a client. Events are
// passed to eventProvider, which may be nil when only producers are used.
func NewClient(ctx context.Context, configuration *Configuration, eventProvider EventProvider, logger zerolog.Logger) (*Client, error) {
	err := configuration.Validate()
	if err != nil {
		return nil, err
	}

	opts := []rest.Option{
		rest.WithLogger(logger),
		rest.WithUserAgent(fmt.Sprintf("DiscordBot (https://github.com/WelcomerTeam/Sandwich-Client, %s)", Version)),
	}

	if configuration.BaseURL != "" {
		opts = append(opts, rest.WithBaseURL(configuration.BaseURL))
	}

	if configuration.REST.MaxRetries > 0 {
		opts = append(opts, rest.WithRetries(configuration.REST.MaxRetries, rest.DefaultRetryBackoff))
	}

	if configuration.REST.GlobalRequestsPerSecond > 0 {
		opts = append(opts, rest.WithGlobalRate(configuration.REST.GlobalRequestsPerSecond))
	}

	httpClient := &http.Client{Timeout: configuration.REST.Timeout}

	if configuration.REST.Proxy != "" {
		proxyURL, err := url.Parse(configuration.REST.Proxy)
		if err != nil {
			return nil, fmt.Errorf("failed to parse proxy: %w", err)
		}

		httpClient = rest.NewProxyClient(httpClient, proxyURL)
	}

	if configuration.REST.Timeout > 0 || configuration.REST.Proxy != "" {
		opts = append(opts, rest.WithHTTPClient(httpClient))
	}

	c := &Client{
		Logger:        logger,
		REST:          rest.NewQueue(configuration.Token, opts...),
		eventProvider: eventProvider,
		restOptions:   opts,
	}

	c.blacklist = NewEventProviderWithBlacklist(eventProvider, configuration.EventBlacklist)
	c.Manager = NewShardManager(ctx, configuration, c.REST, c.blacklist, logger)

	if configuration.Identify.URL != "" {
		c.Manager.SetIdentifyProvider(NewIdentifyViaURL(configuration.Identify.URL, configuration.Identify.Headers))
	}

	return c, nil
}

// Connect connects the producer, when configured, and starts all shards.
// It returns once shards are spawned. Use WaitForReady to wait for READY.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.connected {
		return ErrClientConnected
	}

	configuration := c.Manager.Configuration()

	// Disconnect closes the queue, so a reconnecting client needs a new one.
	if c.REST.Closed() {
		c.REST = rest.NewQueue(configuration.Token, c.restOptions...)
		c.Manager.SetREST(c.REST)
	}

	if configuration.Identify.URL == "" && configuration.Identify.Redis.Address != "" && c.redis == nil {
		c.redis = redis.NewClient(&redis.Options{
			Addr:     configuration.Identify.Redis.Address,
			Password: configuration.Identify.Redis.Password,
			DB:       configuration.Identify.Redis.DB,
		})

		c.Manager.SetIdentifyProvider(NewIdentifyViaRedis(c.redis, IdentifyWindow))
	}

	if configuration.Producer.Type != "" {
		producer, err := messaging.NewProducer(configuration.Producer.Type)
		if err != nil {
			return fmt.Errorf("failed to create producer: %w", err)
		}

		clientName := configuration.Producer.ClientName
		if clientName == "" {
			clientName = "sandwich-" + randomHex(4)
		}

		args := make(map[string]interface{}, len(configuration.Producer.Configuration)+1)
		for key, value := range configuration.Producer.Configuration {
			args[key] = value
		}

		if configuration.Producer.Channel != "" {
			args["Channel"] = configuration.Producer.Channel
		}

		err = producer.Connect(ctx, clientName, args)
		if err != nil {
			return fmt.Errorf("failed to connect producer: %w", err)
		}

		c.producer = NewProducerEventProvider(producer, clientName, c.Manager)

		providers := MultiEventProvider{c.producer}
		if c.eventProvider != nil {
			providers = MultiEventProvider{c.eventProvider, c.producer}
		}

		c.blacklist = NewEventProviderWithBlacklist(providers, configuration.EventBlacklist)
		c.Manager.SetEventProvider(c.blacklist)
	}

	err := c.Manager.Start(ctx)
	if err != nil {
		return fmt.Errorf("failed to start shards: %w", err)
	}

	c.connected = true

	return nil
}

// WaitForReady blocks until every shard has been Ready once.
func (c *Client) WaitForReady(ctx context.Context) error {
	return c.Manager.WaitForReady(ctx)
}

// Disconnect closes every shard, then drains queued REST requests until ctx
// expires.
func (c *Client) Disconnect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	err := c.Manager.Close(ctx, websocket.StatusNormalClosure)
	if err != nil {
		c.Logger.Warn().Err(err).Msg("Shards did not close in time")
	}

	restErr := c.REST.Close(ctx)

	if c.producer != nil {
		if perr := c.producer.Close(); perr != nil {
			c.Logger.Warn().Err(perr).Msg("Failed to close producer")
		}

		c.producer = nil
	}

	if c.redis != nil {
		_ = c.redis.Close()

		c.redis = nil
		c.Manager.SetIdentifyProvider(IdentifyViaQueue{})
	}

	c.connected = false

	if err != nil {
		return err
	}

	return restErr
}

// EditStatus updates the presence of every Ready shard.
func (c *Client) EditStatus(ctx context.Context, status *discord.UpdateStatus) error {
	return c.Manager.BroadcastStatus(ctx, status)
}

// ShardIDFor returns the shard that receives events for a guild.
func (c *Client) ShardIDFor(guildID discord.Snowflake) int32 {
	return c.Manager.ShardIDFor(guildID)
}

// SetEventBlacklist changes which dispatch events are dropped.
func (c *Client) SetEventBlacklist(blacklist []string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.blacklist.SetBlacklist(blacklist)
}
