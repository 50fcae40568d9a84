package sandwich

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/WelcomerTeam/Sandwich-Client/discord"
	"github.com/WelcomerTeam/Sandwich-Client/messaging"
	"github.com/WelcomerTeam/Sandwich-Client/sandwichjson"
	"gopkg.in/yaml.v3"
)

const autoValue = "auto"

// AutoInt32 is an integer that may be set to "auto" in configuration files.
// Auto and zero are equivalent.
type AutoInt32 int32

func (a AutoInt32) IsAuto() bool {
	return a <= 0
}

func (a *AutoInt32) parse(value string) error {
	value = strings.TrimSpace(value)

	if value == "" || strings.EqualFold(value, autoValue) {
		*a = 0

		return nil
	}

	i, err := strconv.ParseInt(value, 10, 32)
	if err != nil {
		return fmt.Errorf("invalid value %q: %w", value, err)
	}

	*a = AutoInt32(i)

	return nil
}

func (a *AutoInt32) UnmarshalYAML(value *yaml.Node) error {
	return a.parse(value.Value)
}

func (a AutoInt32) MarshalYAML() (interface{}, error) {
	if a.IsAuto() {
		return autoValue, nil
	}

	return int32(a), nil
}

func (a *AutoInt32) UnmarshalJSON(b []byte) error {
	var raw interface{}

	if err := sandwichjson.Unmarshal(b, &raw); err != nil {
		return err
	}

	switch v := raw.(type) {
	case nil:
		*a = 0

		return nil
	case float64:
		*a = AutoInt32(v)

		return nil
	case string:
		return a.parse(v)
	default:
		return fmt.Errorf("invalid value %s", string(b))
	}
}

type Configuration struct {
	Token   string                `json:"token" yaml:"token"`
	Intents discord.GatewayIntent `json:"intents" yaml:"intents"`

	ShardCount  AutoInt32 `json:"shard_count" yaml:"shard_count"`
	Concurrency AutoInt32 `json:"concurrency" yaml:"concurrency"`

	// ShardIDs takes precedence over FirstShardID and LastShardID, for example "0-4,6".
	ShardIDs     string `json:"shard_ids" yaml:"shard_ids"`
	FirstShardID *int32 `json:"first_shard_id,omitempty" yaml:"first_shard_id,omitempty"`
	LastShardID  *int32 `json:"last_shard_id,omitempty" yaml:"last_shard_id,omitempty"`

	// This is used to segment shards over multiple processes.
	NodeCount int32 `json:"node_count" yaml:"node_count"`
	NodeID    int32 `json:"node_id" yaml:"node_id"`

	Compress       bool  `json:"compress" yaml:"compress"`
	AutoReconnect  *bool `json:"auto_reconnect,omitempty" yaml:"auto_reconnect,omitempty"`
	LargeThreshold int32 `json:"large_threshold" yaml:"large_threshold"`

	DefaultPresence discord.UpdateStatus `json:"default_presence" yaml:"default_presence"`

	// Events that will not be passed to the event provider.
	EventBlacklist []string `json:"event_blacklist" yaml:"event_blacklist"`

	GatewayURL string `json:"gateway_url" yaml:"gateway_url"`
	BaseURL    string `json:"base_url" yaml:"base_url"`

	REST struct {
		MaxRetries              int           `json:"max_retries" yaml:"max_retries"`
		GlobalRequestsPerSecond int           `json:"global_requests_per_second" yaml:"global_requests_per_second"`
		Timeout                 time.Duration `json:"timeout" yaml:"timeout"`

		// Proxy sends all requests to a REST proxy such as nirn-proxy.
		Proxy string `json:"proxy" yaml:"proxy"`
	} `json:"rest" yaml:"rest"`

	Identify struct {
		// URL is used to identify through an external service, see IdentifyViaURL.
		URL     string            `json:"url" yaml:"url"`
		Headers map[string]string `json:"headers" yaml:"headers"`

		Redis struct {
			Address  string `json:"address" yaml:"address"`
			Password string `json:"password" yaml:"password"`
			DB       int    `json:"db" yaml:"db"`
		} `json:"redis" yaml:"redis"`
	} `json:"identify" yaml:"identify"`

	Producer struct {
		Type          string                 `json:"type" yaml:"type"`
		ClientName    string                 `json:"client_name" yaml:"client_name"`
		Channel       string                 `json:"channel" yaml:"channel"`
		Configuration map[string]interface{} `json:"configuration" yaml:"configuration"`
	} `json:"producer" yaml:"producer"`

	Prometheus struct {
		Address string `json:"address" yaml:"address"`
	} `json:"prometheus" yaml:"prometheus"`

	Logging struct {
		Level              string `json:"level" yaml:"level"`
		FileLoggingEnabled bool   `json:"file_logging_enabled" yaml:"file_logging_enabled"`
		Filename           string `json:"filename" yaml:"filename"`
		MaxSize            int    `json:"max_size" yaml:"max_size"`
		MaxBackups         int    `json:"max_backups" yaml:"max_backups"`
		MaxAge             int    `json:"max_age" yaml:"max_age"`
		Compress           bool   `json:"compress" yaml:"compress"`
	} `json:"logging" yaml:"logging"`
}

// LoadConfiguration handles loading the configuration file.
func LoadConfiguration(path string) (*Configuration, error) {
	file, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrReadConfigurationFailure, err)
	}

	configuration := &Configuration{}

	err = yaml.Unmarshal(file, configuration)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfigurationFailure, err)
	}

	return configuration, nil
}

// ShouldAutoReconnect defaults to true when unset.
func (c *Configuration) ShouldAutoReconnect() bool {
	return c.AutoReconnect == nil || *c.AutoReconnect
}

// Validate checks the configuration for values that would fail at runtime.
func (c *Configuration) Validate() error {
	if strings.TrimSpace(c.Token) == "" {
		return ErrConfigurationValidateToken
	}

	if c.FirstShardID != nil && c.LastShardID != nil && *c.FirstShardID > *c.LastShardID {
		return fmt.Errorf("%w: first shard %d is after last shard %d",
			ErrConfigurationValidateShards, *c.FirstShardID, *c.LastShardID)
	}

	if !c.ShardCount.IsAuto() {
		if c.LastShardID != nil && *c.LastShardID >= int32(c.ShardCount) {
			return fmt.Errorf("%w: last shard %d is outside shard count %d",
				ErrConfigurationValidateShards, *c.LastShardID, c.ShardCount)
		}
	}

	if c.ShardIDs != "" && !validRange(c.ShardIDs) {
		return fmt.Errorf("%w: invalid shard ids %q", ErrConfigurationValidateShards, c.ShardIDs)
	}

	if c.NodeCount > 1 && (c.NodeID < 0 || c.NodeID >= c.NodeCount) {
		return fmt.Errorf("%w: node %d of %d", ErrConfigurationValidateNode, c.NodeID, c.NodeCount)
	}

	if c.REST.MaxRetries < 0 || c.REST.GlobalRequestsPerSecond < 0 || c.REST.Timeout < 0 {
		return ErrConfigurationValidateREST
	}

	if c.REST.Proxy != "" {
		if proxyURL, err := url.Parse(c.REST.Proxy); err != nil || proxyURL.Host == "" {
			return fmt.Errorf("%w: invalid proxy %q", ErrConfigurationValidateREST, c.REST.Proxy)
		}
	}

	if c.Identify.URL != "" && !strings.HasPrefix(c.Identify.URL, "http") {
		return ErrConfigurationValidateIdentify
	}

	if c.Producer.Type != "" && !messaging.IsProducer(c.Producer.Type) {
		return fmt.Errorf("%w: %s", ErrConfigurationValidateProducer, c.Producer.Type)
	}

	return nil
}
