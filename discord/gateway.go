package discord

import "encoding/json"

// gateway.go contains the structures exchanged over the gateway websocket.

// GatewayVersion is the gateway and REST API version this client speaks.
const GatewayVersion = 10

// GatewayOp represents the operation codes of a gateway message.
type GatewayOp uint8

const (
	GatewayOpDispatch GatewayOp = iota
	GatewayOpHeartbeat
	GatewayOpIdentify
	GatewayOpPresenceUpdate
	GatewayOpVoiceStateUpdate
	_
	GatewayOpResume
	GatewayOpReconnect
	GatewayOpRequestGuildMembers
	GatewayOpInvalidSession
	GatewayOpHello
	GatewayOpHeartbeatACK
)

func (op GatewayOp) String() string {
	switch op {
	case GatewayOpDispatch:
		return "DISPATCH"
	case GatewayOpHeartbeat:
		return "HEARTBEAT"
	case GatewayOpIdentify:
		return "IDENTIFY"
	case GatewayOpPresenceUpdate:
		return "PRESENCE_UPDATE"
	case GatewayOpVoiceStateUpdate:
		return "VOICE_STATE_UPDATE"
	case GatewayOpResume:
		return "RESUME"
	case GatewayOpReconnect:
		return "RECONNECT"
	case GatewayOpRequestGuildMembers:
		return "REQUEST_GUILD_MEMBERS"
	case GatewayOpInvalidSession:
		return "INVALID_SESSION"
	case GatewayOpHello:
		return "HELLO"
	case GatewayOpHeartbeatACK:
		return "HEARTBEAT_ACK"
	default:
		return "UNKNOWN"
	}
}

// GatewayIntent represents a bitflag for intents.
type GatewayIntent uint32

const (
	IntentGuilds GatewayIntent = 1 << iota
	IntentGuildMembers
	IntentGuildModeration
	IntentGuildEmojisAndStickers
	IntentGuildIntegrations
	IntentGuildWebhooks
	IntentGuildInvites
	IntentGuildVoiceStates
	IntentGuildPresences
	IntentGuildMessages
	IntentGuildMessageReactions
	IntentGuildMessageTyping
	IntentDirectMessages
	IntentDirectMessageReactions
	IntentDirectMessageTyping
	IntentMessageContent
	IntentGuildScheduledEvents
	_
	_
	_
	IntentAutoModerationConfiguration
	IntentAutoModerationExecution
)

// Gateway close codes.
const (
	CloseUnknownError = 4000 + iota
	CloseUnknownOpCode
	CloseDecodeError
	CloseNotAuthenticated
	CloseAuthenticationFailed
	CloseAlreadyAuthenticated
	_
	CloseInvalidSeq
	CloseRateLimited
	CloseSessionTimeout
	CloseInvalidShard
	CloseShardingRequired
	CloseInvalidAPIVersion
	CloseInvalidIntents
	CloseDisallowedIntents
)

// GatewayPayload represents the base payload received from the gateway.
// A null sequence decodes as 0.
type GatewayPayload struct {
	Type     string          `json:"t,omitempty"`
	Data     json.RawMessage `json:"d"`
	Sequence int64           `json:"s,omitempty"`
	Op       GatewayOp       `json:"op"`
}

// SentPayload represents the base payload we send to the gateway.
type SentPayload struct {
	Data any       `json:"d"`
	Op   GatewayOp `json:"op"`
}

// Hello is the first payload received after connecting.
type Hello struct {
	HeartbeatInterval int64 `json:"heartbeat_interval"`
}

// Ready is the payload of the READY dispatch.
type Ready struct {
	User             PartialUser `json:"user"`
	SessionID        string      `json:"session_id"`
	ResumeGatewayURL string      `json:"resume_gateway_url"`
	Shard            []int32     `json:"shard,omitempty"`
	Version          int32       `json:"v"`
}

// PartialUser is the subset of a user object the gateway layer needs.
type PartialUser struct {
	ID       Snowflake `json:"id"`
	Username string    `json:"username"`
	Bot      bool      `json:"bot"`
}

// Gateway Commands

// Identify represents the initial handshake with the gateway.
type Identify struct {
	Properties     *IdentifyProperties `json:"properties"`
	Presence       *UpdateStatus       `json:"presence,omitempty"`
	Token          string              `json:"token"`
	Shard          [2]int32            `json:"shard"`
	LargeThreshold int32               `json:"large_threshold,omitempty"`
	Intents        GatewayIntent       `json:"intents"`
	Compress       bool                `json:"compress"`
}

// IdentifyProperties are the extra properties sent in the identify packet.
type IdentifyProperties struct {
	OS      string `json:"os"`
	Browser string `json:"browser"`
	Device  string `json:"device"`
}

// Resume resumes a dropped gateway connection.
type Resume struct {
	Token     string `json:"token"`
	SessionID string `json:"session_id"`
	Sequence  int64  `json:"seq"`
}

// RequestGuildMembers requests members for a guild.
type RequestGuildMembers struct {
	Query     *string     `json:"query,omitempty"`
	Nonce     string      `json:"nonce,omitempty"`
	UserIDs   []Snowflake `json:"user_ids,omitempty"`
	GuildID   Snowflake   `json:"guild_id"`
	Limit     int32       `json:"limit"`
	Presences bool        `json:"presences,omitempty"`
}
