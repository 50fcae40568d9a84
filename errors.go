package sandwich

import (
	"fmt"

	"github.com/WelcomerTeam/Sandwich-Client/discord"
	"golang.org/x/xerrors"
	"nhooyr.io/websocket"
)

// ErrShardConnect is returned when the gateway could not be dialed or
// closed before HELLO was received.
var ErrShardConnect = xerrors.New("Failed to connect shard to gateway")

// ErrGatewayMetadataInvalid is returned when /gateway/bot returns a
// response that cannot be used to start shards.
var ErrGatewayMetadataInvalid = xerrors.New("Gateway metadata is not valid")

// ErrSessionLimitExhausted is returned when the sessions remaining
// is less than the number of shards being started.
var ErrSessionLimitExhausted = xerrors.New("The session limit has been reached")

// ErrInvalidToken is returned when an invalid token is used.
var ErrInvalidToken = xerrors.New("Token passed is not valid")

var (
	ErrShardNotReady    = xerrors.New("Shard is not ready")
	ErrInvalidShard     = xerrors.New("Invalid shard id specified")
	ErrMissingShards    = xerrors.New("Manager has no shards to start")
	ErrNoWebsocket      = xerrors.New("Shard has no websocket connection")
	ErrShardClosed      = xerrors.New("Shard has been closed")
	ErrNoGatewayHandler = xerrors.New("No registered handler for gateway event")
	ErrUnexpectedHello  = xerrors.New("Expected HELLO as first gateway event")
	ErrHeartbeatTimeout = xerrors.New("Failed to ack and passed heartbeat failure interval")
	ErrClientConnected  = xerrors.New("Client is already connected")
)

var (
	ErrReadConfigurationFailure      = xerrors.New("Failed to read configuration")
	ErrLoadConfigurationFailure      = xerrors.New("Failed to load configuration")
	ErrConfigurationValidateToken    = xerrors.New("Configuration missing token")
	ErrConfigurationValidateShards   = xerrors.New("Configuration has an invalid shard range")
	ErrConfigurationValidateNode     = xerrors.New("Configuration has an invalid node id")
	ErrConfigurationValidateIdentify = xerrors.New("Configuration missing valid Identify URI")
	ErrConfigurationValidateProducer = xerrors.New("Configuration has an unknown producer type")
	ErrConfigurationValidateREST     = xerrors.New("Configuration has an invalid REST setting")
)

// errReconnect ends the current connection without surfacing an error.
// The connection loop resumes with the stored session.
var errReconnect = xerrors.New("Reconnect is required")

// GatewayCloseError is returned when the gateway closes the connection with
// one of its own close codes.
type GatewayCloseError struct {
	Reason string
	Code   websocket.StatusCode
}

func (e *GatewayCloseError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("gateway closed with code %d: %s", e.Code, e.Reason)
	}

	return fmt.Sprintf("gateway closed with code %d", e.Code)
}

// Fatal returns true when reconnecting with the same configuration would
// be rejected again.
func (e *GatewayCloseError) Fatal() bool {
	return !IsStatusCodeRecoverable(e.Code)
}

// IsStatusCodeRecoverable returns false for close codes the gateway uses
// for configuration problems.
func IsStatusCodeRecoverable(code websocket.StatusCode) bool {
	switch code {
	case discord.CloseNotAuthenticated,
		discord.CloseAuthenticationFailed,
		discord.CloseAlreadyAuthenticated,
		discord.CloseInvalidShard,
		discord.CloseShardingRequired,
		discord.CloseInvalidAPIVersion,
		discord.CloseInvalidIntents,
		discord.CloseDisallowedIntents:
		return false
	default:
		return true
	}
}

// invalidatesSession returns true for close codes after which a resume
// will be rejected.
func invalidatesSession(code websocket.StatusCode) bool {
	return code == discord.CloseInvalidSeq || code == discord.CloseSessionTimeout
}
