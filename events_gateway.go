package sandwich

import (
	"bytes"
	"context"

	"github.com/WelcomerTeam/Sandwich-Client/discord"
)

type gatewayHandler func(ctx context.Context, sh *Shard, msg discord.GatewayPayload) error

var gatewayHandlers = make(map[discord.GatewayOp]gatewayHandler)

func registerGatewayEvent(op discord.GatewayOp, handler gatewayHandler) {
	gatewayHandlers[op] = handler
}

func gatewayOpDispatch(ctx context.Context, sh *Shard, msg discord.GatewayPayload) error {
	return sh.OnDispatch(ctx, msg)
}

func gatewayOpHeartbeat(ctx context.Context, sh *Shard, _ discord.GatewayPayload) error {
	sh.Logger.Debug().Msg("Gateway requested heartbeat")

	return sh.sendHeartbeat(ctx)
}

func gatewayOpReconnect(_ context.Context, sh *Shard, _ discord.GatewayPayload) error {
	sh.Logger.Info().Msg("Reconnecting in response to gateway")

	return errReconnect
}

func gatewayOpInvalidSession(ctx context.Context, sh *Shard, msg discord.GatewayPayload) error {
	resumable := bytes.Equal(bytes.TrimSpace(msg.Data), []byte("true"))
	if !resumable {
		sh.clearSession()
	}

	sh.Logger.Warn().Bool("resumable", resumable).Msg("Received invalid session")

	err := sleepContext(ctx, randomBetween(sh.Manager.timings.invalidSessionMinWait, sh.Manager.timings.invalidSessionMaxWait))
	if err != nil {
		return err
	}

	return errReconnect
}

func gatewayOpHello(_ context.Context, sh *Shard, _ discord.GatewayPayload) error {
	sh.Logger.Warn().Msg("Received unexpected HELLO event")

	return nil
}

func gatewayOpHeartbeatACK(_ context.Context, sh *Shard, _ discord.GatewayPayload) error {
	sh.onHeartbeatACK()

	return nil
}

func init() {
	registerGatewayEvent(discord.GatewayOpDispatch, gatewayOpDispatch)
	registerGatewayEvent(discord.GatewayOpHeartbeat, gatewayOpHeartbeat)
	registerGatewayEvent(discord.GatewayOpReconnect, gatewayOpReconnect)
	registerGatewayEvent(discord.GatewayOpInvalidSession, gatewayOpInvalidSession)
	registerGatewayEvent(discord.GatewayOpHello, gatewayOpHello)
	registerGatewayEvent(discord.GatewayOpHeartbeatACK, gatewayOpHeartbeatACK)
}
