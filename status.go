package sandwich

type ShardStatus int32

const (
	ShardStatusIdle ShardStatus = iota
	ShardStatusConnecting
	ShardStatusAwaitingHello
	ShardStatusIdentifying
	ShardStatusResuming
	ShardStatusReady
	ShardStatusReconnecting
	ShardStatusClosed
	ShardStatusErroring
)

func (status ShardStatus) String() string {
	switch status {
	case ShardStatusIdle:
		return "Idle"
	case ShardStatusConnecting:
		return "Connecting"
	case ShardStatusAwaitingHello:
		return "AwaitingHello"
	case ShardStatusIdentifying:
		return "Identifying"
	case ShardStatusResuming:
		return "Resuming"
	case ShardStatusReady:
		return "Ready"
	case ShardStatusReconnecting:
		return "Reconnecting"
	case ShardStatusClosed:
		return "Closed"
	case ShardStatusErroring:
		return "Erroring"
	default:
		return "Unknown"
	}
}

// ShardStatusUpdate is the payload of EventShardStatus.
type ShardStatusUpdate struct {
	ShardID int32       `json:"shard_id"`
	Status  ShardStatus `json:"status"`
}
