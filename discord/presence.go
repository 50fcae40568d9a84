package discord

// presence.go contains the presence structures sent with IDENTIFY and PRESENCE_UPDATE.

// ActivityType represents an activity's type.
type ActivityType uint8

const (
	ActivityTypeGame ActivityType = iota
	ActivityTypeStreaming
	ActivityTypeListening
	ActivityTypeWatching
	ActivityTypeCustom
	ActivityTypeCompeting
)

// Status values accepted by the gateway.
const (
	StatusOnline    = "online"
	StatusDND       = "dnd"
	StatusIdle      = "idle"
	StatusInvisible = "invisible"
	StatusOffline   = "offline"
)

// UpdateStatus updates a client's presence.
type UpdateStatus struct {
	Since      *int64      `json:"since" yaml:"since"`
	Status     string      `json:"status" yaml:"status"`
	Activities []*Activity `json:"activities" yaml:"activities"`
	AFK        bool        `json:"afk" yaml:"afk"`
}

// Activity represents an activity as sent in a presence update.
type Activity struct {
	URL   *string      `json:"url,omitempty" yaml:"url,omitempty"`
	Name  string       `json:"name" yaml:"name"`
	State string       `json:"state,omitempty" yaml:"state,omitempty"`
	Type  ActivityType `json:"type" yaml:"type"`
}
