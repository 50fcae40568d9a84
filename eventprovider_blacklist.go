package sandwich

import (
	"context"
	"sync"

	"github.com/savsgio/gotils/strings"
)

// EventProviderWithBlacklist drops dispatch events whose type is in the
// blacklist. Non-dispatch events are always passed on.
type EventProviderWithBlacklist struct {
	provider EventProvider

	blacklistMu sync.RWMutex
	blacklist   []string
}

func NewEventProviderWithBlacklist(provider EventProvider, blacklist []string) *EventProviderWithBlacklist {
	return &EventProviderWithBlacklist{
		provider:  provider,
		blacklist: blacklist,
	}
}

func (p *EventProviderWithBlacklist) SetBlacklist(blacklist []string) {
	p.blacklistMu.Lock()
	p.blacklist = blacklist
	p.blacklistMu.Unlock()
}

func (p *EventProviderWithBlacklist) Dispatch(ctx context.Context, event Event) error {
	if p.provider == nil {
		return nil
	}

	if event.Type == EventDispatch {
		p.blacklistMu.RLock()
		contains := strings.Include(p.blacklist, event.Name)
		p.blacklistMu.RUnlock()

		if contains {
			return nil
		}
	}

	return p.provider.Dispatch(ctx, event)
}
