package discovery

import (
	"context"
	"sort"
	"sync"
)

// Announcer keeps a server's mDNS advertisement in sync with the set of
// Things it hosts. Adding or removing a Thing while the announcer is
// running updates the TXT records in place.
type Announcer struct {
	mu sync.Mutex

	advertiser Advertiser
	info       ServerInfo
	things     map[string]struct{}
	running    bool
}

// NewAnnouncer creates an announcer for the given server.
func NewAnnouncer(advertiser Advertiser, info ServerInfo) *Announcer {
	a := &Announcer{
		advertiser: advertiser,
		info:       info,
		things:     make(map[string]struct{}),
	}
	for _, id := range info.Things {
		a.things[id] = struct{}{}
	}
	return a
}

// Start begins advertising.
func (a *Announcer) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.running {
		return ErrAlreadyStarted
	}
	if a.info.ServerID == "" {
		return ErrMissingRequired
	}

	info := a.snapshotLocked()
	if err := a.advertiser.Advertise(ctx, &info); err != nil {
		return err
	}

	a.running = true
	return nil
}

// AddThing adds a Thing ID to the advertisement.
func (a *Announcer) AddThing(thingID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if _, exists := a.things[thingID]; exists {
		return nil
	}
	a.things[thingID] = struct{}{}
	return a.refreshLocked()
}

// RemoveThing removes a Thing ID from the advertisement.
func (a *Announcer) RemoveThing(thingID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if _, exists := a.things[thingID]; !exists {
		return ErrNotFound
	}
	delete(a.things, thingID)
	return a.refreshLocked()
}

// SetHTTPAddress updates the advertised HTTP gateway address.
func (a *Announcer) SetHTTPAddress(addr string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.info.HTTPAddress = addr
	return a.refreshLocked()
}

// Things returns the advertised Thing IDs, sorted.
func (a *Announcer) Things() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.thingIDsLocked()
}

// Info returns a snapshot of the advertised service information.
func (a *Announcer) Info() ServerInfo {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.snapshotLocked()
}

// Running reports whether the announcer is advertising.
func (a *Announcer) Running() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.running
}

// Stop stops advertising.
func (a *Announcer) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.running {
		return
	}
	a.advertiser.Stop()
	a.running = false
}

func (a *Announcer) refreshLocked() error {
	if !a.running {
		return nil
	}
	info := a.snapshotLocked()
	return a.advertiser.Update(&info)
}

func (a *Announcer) snapshotLocked() ServerInfo {
	info := a.info
	info.Things = a.thingIDsLocked()
	return info
}

func (a *Announcer) thingIDsLocked() []string {
	ids := make([]string, 0, len(a.things))
	for id := range a.things {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
