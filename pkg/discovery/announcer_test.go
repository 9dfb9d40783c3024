package discovery

import (
	"context"
	"errors"
	"sync"
	"testing"
)

// fakeAdvertiser records advertise/update calls for inspection.
type fakeAdvertiser struct {
	mu         sync.Mutex
	advertised *ServerInfo
	updated    []*ServerInfo
	stopped    bool
	failNext   error
}

func (f *fakeAdvertiser) Advertise(ctx context.Context, info *ServerInfo) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failNext != nil {
		err := f.failNext
		f.failNext = nil
		return err
	}
	f.advertised = info
	return nil
}

func (f *fakeAdvertiser) Update(info *ServerInfo) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updated = append(f.updated, info)
	return nil
}

func (f *fakeAdvertiser) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped = true
}

func (f *fakeAdvertiser) lastUpdate() *ServerInfo {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.updated) == 0 {
		return nil
	}
	return f.updated[len(f.updated)-1]
}

func TestAnnouncerStartAdvertises(t *testing.T) {
	fake := &fakeAdvertiser{}
	ann := NewAnnouncer(fake, ServerInfo{
		ServerID: "srv",
		Port:     7440,
		Things:   []string{"thing-b", "thing-a"},
	})

	if err := ann.Start(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if !ann.Running() {
		t.Error("announcer should be running")
	}

	if fake.advertised == nil {
		t.Fatal("nothing advertised")
	}
	things := fake.advertised.Things
	if len(things) != 2 || things[0] != "thing-a" || things[1] != "thing-b" {
		t.Errorf("things = %v, want sorted [thing-a thing-b]", things)
	}

	if err := ann.Start(context.Background()); !errors.Is(err, ErrAlreadyStarted) {
		t.Errorf("second start err = %v, want ErrAlreadyStarted", err)
	}
}

func TestAnnouncerRequiresServerID(t *testing.T) {
	ann := NewAnnouncer(&fakeAdvertiser{}, ServerInfo{})
	if err := ann.Start(context.Background()); !errors.Is(err, ErrMissingRequired) {
		t.Errorf("err = %v, want ErrMissingRequired", err)
	}
}

func TestAnnouncerThingUpdates(t *testing.T) {
	fake := &fakeAdvertiser{}
	ann := NewAnnouncer(fake, ServerInfo{ServerID: "srv"})
	if err := ann.Start(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	if err := ann.AddThing("spectrometer-1"); err != nil {
		t.Fatalf("add failed: %v", err)
	}
	upd := fake.lastUpdate()
	if upd == nil || len(upd.Things) != 1 || upd.Things[0] != "spectrometer-1" {
		t.Errorf("update after add = %+v", upd)
	}

	// Duplicate add is a no-op
	before := len(fake.updated)
	if err := ann.AddThing("spectrometer-1"); err != nil {
		t.Fatalf("duplicate add failed: %v", err)
	}
	if len(fake.updated) != before {
		t.Error("duplicate add triggered an update")
	}

	if err := ann.RemoveThing("spectrometer-1"); err != nil {
		t.Fatalf("remove failed: %v", err)
	}
	upd = fake.lastUpdate()
	if upd == nil || len(upd.Things) != 0 {
		t.Errorf("update after remove = %+v", upd)
	}

	if err := ann.RemoveThing("unknown"); !errors.Is(err, ErrNotFound) {
		t.Errorf("remove unknown err = %v, want ErrNotFound", err)
	}
}

func TestAnnouncerUpdatesBeforeStartAreLocal(t *testing.T) {
	fake := &fakeAdvertiser{}
	ann := NewAnnouncer(fake, ServerInfo{ServerID: "srv"})

	if err := ann.AddThing("thing-1"); err != nil {
		t.Fatalf("add failed: %v", err)
	}
	if len(fake.updated) != 0 {
		t.Error("update sent before start")
	}

	if err := ann.Start(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if len(fake.advertised.Things) != 1 {
		t.Errorf("advertised things = %v", fake.advertised.Things)
	}
}

func TestAnnouncerSetHTTPAddress(t *testing.T) {
	fake := &fakeAdvertiser{}
	ann := NewAnnouncer(fake, ServerInfo{ServerID: "srv"})
	if err := ann.Start(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	if err := ann.SetHTTPAddress(":8080"); err != nil {
		t.Fatalf("set http address failed: %v", err)
	}
	if upd := fake.lastUpdate(); upd == nil || upd.HTTPAddress != ":8080" {
		t.Errorf("update = %+v", upd)
	}
}

func TestAnnouncerStop(t *testing.T) {
	fake := &fakeAdvertiser{}
	ann := NewAnnouncer(fake, ServerInfo{ServerID: "srv"})
	if err := ann.Start(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	ann.Stop()
	if ann.Running() {
		t.Error("announcer still running after stop")
	}
	if !fake.stopped {
		t.Error("advertiser not stopped")
	}

	// Stop is idempotent
	ann.Stop()
}
