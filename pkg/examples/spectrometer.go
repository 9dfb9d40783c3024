package examples

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/hololinked-dev/hololinked-go/pkg/events"
	"github.com/hololinked-dev/hololinked-go/pkg/thing"
)

// Spectrometer states.
const (
	StateDisconnected thing.State = "DISCONNECTED"
	StateConnected    thing.State = "CONNECTED"
	StateMeasuring    thing.State = "MEASURING"
	StateFault        thing.State = "FAULT"
)

// SpectrometerConfig contains configuration for creating a Spectrometer.
type SpectrometerConfig struct {
	ID           string
	SerialNumber string

	// Channels is the number of detector pixels per spectrum.
	// Default: 1024.
	Channels int

	// IntegrationTime is the initial integration time in seconds.
	// Default: 0.025.
	IntegrationTime float64

	// EventInterval is the delivery rate ceiling for measurement events.
	// Zero selects the publisher default.
	EventInterval time.Duration
}

// Spectrometer is a simulated optical spectrometer. It demonstrates how to
// build a hosted Thing that:
//   - Gates capabilities on a connection state machine
//   - Exposes bounded, persistable settings as properties
//   - Streams measurements from a background acquisition goroutine
type Spectrometer struct {
	mu sync.RWMutex

	thing     *thing.Thing
	intensity []float64
	source    *events.Source
	channels  int
	rng       *rand.Rand

	integrationTime *thing.Property

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewSpectrometer creates a simulated spectrometer Thing.
func NewSpectrometer(cfg SpectrometerConfig) (*Spectrometer, error) {
	if cfg.Channels <= 0 {
		cfg.Channels = 1024
	}
	if cfg.IntegrationTime <= 0 {
		cfg.IntegrationTime = 0.025
	}

	machine := thing.NewStateMachine(StateDisconnected,
		StateConnected, StateMeasuring, StateFault)

	th, err := thing.NewThing(cfg.ID, machine)
	if err != nil {
		return nil, err
	}
	th.SetTitle("Optical Spectrometer")
	th.SetDescription("Simulated fiber optic spectrometer")

	s := &Spectrometer{
		thing:    th,
		channels: cfg.Channels,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}

	if err := s.setupProperties(cfg); err != nil {
		return nil, err
	}
	if err := s.setupActions(); err != nil {
		return nil, err
	}

	if err := th.AddEvent(thing.NewEvent(&thing.EventMetadata{
		Name:        "intensity_measurement",
		Description: "Spectrum captured at the end of each integration window",
		MinInterval: cfg.EventInterval,
	})); err != nil {
		return nil, err
	}

	return s, nil
}

func (s *Spectrometer) setupProperties(cfg SpectrometerConfig) error {
	serial := thing.NewProperty(&thing.PropertyMetadata{
		Name:        "serial_number",
		Description: "Serial number of the spectrometer",
		ReadOnly:    true,
		Default:     cfg.SerialNumber,
	})
	if err := s.thing.AddProperty(serial); err != nil {
		return err
	}

	s.integrationTime = thing.NewProperty(&thing.PropertyMetadata{
		Name:        "integration_time",
		Description: "Detector integration time",
		Default:     cfg.IntegrationTime,
		Min:         0.001,
		Policy:      thing.BoundsCrop,
		Unit:        "s",
	})
	if err := s.thing.AddProperty(s.integrationTime); err != nil {
		return err
	}

	lastIntensity := thing.NewComputedProperty(&thing.PropertyMetadata{
		Name:        "last_intensity",
		Description: "Most recently captured spectrum",
		ReadOnly:    true,
	}, func(inv *thing.Invocation) (any, error) {
		return s.LastIntensity(), nil
	}, nil)
	return s.thing.AddProperty(lastIntensity)
}

func (s *Spectrometer) setupActions() error {
	connect := thing.NewAction(&thing.ActionMetadata{
		Name:          "connect",
		Description:   "Open the device connection",
		AllowedStates: []thing.State{StateDisconnected},
	}, func(inv *thing.Invocation) (any, error) {
		inv.TransitionTo(StateConnected)
		return nil, nil
	})
	if err := s.thing.AddAction(connect); err != nil {
		return err
	}

	disconnect := thing.NewAction(&thing.ActionMetadata{
		Name:          "disconnect",
		Description:   "Close the device connection",
		AllowedStates: []thing.State{StateConnected, StateFault},
	}, func(inv *thing.Invocation) (any, error) {
		inv.TransitionTo(StateDisconnected)
		return nil, nil
	})
	if err := s.thing.AddAction(disconnect); err != nil {
		return err
	}

	start := thing.NewAction(&thing.ActionMetadata{
		Name:          "start_acquisition",
		Description:   "Begin continuous spectrum capture",
		AllowedStates: []thing.State{StateConnected},
	}, func(inv *thing.Invocation) (any, error) {
		s.startAcquisition()
		inv.TransitionTo(StateMeasuring)
		return nil, nil
	})
	if err := s.thing.AddAction(start); err != nil {
		return err
	}

	stop := thing.NewAction(&thing.ActionMetadata{
		Name:          "stop_acquisition",
		Description:   "Stop continuous spectrum capture",
		AllowedStates: []thing.State{StateMeasuring},
	}, func(inv *thing.Invocation) (any, error) {
		s.stopAcquisition()
		inv.TransitionTo(StateConnected)
		return nil, nil
	})
	return s.thing.AddAction(stop)
}

// Thing returns the underlying Thing for attaching to a dispatcher.
func (s *Spectrometer) Thing() *thing.Thing {
	return s.thing
}

// Bind connects the spectrometer to the event publisher it emits through.
// Call after the Thing has been attached to a dispatcher.
func (s *Spectrometer) Bind(pub *events.Publisher) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.source = pub.Source(s.thing.ID())
}

// LastIntensity returns a copy of the most recent spectrum.
func (s *Spectrometer) LastIntensity() []float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]float64, len(s.intensity))
	copy(out, s.intensity)
	return out
}

// Fault forces the spectrometer into the FAULT state, as a simulated
// hardware failure would. Recover with the disconnect action.
func (s *Spectrometer) Fault() error {
	s.stopAcquisition()
	return s.thing.Machine().Transition(StateFault)
}

// Close stops any running acquisition.
func (s *Spectrometer) Close() {
	s.stopAcquisition()
}

func (s *Spectrometer) startAcquisition() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.wg.Add(1)
	go s.acquire(ctx)
}

func (s *Spectrometer) stopAcquisition() {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
		s.wg.Wait()
	}
}

// acquire is the acquisition loop. Each cycle sleeps one integration
// window, captures a simulated spectrum and emits it. Rate limiting and
// coalescing are the publisher's concern.
func (s *Spectrometer) acquire(ctx context.Context) {
	defer s.wg.Done()

	for {
		interval := s.integrationInterval()
		select {
		case <-time.After(interval):
		case <-ctx.Done():
			return
		}

		spectrum := s.capture()

		s.mu.Lock()
		s.intensity = spectrum
		source := s.source
		s.mu.Unlock()

		if source != nil {
			_ = source.Emit("intensity_measurement", spectrum)
		}
	}
}

func (s *Spectrometer) integrationInterval() time.Duration {
	v, ok := s.integrationTime.Value().(float64)
	if !ok || v <= 0 {
		v = 0.025
	}
	return time.Duration(v * float64(time.Second))
}

// capture synthesizes one spectrum: a thermal baseline with a drifting
// emission peak and shot noise. Only the acquisition goroutine touches
// the generator.
func (s *Spectrometer) capture() []float64 {
	rng := s.rng
	center := float64(s.channels)/2 + rng.Float64()*20 - 10

	const (
		baseline = 120.0
		peak     = 3200.0
		width    = 14.0
	)

	spectrum := make([]float64, s.channels)
	for i := range spectrum {
		x := float64(i) - center
		signal := peak * math.Exp(-(x*x)/(2*width*width))
		noise := rng.NormFloat64() * math.Sqrt(baseline+signal)
		spectrum[i] = math.Max(0, baseline+signal+noise)
	}
	return spectrum
}

// String implements fmt.Stringer.
func (s *Spectrometer) String() string {
	return fmt.Sprintf("Spectrometer(%s, %s)", s.thing.ID(), s.thing.State())
}
