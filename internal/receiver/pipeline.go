// Package receiver runs the decode pipeline: edges are demodulated into
// frames on one goroutine and each completed frame is decoded, gated and
// published on another. At most one frame is in flight; edges that arrive
// while it is being handled are discarded.
package receiver

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"

	"github.com/sweeney/weather433/internal/logic"
	"github.com/sweeney/weather433/internal/mqtt"
	"github.com/sweeney/weather433/internal/status"
)

// Options configures a Pipeline.
type Options struct {
	Timing      logic.Timing
	DedupWindow time.Duration

	Publisher mqtt.Publisher
	// Conn, if set, is checked before each publish. Readings are dropped
	// while it reports disconnected.
	Conn mqtt.ConnectionStatus

	Tracker *status.Tracker
	Logger  *log.Logger

	// DroppedEdges, if set, reports the edge source's overflow count.
	DroppedEdges func() uint64

	// Now defaults to time.Now.
	Now func() time.Time
}

// Pipeline owns the demodulator and the dedup gate.
type Pipeline struct {
	demod   *logic.Demodulator
	gate    *logic.Gate
	pub     mqtt.Publisher
	conn    mqtt.ConnectionStatus
	tracker *status.Tracker
	logger  *log.Logger
	dropped func() uint64
	now     func() time.Time

	slot       chan logic.Frame
	busy       atomic.Bool
	suppressed atomic.Uint64
	lastStats  logic.AssemblerStats
	started    atomic.Bool
}

// New validates opts and creates a Pipeline.
func New(opts Options) (*Pipeline, error) {
	if opts.Publisher == nil {
		return nil, errors.New("receiver: publisher is required")
	}
	if err := opts.Timing.Validate(); err != nil {
		return nil, fmt.Errorf("receiver: %w", err)
	}
	if opts.DedupWindow < 0 {
		return nil, fmt.Errorf("receiver: negative dedup window %v", opts.DedupWindow)
	}
	p := &Pipeline{
		demod:   logic.NewDemodulator(opts.Timing),
		gate:    logic.NewGate(opts.DedupWindow),
		pub:     opts.Publisher,
		conn:    opts.Conn,
		tracker: opts.Tracker,
		logger:  opts.Logger,
		dropped: opts.DroppedEdges,
		now:     opts.Now,
		slot:    make(chan logic.Frame, 1),
	}
	if p.tracker == nil {
		p.tracker = status.NewTracker("", time.Now(), status.Config{})
	}
	if p.logger == nil {
		p.logger = log.Default()
	}
	if p.now == nil {
		p.now = time.Now
	}
	return p, nil
}

// Run demodulates edges until the channel closes or ctx is cancelled, then
// waits for the in-flight frame to finish. It may only be called once.
func (p *Pipeline) Run(ctx context.Context, edges <-chan logic.Edge) error {
	if !p.started.CompareAndSwap(false, true) {
		return errors.New("receiver: pipeline already run")
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for f := range p.slot {
			p.HandleFrame(f)
			p.busy.Store(false)
		}
	}()
	defer func() {
		close(p.slot)
		wg.Wait()
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case e, ok := <-edges:
			if !ok {
				return nil
			}
			p.handleEdge(e)
		}
	}
}

func (p *Pipeline) handleEdge(e logic.Edge) {
	if p.busy.Load() {
		p.suppressed.Add(1)
		p.tracker.AddSuppressedEdges(1)
		p.demod.Reset()
		return
	}

	frame, ok, step := p.demod.Feed(e)
	if step.Symbol != "" {
		p.logger.Debug("edge",
			"level", e.Level,
			"us", step.Duration.Microseconds(),
			"symbol", step.Symbol,
			"state", step.State,
			"bits", step.Bits)
	}
	if stats := p.demod.Stats(); stats != p.lastStats {
		p.lastStats = stats
		p.tracker.SetAssemblerStats(stats)
	}
	if !ok {
		return
	}

	p.logger.Debug("frame", "bits", frame.String())
	if p.dropped != nil {
		p.tracker.SetDroppedEdges(p.dropped())
	}
	// busy is set before the send and cleared only after the frame has been
	// handled, so the slot is always empty here.
	p.busy.Store(true)
	p.slot <- frame
}

// HandleFrame decodes f and publishes the reading unless the gate
// suppresses it. It is called from the consumer goroutine started by Run
// and must not be called concurrently with it.
func (p *Pipeline) HandleFrame(f logic.Frame) status.Outcome {
	r := logic.Decode(f)
	now := p.now()

	p.logger.Debug("decoded",
		"address", r.SensorAddress(),
		"channel", r.Channel,
		"battery_low", r.BatteryLow,
		"temp_raw", r.TemperatureRaw,
		"temp_f", r.TemperatureF,
		"temp_c", r.TemperatureC,
		"humidity_raw", r.HumidityRaw,
		"humidity", r.Humidity)

	outcome := p.deliver(r, now)
	p.tracker.RecordReading(r, now, outcome)
	return outcome
}

func (p *Pipeline) deliver(r logic.Reading, now time.Time) status.Outcome {
	if p.conn != nil && !p.conn.IsConnected() {
		p.logger.Warn("mqtt not connected, dropping reading", "address", r.SensorAddress())
		return status.OutcomeOffline
	}

	payload, err := mqtt.FormatPayload(r)
	if err != nil {
		p.logger.Error("format payload", "err", err)
		return status.OutcomeFailed
	}
	if !p.gate.Allow(payload, now) {
		p.logger.Debug("duplicate reading suppressed", "payload", string(payload))
		return status.OutcomeDuplicate
	}

	if err := p.publish(r); err != nil {
		p.logger.Error("dropping reading", "err", err, "payload", string(payload))
		return status.OutcomeFailed
	}
	p.logger.Info("published reading",
		"address", r.SensorAddress(),
		"channel", r.Channel,
		"temp_c", r.TemperatureC,
		"humidity", r.Humidity)
	return status.OutcomePublished
}

// publish tries once more immediately if the first attempt fails.
func (p *Pipeline) publish(r logic.Reading) error {
	err := p.pub.Publish(r)
	if err == nil {
		return nil
	}
	p.logger.Warn("publish failed, retrying", "err", err)
	p.tracker.RecordRetry()
	if err := p.pub.Publish(r); err != nil {
		return fmt.Errorf("publish after retry: %w", err)
	}
	return nil
}

// Suppressed returns the number of edges discarded while a frame was in
// flight.
func (p *Pipeline) Suppressed() uint64 {
	return p.suppressed.Load()
}

// Busy reports whether a frame is currently being handled.
func (p *Pipeline) Busy() bool {
	return p.busy.Load()
}
