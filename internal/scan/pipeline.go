package scan

import (
	"context"
	"errors"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/valetudoapp/valetudo/internal/nutrition"
	"github.com/valetudoapp/valetudo/internal/telemetry/metrics"
)

const (
	// DefaultPollInterval is how often a frame is pulled and run
	// through the detector while scanning.
	DefaultPollInterval = 500 * time.Millisecond
	// CommitCooldown blocks re-committing the same barcode. Scanning
	// a product tends to detect it many times in a row.
	CommitCooldown = 12 * time.Second
)

type State string

const (
	StateIdle           State = "idle"
	StateCameraStarting State = "camera-starting"
	StateScanning       State = "scanning"
	StateDetected       State = "detected"
	StateLookingUp      State = "looking-up"
	StateCommitted      State = "committed"
	StateError          State = "error"
)

type productLookup interface {
	LookupBarcode(ctx context.Context, barcode string) (*nutrition.Product, error)
}

// Snapshot is the externally visible pipeline state.
type Snapshot struct {
	State   State              `json:"state"`
	Product *nutrition.Product `json:"product,omitempty"`
	Error   string             `json:"error,omitempty"`
}

// Pipeline runs one camera scan loop: pull a frame, detect, look the
// code up and commit it as a meal entry, then keep scanning. Each
// Start supersedes the previous run; results of a superseded run are
// discarded via the session id guard.
type Pipeline struct {
	camera   Camera
	detector Detector
	lookup   productLookup
	commitFn func(ctx context.Context, product nutrition.Product) error
	metrics  *metrics.Manager

	pollInterval time.Duration
	cooldown     time.Duration
	now          func() time.Time

	mutex             sync.Mutex
	state             State
	product           *nutrition.Product
	errMsg            string
	sessionID         int
	lastCommittedCode string
	lastCommittedAt   time.Time
	cancel            context.CancelFunc
	done              chan struct{}
}

func NewPipeline(
	camera Camera,
	detector Detector,
	lookup productLookup,
	commitFn func(ctx context.Context, product nutrition.Product) error,
	metricsManager *metrics.Manager,
) *Pipeline {
	return &Pipeline{
		camera:       camera,
		detector:     detector,
		lookup:       lookup,
		commitFn:     commitFn,
		metrics:      metricsManager,
		pollInterval: DefaultPollInterval,
		cooldown:     CommitCooldown,
		now:          time.Now,
		state:        StateIdle,
	}
}

func (p *Pipeline) Snapshot() Snapshot {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return Snapshot{State: p.state, Product: p.product, Error: p.errMsg}
}

// Start begins a scan session, superseding any running one. Returns
// the monotonically increasing session id.
func (p *Pipeline) Start(ctx context.Context) int {
	p.Stop()

	p.mutex.Lock()
	p.sessionID++
	id := p.sessionID
	p.state = StateCameraStarting
	p.product = nil
	p.errMsg = ""
	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	done := make(chan struct{})
	p.done = done
	p.mutex.Unlock()

	go p.run(runCtx, id, done)
	return id
}

// Stop ends the running session, waiting for the camera to be
// released.
func (p *Pipeline) Stop() {
	p.mutex.Lock()
	cancel, done := p.cancel, p.done
	p.cancel = nil
	p.done = nil
	p.mutex.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done

	p.mutex.Lock()
	p.state = StateIdle
	p.mutex.Unlock()
}

func (p *Pipeline) run(ctx context.Context, id int, done chan struct{}) {
	defer close(done)

	stream, err := p.camera.Open(ctx)
	if err != nil {
		log.Warnf("scan session %d: open camera: %s", id, err)
		p.fail(id, "camera unavailable, enter the barcode manually")
		return
	}
	// the stream closes on every exit path
	defer func() {
		if closeErr := stream.Close(); closeErr != nil {
			log.Errorf("scan session %d: close frame stream: %s", id, closeErr)
		}
	}()

	if !p.transition(id, StateScanning) {
		return
	}

	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	lastSeen := ""
	for {
		select {
		case <-ctx.Done():
			p.transition(id, StateIdle)
			return
		case <-ticker.C:
			var frame Frame
			select {
			case frame = <-stream.Frames():
			default:
				continue
			}

			code, ok := p.detector.Detect(frame)
			if !ok {
				lastSeen = ""
				continue
			}
			if code == lastSeen {
				continue
			}
			lastSeen = code
			if p.inCooldown(code) {
				continue
			}

			p.processDetection(ctx, id, code)
		}
	}
}

func (p *Pipeline) processDetection(ctx context.Context, id int, code string) {
	if !p.transition(id, StateDetected) || !p.transition(id, StateLookingUp) {
		return
	}

	product, err := p.lookup.LookupBarcode(ctx, code)

	p.mutex.Lock()
	if id != p.sessionID {
		// superseded while the lookup was in flight
		p.mutex.Unlock()
		return
	}
	if err != nil {
		p.state = StateError
		if errors.Is(err, nutrition.ErrProductNotFound) {
			p.errMsg = "product not found"
			p.metrics.CounterBarcodeLookups.WithLabelValues("not_found").Inc()
		} else {
			log.Errorf("scan session %d: lookup [%s]: %s", id, code, err)
			p.errMsg = "lookup failed, try again"
			p.metrics.CounterBarcodeLookups.WithLabelValues("error").Inc()
		}
		p.mutex.Unlock()
		return
	}
	p.metrics.CounterBarcodeLookups.WithLabelValues("hit").Inc()
	p.product = product
	p.mutex.Unlock()

	if err := p.commitFn(ctx, *product); err != nil {
		log.Errorf("scan session %d: commit [%s]: %s", id, code, err)
		p.fail(id, "could not log the scanned food")
		return
	}

	p.mutex.Lock()
	if id == p.sessionID {
		p.state = StateCommitted
		p.lastCommittedCode = code
		p.lastCommittedAt = p.now()
	}
	p.mutex.Unlock()
}

func (p *Pipeline) inCooldown(code string) bool {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return code == p.lastCommittedCode && p.now().Sub(p.lastCommittedAt) < p.cooldown
}

func (p *Pipeline) transition(id int, state State) bool {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	if id != p.sessionID {
		return false
	}
	p.state = state
	return true
}

func (p *Pipeline) fail(id int, message string) {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	if id != p.sessionID {
		return
	}
	p.state = StateError
	p.errMsg = message
}
