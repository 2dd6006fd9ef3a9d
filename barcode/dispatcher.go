package barcode

import (
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	// DefaultAutoSubmitLength matches EAN-13.
	DefaultAutoSubmitLength = 13
	DefaultDebounce         = 100 * time.Millisecond
)

// ScanFunc receives a completed scan.
type ScanFunc func(code string)

type DispatcherOptions struct {
	MaxLength        int
	AutoSubmitLength int
	Debounce         time.Duration
}

// Dispatcher holds the scan input field and decides when its content is a
// completed scan. A scan completes on Submit, or when the field holds at
// least AutoSubmitLength digits and no keystroke arrives for Debounce.
type Dispatcher struct {
	mu         sync.Mutex
	normalizer Normalizer
	minLength  int
	debounce   time.Duration
	onScan     ScanFunc
	logger     *zap.Logger

	value      string
	timer      *time.Timer
	generation uint64
	closed     bool
}

func NewDispatcher(opts DispatcherOptions, onScan ScanFunc, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.AutoSubmitLength <= 0 {
		opts.AutoSubmitLength = DefaultAutoSubmitLength
	}
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	return &Dispatcher{
		normalizer: NewNormalizer(opts.MaxLength),
		minLength:  opts.AutoSubmitLength,
		debounce:   opts.Debounce,
		onScan:     onScan,
		logger:     logger,
	}
}

// Change replaces the field content with the normalized raw text and
// returns what the field should display. Every call restarts the
// auto-submit timer.
func (d *Dispatcher) Change(raw string) string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.changeLocked(raw)
}

// Type appends keystrokes to the current field content.
func (d *Dispatcher) Type(keys string) string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.changeLocked(d.value + keys)
}

func (d *Dispatcher) changeLocked(raw string) string {
	if d.closed {
		return ""
	}

	d.value = d.normalizer.Normalize(raw)
	d.generation++
	d.stopTimerLocked()

	if d.completeLocked() {
		gen := d.generation
		d.timer = time.AfterFunc(d.debounce, func() { d.fire(gen) })
	}

	return d.value
}

// Submit dispatches the trimmed field content. Blank input is a no-op.
func (d *Dispatcher) Submit() bool {
	d.mu.Lock()
	code := strings.TrimSpace(d.value)
	if d.closed || code == "" {
		d.mu.Unlock()
		return false
	}
	d.resetLocked()
	d.mu.Unlock()

	d.logger.Debug("Scan submitted", zap.String("barcode", code))
	d.emit(code)
	return true
}

func (d *Dispatcher) Value() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.value
}

// Close stops a pending auto-submit. Later input is ignored.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.closed = true
	d.resetLocked()
}

func (d *Dispatcher) fire(gen uint64) {
	d.mu.Lock()
	if d.closed || gen != d.generation || !d.completeLocked() {
		d.mu.Unlock()
		return
	}
	code := strings.TrimSpace(d.value)
	d.resetLocked()
	d.mu.Unlock()

	d.logger.Debug("Scan auto-submitted", zap.String("barcode", code))
	d.emit(code)
}

func (d *Dispatcher) emit(code string) {
	if d.onScan != nil {
		d.onScan(code)
	}
}

func (d *Dispatcher) completeLocked() bool {
	return len(d.value) >= d.minLength && isDigits(d.value)
}

// resetLocked clears the field and invalidates any timer already armed.
func (d *Dispatcher) resetLocked() {
	d.value = ""
	d.generation++
	d.stopTimerLocked()
}

func (d *Dispatcher) stopTimerLocked() {
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}
