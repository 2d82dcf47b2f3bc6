package smartcard

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cortex-x/go-smartcard-bridge/internal/domain"
	"github.com/cortex-x/go-smartcard-bridge/internal/logging"
	"github.com/ebfe/scard"
)

// PIV data objects holding certificates, in the order they are reported.
var certificateObjects = []struct {
	name string
	tag  []byte
}{
	{"authentication", []byte{0x5F, 0xC1, 0x05}},
	{"signature", []byte{0x5F, 0xC1, 0x0A}},
	{"key management", []byte{0x5F, 0xC1, 0x0B}},
	{"card authentication", []byte{0x5F, 0xC1, 0x01}},
}

type Config struct {
	// ReaderName selects the first reader whose name contains it. Empty
	// selects the first reader.
	ReaderName    string
	PollInterval  time.Duration
	RetryInterval time.Duration
	Logger        logging.Logger
}

// PCSCDriver watches one PC/SC reader and turns what it sees into card
// states. Monitoring runs for the lifetime of the driver; the state and
// debug sinks only control whether anyone hears about it.
type PCSCDriver struct {
	ctx    Context
	cfg    Config
	logger logging.Logger

	mu      sync.Mutex
	state   domain.CardState
	onState func(domain.CardState)
	onDebug func(string)

	// owned by the polling goroutine
	reader      string
	cardPresent bool

	stopChan   chan struct{}
	wg         sync.WaitGroup
	monitoring bool
}

// NewPCSCDriver establishes a PC/SC context and returns a driver over it.
func NewPCSCDriver(cfg Config) (*PCSCDriver, error) {
	ctx, err := EstablishContext()
	if err != nil {
		return nil, fmt.Errorf("failed to establish context: %w", err)
	}
	return NewDriver(ctx, cfg), nil
}

func NewDriver(ctx Context, cfg Config) *PCSCDriver {
	if cfg.Logger == nil {
		cfg.Logger = logging.Nop()
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 500 * time.Millisecond
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = 2 * time.Second
	}
	return &PCSCDriver{
		ctx:    ctx,
		cfg:    cfg,
		logger: cfg.Logger,
		state:  domain.Unknown{},
	}
}

func (d *PCSCDriver) CurrentState() domain.CardState {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

func (d *PCSCDriver) StartStateUpdates(fn func(domain.CardState)) error {
	if fn == nil {
		return errors.New("nil state sink")
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.onState = fn
	return nil
}

func (d *PCSCDriver) StopStateUpdates() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.onState = nil
}

func (d *PCSCDriver) StartDebugMessages(fn func(string)) error {
	if fn == nil {
		return errors.New("nil debug sink")
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.onDebug = fn
	return nil
}

func (d *PCSCDriver) StopDebugMessages() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.onDebug = nil
}

func (d *PCSCDriver) StartMonitoring() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.monitoring {
		return fmt.Errorf("already monitoring")
	}
	d.monitoring = true
	d.stopChan = make(chan struct{})
	d.wg.Add(1)
	go d.monitorLoop(d.stopChan)
	return nil
}

func (d *PCSCDriver) StopMonitoring() {
	d.mu.Lock()
	if !d.monitoring {
		d.mu.Unlock()
		return
	}
	d.monitoring = false
	close(d.stopChan)
	d.mu.Unlock()
	d.wg.Wait()
}

// Snapshot runs a single observation and returns the resulting state. It
// fails while monitoring is running, since both would share the reader.
func (d *PCSCDriver) Snapshot() (domain.CardState, error) {
	d.mu.Lock()
	monitoring := d.monitoring
	d.mu.Unlock()
	if monitoring {
		return nil, fmt.Errorf("snapshot while monitoring")
	}
	d.poll()
	return d.CurrentState(), nil
}

// Close stops monitoring and releases the PC/SC context.
func (d *PCSCDriver) Close() error {
	d.StopMonitoring()
	return d.ctx.Release()
}

func (d *PCSCDriver) monitorLoop(stop <-chan struct{}) {
	defer d.wg.Done()
	for {
		wait := d.cfg.PollInterval
		if !d.poll() {
			wait = d.cfg.RetryInterval
		}
		select {
		case <-stop:
			return
		case <-time.After(wait):
		}
	}
}

// poll runs one observation of the reader. It returns false when PC/SC
// itself failed and the caller should back off.
func (d *PCSCDriver) poll() bool {
	readers, err := d.ctx.ListReaders()
	if err != nil && !isNoReaders(err) {
		d.logger.Warn("Error listing readers", "error", err.Error())
		d.setState(stateForError(err))
		return false
	}

	reader := d.pickReader(readers)
	if reader == "" {
		if d.reader != "" {
			d.debugf("Reader %s disconnected", d.reader)
		}
		d.reader, d.cardPresent = "", false
		d.setState(domain.ReaderDisconnected{})
		return true
	}
	if reader != d.reader {
		d.debugf("Using reader %s", reader)
		d.reader, d.cardPresent = reader, false
	}

	card, err := d.ctx.Connect(reader)
	if err != nil {
		if isNoCard(err) {
			if d.cardPresent {
				d.debugf("Card removed")
			}
			d.cardPresent = false
			d.setState(domain.ReaderConnected{})
			return true
		}
		d.debugf("Connect failed: %v", err)
		d.setState(stateForError(err))
		return true
	}
	defer func() {
		_ = card.Disconnect()
	}()

	if d.cardPresent {
		return true
	}
	d.cardPresent = true
	d.debugf("Card inserted")
	d.setState(domain.ReadingFromCard{})
	d.setState(d.readCard(card))
	return true
}

func (d *PCSCDriver) pickReader(readers []string) string {
	for _, r := range readers {
		if d.cfg.ReaderName == "" || strings.Contains(r, d.cfg.ReaderName) {
			return r
		}
	}
	return ""
}

func (d *PCSCDriver) readCard(card Card) domain.CardState {
	if err := selectPIV(card); err != nil {
		var sw StatusError
		if errors.As(err, &sw) || errors.Is(err, errShortResponse) {
			d.debugf("PIV application not selectable: %v", err)
			return domain.UnknownCardInserted{}
		}
		return stateForError(err)
	}

	var certs []domain.Certificate
	for _, obj := range certificateObjects {
		data, err := getData(card, obj.tag)
		if err != nil {
			var sw StatusError
			if errors.As(err, &sw) {
				if !sw.NotFound() {
					d.debugf("Reading %s certificate: %v", obj.name, err)
				}
				continue
			}
			return stateForError(err)
		}

		der, err := certificateFromObject(data)
		if err != nil {
			d.debugf("Decoding %s certificate object: %v", obj.name, err)
			continue
		}
		if der == nil {
			continue
		}
		cert, err := certificateFromDER(der)
		if err != nil {
			d.debugf("Decoding %s certificate: %v", obj.name, err)
			continue
		}
		d.debugf("Read %s certificate %s", obj.name, cert.SerialString())
		certs = append(certs, cert)
	}

	if len(certs) == 0 {
		d.debugf("No certificates on card")
	}
	return domain.CardStateForCertificates(certs)
}

// setState stores s and notifies the sink when it differs from the current
// state. The sink runs without d.mu held.
func (d *PCSCDriver) setState(s domain.CardState) {
	d.mu.Lock()
	if domain.Equal(d.state, s) {
		d.mu.Unlock()
		return
	}
	d.state = s
	fn := d.onState
	d.mu.Unlock()

	d.logger.Debug("Driver state", "state", s.Kind().String())
	if fn != nil {
		fn(s)
	}
}

func (d *PCSCDriver) debugf(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	d.logger.Debug(msg)

	d.mu.Lock()
	fn := d.onDebug
	d.mu.Unlock()
	if fn != nil {
		fn(msg)
	}
}

// stateForError maps PC/SC failures to smartcard errors with their status
// code and anything else to an internal error.
func stateForError(err error) domain.CardState {
	var scErr scard.Error
	if errors.As(err, &scErr) {
		return domain.NewSmartcardErrorState(scErr.Error(), int64(scErr))
	}
	return domain.NewInternalErrorState(err.Error())
}
