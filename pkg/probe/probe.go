// Package probe loads the BPF programs and exposes their maps and ring
// buffers through the interfaces the aggregation engine consumes.
package probe

import (
	"os"

	bpf "github.com/maxgio92/libbpfgo"
	"github.com/pkg/errors"
	log "github.com/rs/zerolog"
	"golang.org/x/sys/unix"
)

type Probe struct {
	objPath string

	bpfMod *bpf.Module
	bufs   []*RingBuffer

	logger log.Logger
}

type Option func(p *Probe)

func WithLogger(logger log.Logger) Option {
	return func(p *Probe) {
		p.logger = logger.With().Str("component", "probe").Logger()
	}
}

func New(objPath string, opts ...Option) *Probe {
	p := &Probe{
		objPath: objPath,
		logger:  log.Nop(),
	}
	for _, opt := range opts {
		opt(p)
	}

	return p
}

// Load opens the BPF object, sets its read-only globals and map sizes,
// and loads it into the kernel.
func (p *Probe) Load(globals map[string]interface{}, maxEntries map[string]uint32) error {
	if p.objPath == "" {
		return ErrObjPathEmpty
	}
	if _, err := os.Stat(p.objPath); err != nil {
		return errors.Wrapf(err, "error reading bpf object (did you run make?)")
	}
	p.configureBPFLogger()
	p.raiseMemlockLimit()

	var err error
	p.bpfMod, err = bpf.NewModuleFromFile(p.objPath)
	if err != nil {
		return errors.Wrapf(err, "failed to open bpf module: %s", p.objPath)
	}

	for name, value := range globals {
		if err = p.bpfMod.InitGlobalVariable(name, value); err != nil {
			return errors.Wrapf(err, "failed to set bpf global %s", name)
		}
	}
	for name, size := range maxEntries {
		m, err := p.bpfMod.GetMap(name)
		if err != nil {
			return errors.Wrapf(err, "failed to get bpf map %s", name)
		}
		if err = m.SetMaxEntries(size); err != nil {
			return errors.Wrapf(err, "failed to resize bpf map %s to %d", name, size)
		}
	}

	if err = p.bpfMod.BPFLoadObject(); err != nil {
		return errors.Wrapf(err, "failed to load bpf module: %s", p.objPath)
	}
	p.logger.Debug().Str("object", p.objPath).Msg("bpf object loaded")

	return nil
}

// Attach attaches program progName to the category:event tracepoint.
func (p *Probe) Attach(progName, category, event string) error {
	if p.bpfMod == nil {
		return ErrNotLoaded
	}
	prog, err := p.bpfMod.GetProgram(progName)
	if err != nil {
		return errors.Wrapf(err, "failed to get bpf program: %s", progName)
	}
	// Links are owned by the module and destroyed by Close.
	if _, err = prog.AttachTracepoint(category, event); err != nil {
		return errors.Wrapf(err, "failed to attach %s to tracepoint %s:%s", progName, category, event)
	}
	p.logger.Debug().Str("program", progName).Str("tracepoint", category+":"+event).Msg("attached")

	return nil
}

func (p *Probe) getMap(name string) (*bpf.BPFMap, error) {
	if p.bpfMod == nil {
		return nil, ErrNotLoaded
	}
	m, err := p.bpfMod.GetMap(name)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get bpf map %s", name)
	}

	return m, nil
}

// Table returns the keyed counter table stored in map name. dropsName is
// the single-slot array the program increments when the table is full.
func (p *Probe) Table(name, dropsName string) (*Table, error) {
	m, err := p.getMap(name)
	if err != nil {
		return nil, err
	}
	drops, err := p.getMap(dropsName)
	if err != nil {
		return nil, err
	}

	return &Table{m: m, drops: drops}, nil
}

func (p *Probe) StackMap(name string) (*StackMap, error) {
	m, err := p.getMap(name)
	if err != nil {
		return nil, err
	}

	return &StackMap{m: m}, nil
}

// Counter reads slot 0 of the u64 array map name.
func (p *Probe) Counter(name string) (uint64, error) {
	m, err := p.getMap(name)
	if err != nil {
		return 0, err
	}

	return readCounter(m)
}

// OpenRingBuffer starts polling the ring buffer map name.
func (p *Probe) OpenRingBuffer(name string) (*RingBuffer, error) {
	if p.bpfMod == nil {
		return nil, ErrNotLoaded
	}
	events := make(chan []byte, EventsChBufSize)
	rb, err := p.bpfMod.InitRingBuf(name, events)
	if err != nil {
		return nil, errors.Wrapf(err, "error initializing ring buffer %s", name)
	}
	// Poll starts its own goroutine: the C callback sends on events and
	// must not run on a thread-locked goroutine.
	rb.Poll(evtRingBufPollTimeout)

	buf := &RingBuffer{rb: rb, events: events}
	p.bufs = append(p.bufs, buf)

	return buf, nil
}

func (p *Probe) Close() {
	for _, buf := range p.bufs {
		buf.Close()
	}
	if p.bpfMod != nil {
		p.bpfMod.Close()
	}
}

func (p *Probe) configureBPFLogger() {
	bpf.SetLoggerCbs(bpf.Callbacks{
		Log: func(level int, msg string) {
			if level == bpf.LibbpfWarnLevel {
				p.logger.Debug().Msgf("libbpf warning: %s", msg)
			}
		},
	})
}

// raiseMemlockLimit is needed on kernels without memcg-based accounting of
// BPF memory.
func (p *Probe) raiseMemlockLimit() {
	limit := &unix.Rlimit{Cur: unix.RLIM_INFINITY, Max: unix.RLIM_INFINITY}
	if err := unix.Setrlimit(unix.RLIMIT_MEMLOCK, limit); err != nil {
		p.logger.Debug().Err(err).Msg("failed to raise memlock rlimit")
	}
}
