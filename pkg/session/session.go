// Package session attaches to a chip through a debug probe and hands out
// exclusive per-core handles.
package session

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/OpenTraceLab/OpenTraceProbe/internal/logflags"
	"github.com/OpenTraceLab/OpenTraceProbe/pkg/core"
	"github.com/OpenTraceLab/OpenTraceProbe/pkg/probe"
	"github.com/OpenTraceLab/OpenTraceProbe/pkg/target"
)

// AttachMethod selects how New connects to the chip.
type AttachMethod uint8

const (
	// AttachNormal attaches to the running chip.
	AttachNormal AttachMethod = iota
	// AttachUnderReset expects the reset line to be asserted and halts
	// core 0 as it leaves reset.
	AttachUnderReset
)

func (m AttachMethod) String() string {
	if m == AttachUnderReset {
		return "under-reset"
	}
	return "normal"
}

// CoreInfo describes one core of the session's target.
type CoreInfo struct {
	Index int
	Name  string
	Type  core.CoreType
}

type coreEntry struct {
	spec  target.CoreSpec
	state *core.State
}

// Session owns a probe and the target attached through it.
type Session struct {
	mu sync.Mutex

	id     uuid.UUID
	log    *logrus.Entry
	probe  *probe.Probe
	target *target.Target
	iface  archInterface
	cores  []coreEntry

	handle *core.Core
	closed bool
}

// ProbeLister enumerates the probes AutoAttach may use.
type ProbeLister func(ctx context.Context) ([]probe.Info, error)

// ProbeOpener opens one probe returned by a ProbeLister.
type ProbeOpener func(info probe.Info, opts probe.OpenOptions) (*probe.Probe, error)

type options struct {
	registry *target.Registry
	log      *logrus.Entry
	open     probe.OpenOptions
	list     ProbeLister
	opener   ProbeOpener
}

// Option configures New and AutoAttach.
type Option func(*options)

// WithRegistry resolves named and autodetected chips against r instead of
// the builtin registry.
func WithRegistry(r *target.Registry) Option {
	return func(o *options) { o.registry = r }
}

// WithLogger replaces the session layer logger.
func WithLogger(log *logrus.Entry) Option {
	return func(o *options) { o.log = log }
}

// WithProbeOptions sets the options AutoAttach opens the probe with.
func WithProbeOptions(opts probe.OpenOptions) Option {
	return func(o *options) { o.open = opts }
}

// WithProbeSource replaces USB enumeration in AutoAttach. A nil opener
// keeps probe.Info.Open.
func WithProbeSource(list ProbeLister, open ProbeOpener) Option {
	return func(o *options) {
		o.list = list
		o.opener = open
	}
}

func buildOptions(opts []Option) options {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if o.log == nil {
		o.log = logflags.SessionLogger()
	}
	if o.list == nil {
		o.list = probe.ListAll
	}
	if o.opener == nil {
		o.opener = probe.Info.Open
	}
	return o
}

// New resolves sel on p, optionally runs the reset under debug sequence and
// clears every hardware breakpoint. The session takes ownership of p; on
// failure p is closed and no session is returned.
func New(p *probe.Probe, sel target.Selector, method AttachMethod, opts ...Option) (*Session, error) {
	o := buildOptions(opts)
	s, err := attach(p, sel, method, o)
	if err != nil {
		if cerr := p.Close(); cerr != nil {
			o.log.WithError(cerr).Warn("closing probe after failed attach")
		}
		return nil, err
	}
	return s, nil
}

// NewUnderReset asserts the reset line of p and attaches with
// AttachUnderReset.
func NewUnderReset(p *probe.Probe, sel target.Selector, opts ...Option) (*Session, error) {
	if err := p.TargetResetAssert(); err != nil {
		o := buildOptions(opts)
		if cerr := p.Close(); cerr != nil {
			o.log.WithError(cerr).Warn("closing probe after failed reset")
		}
		return nil, fmt.Errorf("session: assert reset: %w", err)
	}
	return New(p, sel, AttachUnderReset, opts...)
}

// AutoAttach opens the first probe found and attaches through it. With
// AttachUnderReset the reset line is asserted first, as NewUnderReset does.
func AutoAttach(ctx context.Context, sel target.Selector, method AttachMethod, opts ...Option) (*Session, error) {
	o := buildOptions(opts)
	probes, err := o.list(ctx)
	if err != nil {
		return nil, err
	}
	if len(probes) == 0 {
		return nil, probe.ErrNoProbeFound
	}
	o.log.Debugf("using probe %s", probes[0].Label())
	p, err := o.opener(probes[0], o.open)
	if err != nil {
		return nil, err
	}
	if method == AttachUnderReset {
		return NewUnderReset(p, sel, opts...)
	}
	return New(p, sel, method, opts...)
}

func attach(p *probe.Probe, sel target.Selector, method AttachMethod, o options) (*Session, error) {
	id := uuid.New()
	log := o.log.WithField("session", id.String())

	reg := o.registry
	if reg == nil {
		if _, ok := sel.(target.Specified); !ok {
			builtin, err := target.Builtin()
			if err != nil {
				return nil, fmt.Errorf("session: load builtin targets: %w", err)
			}
			reg = builtin
		}
	}

	t, err := resolveTarget(p, sel, reg, log)
	if err != nil {
		return nil, err
	}
	log.Debugf("target %s (%s, from %s), attach %s", t.Name, t.CoreType, t.Source, method)

	s := &Session{
		id:     id,
		log:    log,
		probe:  p,
		target: t,
		iface:  newArchInterface(t.Architecture()),
	}
	for i, spec := range t.CoreList() {
		s.cores = append(s.cores, coreEntry{spec: spec, state: core.NewState(i)})
	}

	if method == AttachUnderReset {
		if err := s.resetUnderDebug(); err != nil {
			return nil, err
		}
	}
	if err := s.clearAllHWBreakpoints(); err != nil {
		return nil, err
	}
	return s, nil
}

// ID identifies the session in log output.
func (s *Session) ID() uuid.UUID {
	return s.id
}

func (s *Session) Target() *target.Target {
	return s.target
}

// Architecture is fixed when the session is created.
func (s *Session) Architecture() core.Architecture {
	return s.iface.architecture()
}

func (s *Session) MemoryMap() []target.MemoryRegion {
	return append([]target.MemoryRegion(nil), s.target.MemoryMap...)
}

func (s *Session) FlashAlgorithms() []target.RawFlashAlgorithm {
	return append([]target.RawFlashAlgorithm(nil), s.target.FlashAlgorithms...)
}

// ListCores returns the cores of the target in index order.
func (s *Session) ListCores() []CoreInfo {
	out := make([]CoreInfo, len(s.cores))
	for i, c := range s.cores {
		out[i] = CoreInfo{Index: i, Name: c.spec.Name, Type: c.spec.Type}
	}
	return out
}

// attachCore builds a handle for core n. The caller holds s.mu.
func (s *Session) attachCore(n int, release func()) (*core.Core, error) {
	if s.closed {
		return nil, ErrClosed
	}
	if n < 0 || n >= len(s.cores) {
		return nil, &CoreNotFoundError{Index: n}
	}
	if s.handle != nil {
		return nil, ErrHandleInUse
	}
	entry := s.cores[n]
	c, err := s.iface.attach(s.probe, entry.spec, entry.state, release)
	if err != nil {
		return nil, fmt.Errorf("session: attach core %d: %w", n, err)
	}
	return c, nil
}

// Core attaches to core n. Only one handle may be open at a time; Close
// the handle to release it.
func (s *Session) Core(n int) (*core.Core, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, err := s.attachCore(n, s.releaseHandle)
	if err != nil {
		return nil, err
	}
	s.handle = c
	return c, nil
}

func (s *Session) releaseHandle() {
	s.mu.Lock()
	s.handle = nil
	s.mu.Unlock()
}

// WithCore runs fn with a handle to core n and closes it afterwards.
func (s *Session) WithCore(n int, fn func(*core.Core) error) error {
	c, err := s.Core(n)
	if err != nil {
		return err
	}
	defer c.Close()
	return fn(c)
}

// ClearAllHWBreakpoints disables every hardware breakpoint on every core in
// index order. The first failure is returned; cores already cleared stay
// cleared.
func (s *Session) ClearAllHWBreakpoints() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clearAllHWBreakpoints()
}

func (s *Session) clearAllHWBreakpoints() error {
	for i := range s.cores {
		c, err := s.attachCore(i, nil)
		if err != nil {
			return err
		}
		err = c.ClearAllHWBreakpoints()
		c.Close()
		if err != nil {
			return fmt.Errorf("session: clear breakpoints on core %d: %w", i, err)
		}
	}
	return nil
}

// Close clears all hardware breakpoints and closes the probe. A failure to
// clear breakpoints is logged, only the probe close error is returned. A
// core handle still open is closed first.
func (s *Session) Close() error {
	s.mu.Lock()
	live := s.handle
	s.mu.Unlock()
	if live != nil {
		s.log.Warn("closing session while a core handle is open")
		// Close runs releaseHandle, which takes s.mu.
		live.Close()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	if err := s.clearAllHWBreakpoints(); err != nil {
		s.log.WithError(err).Warn("could not clear hardware breakpoints")
	}
	s.closed = true
	return s.probe.Close()
}
