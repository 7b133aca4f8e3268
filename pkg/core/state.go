package core

// State is the persistent state of one core. It is created once per declared
// core and survives any number of attach cycles.
type State struct {
	index      int
	lastStatus Status

	// Hardware breakpoint cache. units < 0 means not yet read from the core.
	units       int
	breakpoints []breakpointSlot
	bpEnabled   bool
}

type breakpointSlot struct {
	addr uint32
	set  bool
}

// NewState creates the state for core index.
func NewState(index int) *State {
	return &State{index: index, units: -1}
}

// Index is the core number within the target.
func (s *State) Index() int {
	return s.index
}

// LastStatus is the status observed by the most recent status query.
func (s *State) LastStatus() Status {
	return s.lastStatus
}
