package core

// loadBreakpointUnits reads the comparator count once per core lifetime.
func (c *Core) loadBreakpointUnits() error {
	if c.state.units >= 0 {
		return nil
	}
	n, err := c.iface.AvailableBreakpointUnits()
	if err != nil {
		return err
	}
	c.state.units = n
	c.state.breakpoints = make([]breakpointSlot, n)
	return nil
}

// BreakpointUnits returns the number of hardware comparators.
func (c *Core) BreakpointUnits() (int, error) {
	if c.closed {
		return 0, ErrHandleClosed
	}
	if err := c.loadBreakpointUnits(); err != nil {
		return 0, err
	}
	return c.state.units, nil
}

// ClearAllHWBreakpoints disables every comparator on the core, including
// ones set by a previous debugger.
func (c *Core) ClearAllHWBreakpoints() error {
	if c.closed {
		return ErrHandleClosed
	}
	if err := c.loadBreakpointUnits(); err != nil {
		return err
	}
	for unit := 0; unit < c.state.units; unit++ {
		if err := c.iface.ClearHWBreakpoint(unit); err != nil {
			return err
		}
		c.state.breakpoints[unit] = breakpointSlot{}
	}
	return nil
}

// SetHWBreakpoint places a breakpoint at addr in the first free comparator.
// Setting an address twice is a no-op.
func (c *Core) SetHWBreakpoint(addr uint32) error {
	if c.closed {
		return ErrHandleClosed
	}
	if err := c.loadBreakpointUnits(); err != nil {
		return err
	}
	free := -1
	for unit, slot := range c.state.breakpoints {
		if slot.set && slot.addr == addr {
			return nil
		}
		if !slot.set && free < 0 {
			free = unit
		}
	}
	if free < 0 {
		return ErrNoFreeBreakpoint
	}
	if !c.state.bpEnabled {
		if err := c.iface.EnableBreakpoints(true); err != nil {
			return err
		}
		c.state.bpEnabled = true
	}
	if err := c.iface.SetHWBreakpoint(free, addr); err != nil {
		return err
	}
	c.state.breakpoints[free] = breakpointSlot{addr: addr, set: true}
	return nil
}

// ClearHWBreakpoint removes the breakpoint at addr.
func (c *Core) ClearHWBreakpoint(addr uint32) error {
	if c.closed {
		return ErrHandleClosed
	}
	if err := c.loadBreakpointUnits(); err != nil {
		return err
	}
	for unit, slot := range c.state.breakpoints {
		if slot.set && slot.addr == addr {
			if err := c.iface.ClearHWBreakpoint(unit); err != nil {
				return err
			}
			c.state.breakpoints[unit] = breakpointSlot{}
			return nil
		}
	}
	return ErrBreakpointNotFound
}

// ActiveHWBreakpoints reads every comparator back from the core and returns
// the addresses of the enabled ones.
func (c *Core) ActiveHWBreakpoints() ([]uint32, error) {
	if c.closed {
		return nil, ErrHandleClosed
	}
	if err := c.loadBreakpointUnits(); err != nil {
		return nil, err
	}
	var active []uint32
	for unit := 0; unit < c.state.units; unit++ {
		addr, enabled, err := c.iface.HWBreakpoint(unit)
		if err != nil {
			return nil, err
		}
		if enabled {
			active = append(active, addr)
		}
	}
	return active, nil
}
