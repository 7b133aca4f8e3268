package session

import (
	"fmt"
	"time"
)

// ResetHaltTimeout bounds the wait for core 0 to halt after the reset line
// is released.
const ResetHaltTimeout = 100 * time.Millisecond

type resetPhase uint8

const (
	phaseIdle resetPhase = iota
	phaseDebugEnabled
	phaseResetCatchArmed
	phaseResetDeasserted
	phaseWaitingHalt
	phaseReady
)

var resetPhaseNames = [...]string{
	phaseIdle:            "idle",
	phaseDebugEnabled:    "debug enabled",
	phaseResetCatchArmed: "reset catch armed",
	phaseResetDeasserted: "reset deasserted",
	phaseWaitingHalt:     "waiting for halt",
	phaseReady:           "ready",
}

func (p resetPhase) String() string {
	return resetPhaseNames[p]
}

// resetUnderDebug halts core 0 as it leaves reset. Nothing armed on the way
// is undone when a step fails.
func (s *Session) resetUnderDebug() error {
	c, err := s.attachCore(0, nil)
	if err != nil {
		return err
	}
	defer c.Close()
	iface := c.Interface()

	phase := phaseIdle
	advance := func(next resetPhase) {
		s.log.WithField("core", 0).Debugf("reset under debug: %s -> %s", phase, next)
		phase = next
	}

	if err := iface.DebugCoreStart(); err != nil {
		return fmt.Errorf("session: enable debug on core 0: %w", err)
	}
	advance(phaseDebugEnabled)

	if err := iface.ResetCatchSet(); err != nil {
		return fmt.Errorf("session: arm reset catch on core 0: %w", err)
	}
	advance(phaseResetCatchArmed)

	if err := s.probe.TargetResetDeassert(); err != nil {
		return fmt.Errorf("session: deassert reset: %w", err)
	}
	advance(phaseResetDeasserted)

	advance(phaseWaitingHalt)
	if err := c.WaitForCoreHalted(ResetHaltTimeout); err != nil {
		return fmt.Errorf("session: core 0 did not halt out of reset: %w", err)
	}

	if err := iface.ResetCatchClear(); err != nil {
		return fmt.Errorf("session: clear reset catch on core 0: %w", err)
	}
	advance(phaseReady)
	return nil
}
