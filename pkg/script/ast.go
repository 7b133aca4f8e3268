package script

import (
	"fmt"
	"strconv"
	"time"

	"github.com/alecthomas/participle/v2/lexer"
)

// Script is a parsed debug script.
type Script struct {
	Lines []*Line `@@*`
}

// Line is one statement, or nothing for blank and comment lines.
type Line struct {
	Command *Command `@@? ( Newline | Semicolon )`
}

// Commands returns the statements of the script in order.
func (s *Script) Commands() []*Command {
	var out []*Command
	for _, l := range s.Lines {
		if l.Command != nil {
			out = append(out, l.Command)
		}
	}
	return out
}

// Command is one script statement. Exactly one field besides Pos is set.
type Command struct {
	Pos lexer.Position

	Halt        bool      `  @"halt"`
	Resume      bool      `| @( "resume" | "run" )`
	Step        *Step     `| @@`
	Reset       *Reset    `| @@`
	Core        *Number   `| "core" @Number`
	Read        *Read     `| @@`
	Write       *Write    `| @@`
	Reg         *string   `| "reg" @Ident`
	SetReg      *SetReg   `| @@`
	Break       *Number   `| "break" @Number`
	Unbreak     *Number   `| "unbreak" @Number`
	ClearBreaks bool      `| @"clearbreaks"`
	Wait        *Duration `| "wait" @Duration`
}

// Step executes Count instructions, one when omitted.
type Step struct {
	Count *Number `"step" @Number?`
}

// Reset resets the core, halting it at the reset vector when Halt is set.
type Reset struct {
	Halt bool `"reset" @"halt"?`
}

// Read prints Count words starting at Addr, one when omitted.
type Read struct {
	Addr  Number  `"read32" @Number`
	Count *Number `@Number?`
}

type Write struct {
	Addr  Number `"write32" @Number`
	Value Number `@Number`
}

type SetReg struct {
	Name  string `"setreg" @Ident`
	Value Number `@Number`
}

// Number is a 32-bit unsigned literal in decimal, hex (0x) or binary (0b).
type Number uint32

func (n *Number) Capture(values []string) error {
	v, err := strconv.ParseUint(values[0], 0, 32)
	if err != nil {
		return fmt.Errorf("invalid number %q: %w", values[0], err)
	}
	*n = Number(v)
	return nil
}

// Duration is a Go duration literal such as 10ms.
type Duration time.Duration

func (d *Duration) Capture(values []string) error {
	v, err := time.ParseDuration(values[0])
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// Name returns the command keyword.
func (c *Command) Name() string {
	switch {
	case c.Halt:
		return "halt"
	case c.Resume:
		return "resume"
	case c.Step != nil:
		return "step"
	case c.Reset != nil:
		return "reset"
	case c.Core != nil:
		return "core"
	case c.Read != nil:
		return "read32"
	case c.Write != nil:
		return "write32"
	case c.Reg != nil:
		return "reg"
	case c.SetReg != nil:
		return "setreg"
	case c.Break != nil:
		return "break"
	case c.Unbreak != nil:
		return "unbreak"
	case c.ClearBreaks:
		return "clearbreaks"
	case c.Wait != nil:
		return "wait"
	}
	return "?"
}
