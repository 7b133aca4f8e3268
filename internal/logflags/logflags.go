// Package logflags hands out per-layer logrus loggers. Layers are enabled
// with the --log / --log-output command line flags; a disabled layer still
// emits warnings and errors.
package logflags

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/sirupsen/logrus"
)

var session = false
var probe = false
var arm = false
var riscv = false
var registry = false
var script = false

var logOut io.WriteCloser

var textFormatterInstance = &logrus.TextFormatter{FullTimestamp: true}

func makeLogger(flag bool, fields logrus.Fields) *logrus.Entry {
	logger := logrus.New().WithFields(fields)
	logger.Logger.Formatter = textFormatterInstance
	if logOut != nil {
		logger.Logger.Out = logOut
	}
	logger.Logger.Level = logrus.DebugLevel
	if !flag {
		logger.Logger.Level = logrus.WarnLevel
	}
	return logger
}

// Session returns true if session attach sequencing should be logged.
func Session() bool {
	return session
}

// SessionLogger returns a logger for the session package.
func SessionLogger() *logrus.Entry {
	return makeLogger(session, logrus.Fields{"layer": "session"})
}

// Probe returns true if probe transport operations should be logged.
func Probe() bool {
	return probe
}

// ProbeLogger returns a logger for probe drivers.
func ProbeLogger() *logrus.Entry {
	return makeLogger(probe, logrus.Fields{"layer": "probe"})
}

// ArmLogger returns a logger for the ARM debug interface.
func ArmLogger() *logrus.Entry {
	return makeLogger(arm, logrus.Fields{"layer": "arm"})
}

// RiscvLogger returns a logger for the RISC-V debug module.
func RiscvLogger() *logrus.Entry {
	return makeLogger(riscv, logrus.Fields{"layer": "riscv"})
}

// RegistryLogger returns a logger for target registry loading.
func RegistryLogger() *logrus.Entry {
	return makeLogger(registry, logrus.Fields{"layer": "registry"})
}

// ScriptLogger returns a logger for the script executor.
func ScriptLogger() *logrus.Entry {
	return makeLogger(script, logrus.Fields{"layer": "script"})
}

var (
	errLogstrWithoutLog  = errors.New("--log-output specified without --log")
	errLogDestWithoutLog = errors.New("--log-dest specified without --log")
)

// Setup sets layer flags based on the contents of logstr and redirects log
// output to logDest. logDest is either a file descriptor number or a path;
// the empty string keeps stderr.
func Setup(logFlag bool, logstr, logDest string) error {
	if logDest != "" {
		if !logFlag {
			return errLogDestWithoutLog
		}
		out, err := openDest(logDest)
		if err != nil {
			return err
		}
		logOut = out
	}
	textFormatterInstance.DisableColors = !isTerminal(logOut)

	if !logFlag {
		if logstr != "" {
			return errLogstrWithoutLog
		}
		return nil
	}
	if logstr == "" {
		logstr = "session"
	}
	for _, layer := range strings.Split(logstr, ",") {
		switch strings.TrimSpace(layer) {
		case "session":
			session = true
		case "probe":
			probe = true
		case "arm":
			arm = true
		case "riscv":
			riscv = true
		case "registry":
			registry = true
		case "script":
			script = true
		default:
			return fmt.Errorf("unknown log layer %q", layer)
		}
	}
	return nil
}

// Close closes the log destination opened by Setup, if any.
func Close() {
	if logOut != nil {
		logOut.Close()
		logOut = nil
	}
}

func openDest(dest string) (io.WriteCloser, error) {
	if fd, err := strconv.Atoi(dest); err == nil {
		return os.NewFile(uintptr(fd), "otprobe-logs"), nil
	}
	return os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
}

func isTerminal(w io.Writer) bool {
	if w == nil {
		w = os.Stderr
	}
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
