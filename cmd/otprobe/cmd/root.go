// Package cmd implements the otprobe command line.
package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/OpenTraceLab/OpenTraceProbe/internal/config"
	"github.com/OpenTraceLab/OpenTraceProbe/internal/logflags"
	"github.com/OpenTraceLab/OpenTraceProbe/internal/simtarget"
	"github.com/OpenTraceLab/OpenTraceProbe/pkg/probe"
	"github.com/OpenTraceLab/OpenTraceProbe/pkg/session"
	"github.com/OpenTraceLab/OpenTraceProbe/pkg/target"
)

// globalOptions holds the persistent flags merged with the config file.
type globalOptions struct {
	verbose    bool
	log        bool
	logOutput  string
	logDest    string
	configPath string

	probe      string
	chip       string
	protocol   string
	speedKHz   int
	underReset bool
	sim        string

	cfg *config.Config
}

// New builds the otprobe command tree.
func New() *cobra.Command {
	o := &globalOptions{}
	rootCmd := &cobra.Command{
		Use:   "otprobe",
		Short: "Attach to ARM and RISC-V chips through a debug probe",
		Long: `otprobe attaches to a chip through a CMSIS-DAP probe, or a built-in
simulator, and runs basic debug operations against its cores.

Examples:
  otprobe list                                  # List connected probes
  otprobe info --chip auto                      # Identify the attached chip
  otprobe read 0x20000000 4 --sim arm           # Read four words from a simulated STM32
  otprobe reset --halt --connect-under-reset    # Halt core 0 at its reset vector
  otprobe script boot.ots --sim riscv           # Run a debug script`,
		Version:       "0.1.0",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return o.load(cmd.Flags())
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			logflags.Close()
		},
	}
	o.addFlags(rootCmd.PersistentFlags())

	rootCmd.AddCommand(
		newListCmd(o),
		newTargetsCmd(o),
		newInfoCmd(o),
		newReadCmd(o),
		newWriteCmd(o),
		newHaltCmd(o),
		newRunCmd(o),
		newStepCmd(o),
		newResetCmd(o),
		newRegsCmd(o),
		newScriptCmd(o),
	)
	return rootCmd
}

// Execute runs the root command
func Execute() {
	if err := New().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func (o *globalOptions) addFlags(fs *pflag.FlagSet) {
	fs.BoolVarP(&o.verbose, "verbose", "v", false, "verbose output")
	fs.BoolVar(&o.log, "log", false, "enable debug logging")
	fs.StringVar(&o.logOutput, "log-output", "", "comma separated log layers: session,probe,arm,riscv,registry,script")
	fs.StringVar(&o.logDest, "log-dest", "", "write logs to a file path or file descriptor number")
	fs.StringVar(&o.configPath, "config", "", "config file (default is the per-user config.yml)")

	fs.StringVar(&o.probe, "probe", "", "probe serial number (default: first probe found)")
	fs.StringVarP(&o.chip, "chip", "c", "", `target chip name, or "auto"`)
	fs.StringVar(&o.protocol, "protocol", "", "wire protocol: swd or jtag")
	fs.IntVar(&o.speedKHz, "speed", 0, "probe clock in kHz")
	fs.BoolVar(&o.underReset, "connect-under-reset", false, "hold reset while attaching and halt core 0 out of reset")
	fs.StringVar(&o.sim, "sim", "", "use a simulated chip instead of a probe: "+strings.Join(simtarget.Kinds, ", "))
}

// load reads the config file and fills every flag the user did not set.
func (o *globalOptions) load(fs *pflag.FlagSet) error {
	var err error
	if o.configPath != "" {
		o.cfg, err = config.Load(o.configPath)
	} else {
		o.cfg, err = config.LoadDefault()
	}
	if err != nil {
		return err
	}
	if !fs.Changed("log-output") {
		o.logOutput = o.cfg.LogOutput
	}
	if !fs.Changed("probe") {
		o.probe = o.cfg.Probe
	}
	if !fs.Changed("chip") {
		o.chip = o.cfg.Chip
	}
	if !fs.Changed("protocol") {
		o.protocol = o.cfg.Protocol
	}
	if !fs.Changed("speed") {
		o.speedKHz = o.cfg.SpeedKHz
	}
	if !fs.Changed("connect-under-reset") {
		o.underReset = o.cfg.ConnectUnderReset
	}
	logstr := o.logOutput
	if !o.log && !fs.Changed("log-output") {
		logstr = ""
	}
	return logflags.Setup(o.log, logstr, o.logDest)
}

func (o *globalOptions) registry() (*target.Registry, error) {
	reg, err := target.Builtin()
	if err != nil {
		return nil, err
	}
	for _, dir := range o.cfg.TargetDirs {
		if err := reg.LoadDir(dir); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

// probeSource lists the probes the global flags select: one simulator with
// --sim, otherwise the USB probes matching --probe.
func (o *globalOptions) probeSource(cmd *cobra.Command) (session.ProbeLister, session.ProbeOpener) {
	list := func(ctx context.Context) ([]probe.Info, error) {
		if o.sim != "" {
			for _, info := range simtarget.List() {
				if info.Description == o.sim {
					return []probe.Info{info}, nil
				}
			}
			return nil, fmt.Errorf("unknown simulator %q (want one of %v)", o.sim, simtarget.Kinds)
		}
		probes, err := probe.ListAll(ctx)
		if err != nil || o.probe == "" {
			return probes, err
		}
		for _, info := range probes {
			if strings.EqualFold(info.Serial, o.probe) {
				return []probe.Info{info}, nil
			}
		}
		return nil, fmt.Errorf("no probe with serial %q: %w", o.probe, probe.ErrNoProbeFound)
	}
	open := func(info probe.Info, opts probe.OpenOptions) (*probe.Probe, error) {
		if o.verbose {
			fmt.Fprintf(cmd.ErrOrStderr(), "Using probe %s\n", info.Label())
		}
		if info.Kind == probe.KindSimulator {
			return simtarget.Open(info.Description)
		}
		return info.Open(opts)
	}
	return list, open
}

// openSession attaches to the chip selected by the global flags.
func (o *globalOptions) openSession(cmd *cobra.Command) (*session.Session, error) {
	reg, err := o.registry()
	if err != nil {
		return nil, err
	}
	protocol, err := probe.ParseProtocol(o.protocol)
	if err != nil {
		return nil, err
	}
	method := session.AttachNormal
	if o.underReset {
		method = session.AttachUnderReset
	}
	list, open := o.probeSource(cmd)
	return session.AutoAttach(cmd.Context(), target.ParseSelector(o.chip), method,
		session.WithRegistry(reg),
		session.WithProbeSource(list, open),
		session.WithProbeOptions(probe.OpenOptions{Protocol: protocol, SpeedHz: o.speedKHz * 1000}),
	)
}

// withSession runs fn on a fresh session and closes it afterwards.
func (o *globalOptions) withSession(cmd *cobra.Command, fn func(*session.Session) error) error {
	s, err := o.openSession(cmd)
	if err != nil {
		return err
	}
	err = fn(s)
	if cerr := s.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}

func defaultTable(w io.Writer) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetBorder(false)
	table.SetColumnSeparator(" ")
	table.SetCenterSeparator(" ")
	table.SetRowSeparator("-")
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetAutoWrapText(false)
	return table
}

func parseUint32(s string) (uint32, error) {
	v, err := strconv.ParseUint(s, 0, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid number %q", s)
	}
	return uint32(v), nil
}
