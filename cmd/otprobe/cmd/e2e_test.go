package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// TestCommandsE2E runs otprobe commands against the built-in simulators.
func TestCommandsE2E(t *testing.T) {
	dir := t.TempDir()
	config := filepath.Join(dir, "config.yml")
	scriptFile := filepath.Join(dir, "boot.ots")
	if err := os.WriteFile(scriptFile, []byte("reset halt # catch the vector\nread32 0x08000000\nstep\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name        string
		args        []string
		wantErr     bool
		wantContain []string
	}{
		{
			name:        "info arm",
			args:        []string{"info", "--sim", "arm"},
			wantContain: []string{"STM32F103C8", "ARM", "FLASH", "SRAM", "0x08000000", "stm32f1xx_mediumdensity"},
		},
		{
			name:        "info riscv",
			args:        []string{"info", "--sim", "riscv", "-v"},
			wantContain: []string{"Using probe riscv [SIM-RISCV]", "GD32VF103CB", "RISC-V", "Session:", "builtin"},
		},
		{
			name:        "read vector table",
			args:        []string{"read", "0x08000000", "2", "--sim", "arm"},
			wantContain: []string{"0x08000000: 0x20005000", "0x08000004: 0x08000101"},
		},
		{
			name:        "write words",
			args:        []string{"write", "0x20000000", "1", "2", "--sim", "riscv", "--verbose"},
			wantContain: []string{"Wrote 2 word(s) at 0x20000000"},
		},
		{
			name:        "reset halt riscv",
			args:        []string{"reset", "--halt", "--sim", "riscv"},
			wantContain: []string{"Core 0 halted at pc = 0x08000000"},
		},
		{
			name:        "step after connect under reset",
			args:        []string{"step", "-n", "2", "--sim", "riscv", "--connect-under-reset"},
			wantContain: []string{"Core 0 halted at pc = 0x08000008"},
		},
		{
			name:        "regs arm",
			args:        []string{"regs", "--sim", "arm", "--connect-under-reset"},
			wantContain: []string{"r0", "pc", "xpsr"},
		},
		{
			name:        "script",
			args:        []string{"script", scriptFile, "--sim", "riscv"},
			wantContain: []string{"0x08000000: 0x", "pc = 0x08000004"},
		},
		{
			name:        "targets filter",
			args:        []string{"targets", "stm32f103"},
			wantContain: []string{"STM32F103C8", "STM32F1 Series", "armv7m", "builtin"},
		},
		{
			name:    "unknown simulator",
			args:    []string{"info", "--sim", "z80"},
			wantErr: true,
		},
		{
			name:    "unknown chip",
			args:    []string{"info", "--sim", "arm", "--chip", "NOPE123"},
			wantErr: true,
		},
		{
			name:    "core out of range",
			args:    []string{"halt", "--core", "3", "--sim", "arm"},
			wantErr: true,
		},
		{
			name:    "bad address",
			args:    []string{"read", "zero", "--sim", "arm"},
			wantErr: true,
		},
		{
			name:    "missing script",
			args:    []string{"script", filepath.Join(dir, "missing.ots"), "--sim", "arm"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			root := New()
			root.SetOut(&buf)
			root.SetErr(&buf)
			root.SetArgs(append(tt.args, "--config", config))

			err := root.Execute()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Execute() error = %v, wantErr %v\noutput:\n%s", err, tt.wantErr, buf.String())
			}
			output := buf.String()
			for _, want := range tt.wantContain {
				if !strings.Contains(output, want) {
					t.Errorf("output missing %q\ngot:\n%s", want, output)
				}
			}
		})
	}
}

func TestConfigFileSuppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	config := filepath.Join(dir, "config.yml")
	if err := os.WriteFile(config, []byte("chip: GD32VF103CB\nconnect-under-reset: true\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	root := New()
	root.SetOut(&buf)
	root.SetArgs([]string{"step", "--sim", "riscv", "--config", config})
	if err := root.Execute(); err != nil {
		t.Fatalf("Execute() error = %v\n%s", err, buf.String())
	}
	if !strings.Contains(buf.String(), "pc = 0x08000004") {
		t.Errorf("step did not run on a core halted out of reset:\n%s", buf.String())
	}

	// An explicit flag wins over the file.
	buf.Reset()
	root = New()
	root.SetOut(&buf)
	root.SetArgs([]string{"info", "--sim", "riscv", "--chip", "auto", "--config", config})
	if err := root.Execute(); err != nil {
		t.Fatalf("Execute() error = %v\n%s", err, buf.String())
	}
	if !strings.Contains(buf.String(), "GD32VF103CB") {
		t.Errorf("autodetect output:\n%s", buf.String())
	}
}
