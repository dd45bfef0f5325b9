package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"

	"github.com/asmkit/tasm"
)

// settings is the layout of the configuration file.
//
//	arch = "sparc"
//	start_address = 0x10000
//	scratch = ["%g1", "%g4"]
//	strict = true
//	log_level = "debug"
type settings struct {
	Arch         string   `toml:"arch"`
	StartAddress uint64   `toml:"start_address"`
	Scratch      []string `toml:"scratch"`
	// Strict is nil when unset, keeping the library default.
	Strict   *bool  `toml:"strict"`
	LogLevel string `toml:"log_level"`
}

func defaultSettings() settings {
	return settings{Arch: tasm.AMD64.String(), LogLevel: logrus.WarnLevel.String()}
}

// loadSettings decodes path over s. Keys s does not define are an error.
func loadSettings(path string, s *settings) error {
	md, err := toml.DecodeFile(path, s)
	if err != nil {
		return errors.Wrapf(err, "reading config %s", path)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		sort.Strings(keys)
		return errors.Errorf("config %s: unknown keys %s", path, strings.Join(keys, ", "))
	}
	return nil
}

// build validates s and turns it into a library configuration and a log level. Every
// problem is reported.
func (s *settings) build() (*tasm.Config, logrus.Level, error) {
	var errs *multierror.Error
	arch, err := tasm.ParseArchitecture(s.Arch)
	if err != nil {
		errs = multierror.Append(errs, err)
	}
	level, err := logrus.ParseLevel(s.LogLevel)
	if err != nil {
		errs = multierror.Append(errs, err)
	}
	var scratch []tasm.Register
	if arch != 0 {
		for _, name := range s.Scratch {
			r, ok := arch.LookupRegister(name)
			if !ok {
				errs = multierror.Append(errs, fmt.Errorf("unknown %s scratch register %q", arch, name))
				continue
			}
			scratch = append(scratch, r)
		}
	}
	if err := errs.ErrorOrNil(); err != nil {
		return nil, 0, errors.Wrap(err, "invalid configuration")
	}

	cfg := tasm.NewConfig(arch).WithStartAddress(s.StartAddress)
	if len(scratch) > 0 {
		cfg = cfg.WithScratchRegisters(scratch...)
	}
	if s.Strict != nil {
		cfg = cfg.WithStrictDecoding(*s.Strict)
	}
	return cfg, level, nil
}

// archValue is the pflag.Value of --arch.
type archValue struct {
	arch *tasm.Architecture
}

var _ pflag.Value = (*archValue)(nil)

// String implements pflag.Value.
func (v *archValue) String() string {
	if v.arch == nil || *v.arch == 0 {
		return tasm.AMD64.String()
	}
	return v.arch.String()
}

// Set implements pflag.Value.
func (v *archValue) Set(s string) error {
	a, err := tasm.ParseArchitecture(s)
	if err != nil {
		return err
	}
	*v.arch = a
	return nil
}

// Type implements pflag.Value.
func (*archValue) Type() string { return "arch" }
