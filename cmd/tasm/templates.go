package main

import (
	"fmt"
	"io"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func newTemplatesCommand(g *globalOptions, stdOut io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "templates [MNEMONIC...]",
		Short: "List the instruction templates of the architecture",
		Long: `List the instruction templates of the architecture in catalog order, which is the order
they are tried in. With mnemonics, only their templates are listed.`,
		RunE: func(_ *cobra.Command, args []string) error {
			want := map[string]bool{}
			for _, name := range args {
				want[name] = true
			}
			found := 0
			for _, t := range g.cfg.Architecture().Templates() {
				if len(want) > 0 && !want[t.Name] {
					continue
				}
				found++
				var header string
				if len(t.Headers) > 0 {
					header = fmt.Sprintf("%#x", t.Headers[0].Opcode)
				}
				fmt.Fprintf(stdOut, "%4d  %-10s %-3d %s\n", t.Serial, header, t.Width, t)
			}
			if found == 0 && len(want) > 0 {
				return errors.Errorf("no %s templates for %v", g.cfg.Architecture(), args)
			}
			return nil
		},
	}
}
