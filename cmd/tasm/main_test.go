package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const indexedLoadProgram = `instructions:
  - addressing:
      mnemonic: mov
      kind: long
      operand: rax
      pointer: rbx
      index: rcx
  - op: ret
`

func TestVersion(t *testing.T) {
	exitCode, stdOut, stdErr := runMain(t, []string{"version"})
	require.Equal(t, 0, exitCode)
	require.NotEmpty(t, stdOut)
	require.Empty(t, stdErr)
}

func TestAsm(t *testing.T) {
	dir := t.TempDir()
	prog := writeFile(t, dir, "load.yaml", indexedLoadProgram)

	t.Run("hex", func(t *testing.T) {
		exitCode, stdOut, stdErr := runMain(t, []string{"asm", prog})
		require.Equal(t, 0, exitCode, stdErr)
		require.Equal(t, "48 8b 04 cb c3\n", stdOut)
	})

	t.Run("listing with crosscheck", func(t *testing.T) {
		exitCode, stdOut, stdErr := runMain(t, []string{"asm", "--format", "listing", "--crosscheck", prog})
		require.Equal(t, 0, exitCode, stdErr)
		require.Contains(t, stdOut, "48 8b 04 cb")
		require.Contains(t, stdOut, "mov rax, qword ptr [rbx+rcx*8]")
		require.Contains(t, stdOut, "ret")
	})

	t.Run("binary output", func(t *testing.T) {
		out := filepath.Join(dir, "load.bin")
		exitCode, stdOut, stdErr := runMain(t, []string{"asm", "--format", "binary", "-o", out, prog})
		require.Equal(t, 0, exitCode, stdErr)
		require.Empty(t, stdOut)
		got, err := os.ReadFile(out)
		require.NoError(t, err)
		require.Equal(t, []byte{0x48, 0x8b, 0x04, 0xcb, 0xc3}, got)
	})

	t.Run("into image", func(t *testing.T) {
		image := writeFile(t, dir, "image.bin", "\x00\x00\x00\x00\x00\x00\x00\x00")
		exitCode, _, stdErr := runMain(t, []string{"asm", "--start", "0x400000", "--into", image, prog})
		require.Equal(t, 0, exitCode, stdErr)
		got, err := os.ReadFile(image)
		require.NoError(t, err)
		require.Equal(t, []byte{0x48, 0x8b, 0x04, 0xcb, 0xc3, 0, 0, 0}, got)
	})

	t.Run("labels", func(t *testing.T) {
		loop := writeFile(t, dir, "loop.yaml", `instructions:
  - label: top
    op: add
    args: [rax, "1"]
  - op: jne
    args: ["@top"]
`)
		exitCode, stdOut, stdErr := runMain(t, []string{"asm", loop})
		require.Equal(t, 0, exitCode, stdErr)
		require.Equal(t, "48 83 c0 01 75 fa\n", stdOut)
	})

	t.Run("sparc", func(t *testing.T) {
		st := writeFile(t, dir, "store.yaml", `instructions:
  - addressing:
      mnemonic: st
      kind: int
      operand: "%o1"
      store: true
      pointer: "%fp"
      offset: "-8"
`)
		exitCode, stdOut, stdErr := runMain(t, []string{"asm", "--arch", "sparc", st})
		require.Equal(t, 0, exitCode, stdErr)
		require.Equal(t, "d2 27 bf f8\n", stdOut)
	})

	for _, tc := range []struct {
		name, program, expErr string
		args                  []string
	}{
		{name: "unknown mnemonic", program: "instructions:\n  - op: frob\n", expErr: `unknown mnemonic "frob"`},
		{name: "undefined label", program: "instructions:\n  - op: jmp\n    args: [\"@nowhere\"]\n", expErr: `undefined label "nowhere"`},
		{name: "bad operand", program: "instructions:\n  - op: push\n    args: [zz]\n", expErr: `operand "zz" is neither a register nor an integer`},
		{name: "empty statement", program: "instructions:\n  - label: x\n", expErr: "neither op nor addressing"},
		{name: "crosscheck sparc", program: "instructions:\n  - op: nop\n", args: []string{"--arch", "sparc", "--crosscheck"}, expErr: "--crosscheck is not available for sparc"},
		{name: "unknown format", program: "instructions: []\n", args: []string{"--format", "elf"}, expErr: `unknown format "elf"`},
	} {
		t.Run(tc.name, func(t *testing.T) {
			path := writeFile(t, dir, "bad.yaml", tc.program)
			exitCode, _, stdErr := runMain(t, append(append([]string{"asm"}, tc.args...), path))
			require.Equal(t, 1, exitCode)
			require.Contains(t, stdErr, tc.expErr)
		})
	}
}

func TestDisasm(t *testing.T) {
	t.Run("hex", func(t *testing.T) {
		exitCode, stdOut, stdErr := runMain(t, []string{"disasm", "--crosscheck", "--hex", "48 8b 04 cb c3"})
		require.Equal(t, 0, exitCode, stdErr)
		require.Contains(t, stdOut, "mov rax, qword ptr [rbx+rcx*8]")
		require.Contains(t, stdOut, "ret")
	})

	t.Run("files in order", func(t *testing.T) {
		dir := t.TempDir()
		a := writeFile(t, dir, "a.bin", "\xc3")
		b := writeFile(t, dir, "b.bin", "\x41\x54")
		exitCode, stdOut, stdErr := runMain(t, []string{"disasm", a, b})
		require.Equal(t, 0, exitCode, stdErr)
		ia, ib := bytes.Index([]byte(stdOut), []byte(a+":")), bytes.Index([]byte(stdOut), []byte(b+":"))
		require.True(t, ia >= 0 && ib > ia, stdOut)
		require.Contains(t, stdOut, "push r12")
	})

	t.Run("sparc from config", func(t *testing.T) {
		cfg := writeFile(t, t.TempDir(), "tasm.toml", "arch = \"sparc\"\nstart_address = 0x10000\n")
		exitCode, stdOut, stdErr := runMain(t, []string{"disasm", "--config", cfg, "--hex", "d2 02 21 2c"})
		require.Equal(t, 0, exitCode, stdErr)
		require.Contains(t, stdOut, "ld [%o0 + 0x12c], %o1")
	})

	t.Run("truncated", func(t *testing.T) {
		exitCode, _, stdErr := runMain(t, []string{"disasm", "--hex", "48 8b 04"})
		require.Equal(t, 1, exitCode)
		require.Contains(t, stdErr, "truncated input at offset 0")
	})

	t.Run("nothing to do", func(t *testing.T) {
		exitCode, _, stdErr := runMain(t, []string{"disasm"})
		require.Equal(t, 1, exitCode)
		require.Contains(t, stdErr, "nothing to disassemble")
	})
}

func TestTemplates(t *testing.T) {
	exitCode, stdOut, stdErr := runMain(t, []string{"templates", "--arch", "sparc", "sethi"})
	require.Equal(t, 0, exitCode, stdErr)
	require.Contains(t, stdOut, "sethi")
	require.NotContains(t, stdOut, "jmpl")

	exitCode, _, stdErr = runMain(t, []string{"templates", "frob"})
	require.Equal(t, 1, exitCode)
	require.Contains(t, stdErr, "no amd64 templates")
}

func TestConfiguration(t *testing.T) {
	dir := t.TempDir()
	for _, tc := range []struct {
		name    string
		config  string
		args    []string
		expErrs []string
	}{
		{
			name:    "every problem",
			config:  "arch = \"mips\"\nlog_level = \"loud\"\n",
			expErrs: []string{`unknown architecture "mips"`, `not a valid logrus Level: "loud"`},
		},
		{
			name:    "scratch register",
			config:  "arch = \"sparc\"\nscratch = [\"%g1\", \"rax\"]\n",
			expErrs: []string{`unknown sparc scratch register "rax"`},
		},
		{
			name:    "unknown key",
			config:  "arhc = \"sparc\"\n",
			expErrs: []string{"unknown keys arhc"},
		},
		{
			name:    "flag overrides file",
			config:  "arch = \"sparc\"\nscratch = [\"%g1\"]\n",
			args:    []string{"--arch", "amd64"},
			expErrs: []string{`unknown amd64 scratch register "%g1"`},
		},
		{
			name:    "bad flag",
			args:    []string{"--arch", "mips"},
			expErrs: []string{`unknown architecture "mips"`},
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			args := append([]string{"templates"}, tc.args...)
			if tc.config != "" {
				args = append(args, "--config", writeFile(t, dir, "tasm.toml", tc.config))
			}
			exitCode, _, stdErr := runMain(t, args)
			require.Equal(t, 1, exitCode)
			for _, e := range tc.expErrs {
				require.Contains(t, stdErr, e)
			}
		})
	}
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func runMain(t *testing.T, args []string) (int, string, string) {
	t.Helper()
	oldArgs := os.Args
	t.Cleanup(func() {
		os.Args = oldArgs
	})
	os.Args = append([]string{"tasm"}, args...)

	var exitCode int
	stdOut := &bytes.Buffer{}
	stdErr := &bytes.Buffer{}
	var exited bool
	func() {
		defer func() {
			if r := recover(); r != nil {
				exited = true
			}
		}()
		doMain(stdOut, stdErr, func(code int) {
			exitCode = code
			panic(code)
		})
	}()

	require.True(t, exited)

	return exitCode, stdOut.String(), stdErr.String()
}
