// Command ksc is the KernelScript one-shot compiler. It reads a single
// `.ks` source file and writes the generated kernel-side and user-space C
// translation units next to it.
//
// Usage:
//
//	ksc compile path/to/program.ks
//	ksc compile -o build/ path/to/program.ks
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/kernelscript/ksc/internal/compiler"
	"github.com/kernelscript/ksc/internal/diag"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: ksc compile [-o dir] <file.ks>")
		os.Exit(2)
	}

	switch os.Args[1] {
	case "compile":
		os.Exit(cmdCompile(os.Args[2:]))
	case "version":
		fmt.Println("ksc (KernelScript compiler)")
		os.Exit(0)
	default:
		fmt.Fprintf(os.Stderr, "ksc: unknown command %q; use compile or version\n", os.Args[1])
		os.Exit(2)
	}
}

func cmdCompile(args []string) int {
	fs := flag.NewFlagSet("compile", flag.ContinueOnError)
	outDir := fs.String("o", "", "output directory (defaults to the source file's directory)")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: ksc compile [-o dir] <file.ks>")
		return 2
	}

	path := fs.Arg(0)
	src, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ksc: %v\n", err)
		return 2
	}

	out, err := compiler.Compile(path, string(src))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return diag.ExitCode(err)
	}

	dir := *outDir
	if dir == "" {
		dir = filepath.Dir(path)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "ksc: %v\n", err)
		return 2
	}

	if err := os.WriteFile(filepath.Join(dir, out.KernelCPath), []byte(out.KernelC), 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "ksc: %v\n", err)
		return 2
	}
	if err := os.WriteFile(filepath.Join(dir, out.UserCPath), []byte(out.UserC), 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "ksc: %v\n", err)
		return 2
	}

	fmt.Printf("wrote %s and %s\n", out.KernelCPath, out.UserCPath)
	return 0
}
