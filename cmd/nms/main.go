// Command nms loads a WebAssembly script with access to native code
// through the nms host module and calls its exports.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"golang.org/x/term"
)

func main() {
	var (
		scriptFile  = flag.String("script", "", "Path to the guest wasm module")
		configFile  = flag.String("config", "nms.yaml", "Path to the config file (created when missing)")
		funcName    = flag.String("func", "", "Export to call (optional)")
		args        = flag.String("args", "", "Arguments for -func (comma-separated)")
		list        = flag.Bool("list", false, "List exported functions and exit")
		interactive = flag.Bool("i", false, "Interactive mode with TUI")
	)
	flag.Parse()

	if *scriptFile == "" {
		fmt.Fprintln(os.Stderr, "Usage: nms -script <file.wasm> [-config nms.yaml] [-func name] [-args a,b,...]")
		fmt.Fprintln(os.Stderr, "       nms -script <file.wasm> -list")
		fmt.Fprintln(os.Stderr, "       nms -script <file.wasm> -i  (interactive mode)")
		os.Exit(1)
	}

	if *interactive {
		if !term.IsTerminal(int(os.Stdout.Fd())) {
			fmt.Fprintln(os.Stderr, "Error: -i needs a terminal")
			os.Exit(1)
		}
		if err := runInteractive(*configFile, *scriptFile); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := run(*configFile, *scriptFile, *funcName, *args, *list); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(configFile, scriptFile, funcName, argStr string, listOnly bool) error {
	ctx := context.Background()

	s, err := openSession(ctx, configFile, scriptFile)
	if err != nil {
		return err
	}
	defer s.close(ctx)

	fns := s.rt.Functions()
	fmt.Printf("Script: %s\n", scriptFile)
	fmt.Printf("\nExported functions:\n")
	for _, fn := range fns {
		fmt.Printf("  %s\n", fn)
	}
	if listOnly {
		return nil
	}

	if funcName == "" {
		for _, name := range []string{"main", "run", "_start"} {
			if _, err := s.rt.Function(name); err == nil {
				funcName = name
				break
			}
		}
		if funcName == "" && len(fns) == 1 {
			funcName = fns[0].Name()
		}
		if funcName == "" {
			fmt.Printf("\nNo function specified and no common entry point found.\n")
			fmt.Printf("Use -func to specify a function to call.\n")
			return nil
		}
	}

	fmt.Printf("\nCalling %s(%s)...\n", funcName, argStr)
	result, err := s.call(ctx, funcName, splitArgs(argStr))
	if err != nil {
		return fmt.Errorf("call %s: %w", funcName, err)
	}
	fmt.Printf("Result: %v\n", result)
	return nil
}
