// cmd/solidc/main.go
package main

import (
	"fmt"
	"log"
	"os"

	"solidc/internal/driver"
	"solidc/internal/ir/asm"
	"solidc/internal/ir/interp"
	"solidc/internal/sess"
)

const version = "0.1.0"

var commandAliases = map[string]string{
	"l": "lower",
	"a": "asm",
	"d": "disasm",
	"r": "run",
}

func main() {
	args := os.Args[1:]
	if len(args) == 0 {
		showUsage()
		return
	}

	cmd := args[0]
	if alias, ok := commandAliases[cmd]; ok {
		cmd = alias
	}

	if cmd == "--help" || cmd == "-h" || cmd == "help" {
		showUsage()
		return
	}
	if cmd == "--version" || cmd == "-v" || cmd == "version" {
		fmt.Println("solidc", version)
		return
	}

	switch cmd {
	case "lower":
		if err := lowerCommand(args[1:]); err != nil {
			log.Fatalf("solidc lower: %v", err)
		}
	case "asm":
		if err := asmCommand(args[1:]); err != nil {
			log.Fatalf("solidc asm: %v", err)
		}
	case "disasm":
		if err := disasmCommand(args[1:]); err != nil {
			log.Fatalf("solidc disasm: %v", err)
		}
	case "run":
		if err := runCommand(args[1:]); err != nil {
			log.Fatalf("solidc run: %v", err)
		}
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n", cmd)
		showUsage()
		os.Exit(1)
	}
}

func showUsage() {
	fmt.Println(`solidc - Solid compiler front-end and IR toolchain

Usage:
  solidc lower <file.sld>    lower Solid source to textual IR
  solidc asm <file.ir>       assemble textual IR and print it back (round-trip check)
  solidc disasm <file.ir>    parse textual IR, print its disassembly
  solidc run <file.ir> <fn> [args...]   interpret an IR module, calling fn with integer args

Aliases: l=lower a=asm d=disasm r=run`)
}

func readFile(path string) (string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func lowerCommand(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: solidc lower <file.sld>")
	}
	src, err := readFile(args[0])
	if err != nil {
		return err
	}
	ds := driver.NewSession()
	mod, err := ds.Compile(src)
	if err != nil {
		return err
	}
	fmt.Println(asm.Print(ds.Sess, mod))
	return nil
}

func asmCommand(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: solidc asm <file.ir>")
	}
	src, err := readFile(args[0])
	if err != nil {
		return err
	}
	s := sess.New()
	mod, err := asm.Parse(s, src)
	if err != nil {
		return err
	}
	fmt.Println(asm.Print(s, mod))
	return nil
}

func disasmCommand(args []string) error {
	return asmCommand(args)
}

func runCommand(args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: solidc run <file.ir> <fn> [args...]")
	}
	src, err := readFile(args[0])
	if err != nil {
		return err
	}
	s := sess.New()
	mod, err := asm.Parse(s, src)
	if err != nil {
		return err
	}

	vm := interp.New()
	vm.LoadModule(mod)

	fnName := s.Intern(args[1])
	callArgs := make([][]byte, 0, len(args)-2)
	for _, raw := range args[2:] {
		var n int64
		fmt.Sscanf(raw, "%d", &n)
		callArgs = append(callArgs, encodeArg(n))
	}

	result, err := vm.CallFunction(fnName, callArgs)
	if err != nil {
		return err
	}
	fmt.Printf("-> %v\n", result)
	return nil
}

func encodeArg(n int64) []byte {
	u := uint64(n)
	return []byte{byte(u), byte(u >> 8), byte(u >> 16), byte(u >> 24)}
}
