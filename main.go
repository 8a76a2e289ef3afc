package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/mattn/go-colorable"
	"github.com/olekukonko/tablewriter"
	"github.com/peterh/liner"
	cli "gopkg.in/urfave/cli.v1"

	"ace/asm"
	"ace/corelib"
	"ace/vm"
)

var (
	errColor  = color.New(color.FgRed, color.Bold)
	okColor   = color.New(color.FgGreen)
	diagColor = color.New(color.FgYellow)
)

func main() {
	app := cli.NewApp()
	app.Name = "ace"
	app.Usage = "compile, run, and inspect Ace bytecode programs"
	app.Version = "0.1.0"

	app.Flags = []cli.Flag{
		cli.StringFlag{Name: "c", Usage: "compile assembly source only, do not run"},
		cli.StringFlag{Name: "b", Usage: "run a pre-compiled bytecode file"},
		cli.StringFlag{Name: "d", Usage: "disassemble a bytecode file"},
		cli.StringFlag{Name: "o", Usage: "output path for -c / -d"},
		cli.StringFlag{Name: "config", Usage: "path to a TOML config file for VM tuning"},
	}

	app.Action = run

	if err := app.Run(os.Args); err != nil {
		errColor.Fprintf(colorable.NewColorableStderr(), "%v\n", err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	cfg, err := vm.LoadConfig(c.String("config"), vm.DefaultConfig())
	if err != nil {
		return err
	}

	switch {
	case c.String("c") != "":
		return compileOnly(c.String("c"), c.String("o"))
	case c.String("d") != "":
		return disassembleOnly(c.String("d"), c.String("o"))
	case c.String("b") != "":
		program, err := os.ReadFile(c.String("b"))
		if err != nil {
			return err
		}
		return runProgram(program, cfg)
	case c.NArg() > 0:
		src, err := os.ReadFile(c.Args().First())
		if err != nil {
			return err
		}
		program, err := asm.Assemble(string(src))
		if err != nil {
			return fmt.Errorf("assemble: %w", err)
		}
		return runProgram(program, cfg)
	default:
		return repl(cfg)
	}
}

func compileOnly(srcPath, outPath string) error {
	src, err := os.ReadFile(srcPath)
	if err != nil {
		return err
	}
	program, err := asm.Assemble(string(src))
	if err != nil {
		return fmt.Errorf("assemble: %w", err)
	}
	if outPath == "" {
		outPath = srcPath + ".acb"
	}
	if err := os.WriteFile(outPath, program, 0o644); err != nil {
		return err
	}
	okColor.Printf("wrote %s (%d bytes)\n", outPath, len(program))
	return nil
}

func disassembleOnly(binPath, outPath string) error {
	program, err := os.ReadFile(binPath)
	if err != nil {
		return err
	}
	text, err := asm.Disassemble(program)
	if err != nil {
		return fmt.Errorf("disassemble: %w", err)
	}
	if outPath != "" {
		return os.WriteFile(outPath, []byte(text), 0o644)
	}
	printDisassemblyTable(text)
	return nil
}

// printDisassemblyTable renders one row per disassembled instruction,
// line number alongside text, instead of a bare text dump.
func printDisassemblyTable(text string) {
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"line", "instruction"})
	table.SetAutoWrapText(false)
	for i, line := range strings.Split(strings.TrimRight(text, "\n"), "\n") {
		table.Append([]string{strconv.Itoa(i), line})
	}
	table.Render()
}

// runProgram executes program to completion on the main thread and
// reports the exit code the way the driver is observable at: 0 on a
// clean finish, 1 if an unhandled exception halted state.Good.
func runProgram(program []byte, cfg vm.Config) error {
	state := vm.NewVMState(cfg, colorable.NewColorableStdout(), os.Stdin)
	corelib.Install(state, program)

	stream := vm.NewBytecodeStream(program)
	dispatcher := vm.NewDispatcher(state)
	dispatcher.Run(state.MainThread(), stream)
	_ = state.Stdout.Flush()
	_ = state.Wait()

	if !state.Good {
		os.Exit(1)
	}
	return nil
}

// repl is a line-buffered assemble-and-run loop: it accumulates lines
// until a blank one, assembles the block, and executes it in a fresh
// VM. Ace's source-level grammar is out of scope here, so the REPL
// speaks bytecode assembly directly - the same language -c/-d do.
func repl(cfg vm.Config) error {
	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)

	diagColor.Println("ace bytecode repl - blank line runs the block, Ctrl-D exits, :heap dumps the last run's heap")

	var block []string
	var last *vm.VMState
	for {
		text, err := line.Prompt("ace> ")
		if err != nil {
			fmt.Println()
			return nil
		}
		line.AppendHistory(text)

		if text == ":heap" {
			if last == nil {
				diagColor.Println("no program has run yet")
			} else {
				diagColor.Printf("vm %s\n", last.InstanceID())
				fmt.Print(last.Heap.Dump())
			}
			continue
		}

		if text == "" {
			if len(block) == 0 {
				continue
			}
			last = runBlock(block, cfg)
			block = nil
			continue
		}
		block = append(block, text)
	}
}

func runBlock(lines []string, cfg vm.Config) *vm.VMState {
	src := ""
	for _, l := range lines {
		src += l + "\n"
	}
	program, err := asm.Assemble(src)
	if err != nil {
		errColor.Printf("assemble error: %v\n", err)
		return nil
	}

	state := vm.NewVMState(cfg, colorable.NewColorableStdout(), os.Stdin)
	corelib.Install(state, program)
	dispatcher := vm.NewDispatcher(state)
	dispatcher.Run(state.MainThread(), vm.NewBytecodeStream(program))
	_ = state.Stdout.Flush()

	if !state.Good {
		errColor.Println("program halted on an unhandled exception")
	}
	return state
}
