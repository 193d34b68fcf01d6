// Command plox runs, disassembles, and assembles plox bytecode images. It
// plays the role the teacher's cmd/smog/main.go plays, scaled to this
// repo's scope: there is no source-level compiler or REPL here (spec.md §1
// puts the front-end compiler out of scope), so `asm` takes the place of
// `smog compile` and works directly against the textual format
// internal/image/asm.go defines instead of a scripting language surface.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v3"

	"github.com/kristofer/plox/internal/image"
	"github.com/kristofer/plox/internal/vm"
)

func main() {
	var verbose bool

	app := &cli.Command{
		Name:  "plox",
		Usage: "a bytecode virtual machine for a small dynamic scripting language",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:        "verbose",
				Usage:       "log VM lifecycle and dispatch events to stderr",
				Destination: &verbose,
			},
		},
		Commands: []*cli.Command{
			runCommand(&verbose),
			disasmCommand(),
			asmCommand(),
		},
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "plox: %v\n", err)
		os.Exit(1)
	}
}

func runCommand(verbose *bool) *cli.Command {
	return &cli.Command{
		Name:      "run",
		Usage:     "execute a .loxc bytecode image",
		ArgsUsage: "<file.loxc>",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			path := cmd.Args().First()
			if path == "" {
				return fmt.Errorf("no file specified; usage: plox run <file.loxc>")
			}
			program, err := loadImage(path)
			if err != nil {
				return err
			}

			var opts []vm.Option
			if *verbose {
				logger := logrus.New()
				logger.SetOutput(os.Stderr)
				logger.SetLevel(logrus.TraceLevel)
				opts = append(opts, vm.WithLogger(logger))
			}

			machine := vm.New(opts...)
			if err := machine.Run(program); err != nil {
				return cli.Exit(err.Error(), 1)
			}
			return nil
		},
	}
}

func disasmCommand() *cli.Command {
	return &cli.Command{
		Name:      "disasm",
		Usage:     "print a human-readable listing of a .loxc image",
		ArgsUsage: "<file.loxc>",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			path := cmd.Args().First()
			if path == "" {
				return fmt.Errorf("no file specified; usage: plox disasm <file.loxc>")
			}
			program, err := loadImage(path)
			if err != nil {
				return err
			}
			return image.WriteAsm(os.Stdout, program)
		},
	}
}

func asmCommand() *cli.Command {
	return &cli.Command{
		Name:      "asm",
		Usage:     "assemble a textual listing into a .loxc image",
		ArgsUsage: "<file.loxa> <file.loxc>",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if cmd.Args().Len() < 2 {
				return fmt.Errorf("usage: plox asm <file.loxa> <file.loxc>")
			}
			inputPath := cmd.Args().Get(0)
			outputPath := cmd.Args().Get(1)

			in, err := os.Open(inputPath)
			if err != nil {
				return err
			}
			defer in.Close()

			program, err := image.ParseAsm(in)
			if err != nil {
				return fmt.Errorf("assembling %s: %w", inputPath, err)
			}

			out, err := os.Create(outputPath)
			if err != nil {
				return err
			}
			defer out.Close()

			if err := image.Encode(out, program); err != nil {
				return fmt.Errorf("writing %s: %w", outputPath, err)
			}
			fmt.Printf("assembled %s -> %s\n", inputPath, outputPath)
			return nil
		},
	}
}

func loadImage(path string) (*image.Program, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return image.Decode(f)
}
