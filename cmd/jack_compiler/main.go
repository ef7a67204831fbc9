package main

import (
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"hackforge.dev/n2t/pkg/jack"
	"hackforge.dev/n2t/pkg/vm"

	"github.com/teris-io/cli"
)

var Description = strings.ReplaceAll(`
The Jack Compiler compiles programs (composed of multiple classes/files) written in
the Jack language into VM modules that can be further elaborated. The Jack language
is a higher-level OOP language tailored for use with the Hack computer architecture.
`, "\n", " ")

var JackCompiler = cli.New(Description).
	// 'AsOptional()' allows to have more than one input .jack file
	WithArg(cli.NewArg("inputs", "The source (.jack) files to be compiled").
		AsOptional().WithType(cli.TypeString)).
	WithOption(cli.NewOption("stdlib", "Checks call arities against the built-in ABI of the standard library").
		WithType(cli.TypeBool)).
	WithOption(cli.NewOption("emit-xml", "Also dumps the token stream and parse tree alongside the .vm output").
		WithType(cli.TypeBool)).
	WithAction(Handler)

func Handler(args []string, options map[string]string) int {
	if len(args) < 1 {
		fmt.Printf("ERROR: Not enough arguments provided, use --help\n")
		return -1
	}

	// The aggregation of all the Translation Units (TUs) found during the input walk (just the
	// paths); every .jack file is its own class and compiles to its own vm.Module.
	TUs := []string{}

	for _, input := range args {
		filepath.Walk(input, func(p string, info fs.FileInfo, err error) error {
			if err != nil {
				return err
			}
			if info.IsDir() {
				if p != input {
					return filepath.SkipDir // Only the top-level directory is walked
				}
				return nil
			}
			if filepath.Ext(p) != ".jack" {
				return nil // Ignore other filetypes
			}

			TUs = append(TUs, p)
			return nil
		})
	}

	_, emitXML := options["emit-xml"]

	program := vm.Program{}
	for _, tu := range TUs {
		content, err := os.ReadFile(tu)
		if err != nil {
			fmt.Printf("ERROR: Unable to open input file: %s\n", err)
			return -1
		}

		// Removes root directory and file extension to use as module name
		filename, extension := path.Base(tu), path.Ext(tu)
		base := strings.TrimSuffix(tu, extension)
		stem := strings.TrimSuffix(filename, extension)

		if emitXML {
			tokensOut, err := os.Create(fmt.Sprintf("%sT.xml", base))
			if err != nil {
				fmt.Printf("ERROR: Unable to open token XML output file: %s\n", err)
				return -1
			}
			defer tokensOut.Close()
			if err := jack.DumpTokens(string(content), tokensOut); err != nil {
				fmt.Printf("ERROR: Unable to complete token XML dump: %s\n", err)
				return -1
			}
		}

		// Instantiate a parser for the Jack class; parsing and codegen happen in the same
		// pass, there is no separate lowering step from an intermediate AST.
		parser := jack.NewParser(string(content))

		var treeOut *os.File
		if emitXML {
			var err error
			treeOut, err = os.Create(fmt.Sprintf("%s.xml", base))
			if err != nil {
				fmt.Printf("ERROR: Unable to open parse tree XML output file: %s\n", err)
				return -1
			}
			defer treeOut.Close()
			parser.SetTrace(treeOut)
		}

		module, err := parser.Parse()
		if err != nil {
			fmt.Printf("ERROR: Unable to complete 'parsing' pass: %s\n", err)
			return -1
		}
		program[stem] = module
	}

	if _, enabled := options["stdlib"]; enabled {
		if err := jack.CheckABI(program, jack.StandardLibraryABI); err != nil {
			fmt.Printf("ERROR: Unable to complete 'stdlib' ABI check: %s\n", err)
			return -1
		}
	}

	// Now, instantiates a code generator for the Vm (compiled) program
	codegen := vm.NewCodeGenerator(program)
	// Iterates over each instruction and spits out the relative textual representation.
	compiled, err := codegen.Generate()
	if err != nil {
		fmt.Printf("ERROR: Unable to complete 'codegen' pass: %s\n", err)
		return -1
	}

	for _, tu := range TUs {
		// Removes root directory and file extension to use as module name
		filename, extension := path.Base(tu), path.Ext(tu)
		module, ok := compiled[strings.TrimSuffix(filename, extension)]
		if !ok {
			fmt.Printf("ERROR: Unable to compile module for class file '%s'\n", tu)
			return -1
		}

		output, err := os.Create(fmt.Sprintf("%s.vm", strings.TrimSuffix(tu, extension)))
		if err != nil {
			fmt.Printf("ERROR: Unable to open output file: %s\n", err)
			return -1
		}
		defer output.Close()

		for _, ops := range module {
			line := fmt.Sprintf("%s\n", ops)
			output.Write([]byte(line))
		}
	}

	return 0
}

func main() { os.Exit(JackCompiler.Run(os.Args, os.Stdout)) }
