// Command orthopath builds, inspects and serves multi-path CIFAR ResNets.
//
// Usage:
//
//	orthopath <command> [flags]
//
// Commands:
//
//	version        print the version
//	summary        print the architecture and parameter count
//	forward        run a random batch through all, a random or a selected path
//	penalty        print the orthogonality penalty of the path bank
//	orthogonalize  run SGD on the penalty to decorrelate the paths
//	init           write a freshly initialized checkpoint
//	serve          serve the model over HTTP
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
)

const version = "v0.1.0"

var errUsage = errors.New("usage")

func main() {
	log.SetFlags(0)
	log.SetPrefix("[orthopath] ")

	if err := run(os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, errUsage) || errors.Is(err, flag.ErrHelp) {
			os.Exit(2)
		}
		log.Fatal(err)
	}
}

type command struct {
	name  string
	usage string
	run   func(args []string, out io.Writer) error
}

func commands() []command {
	return []command{
		{"version", "print the version", runVersion},
		{"summary", "print the architecture and parameter count", runSummary},
		{"forward", "run a random batch through the model", runForward},
		{"penalty", "print the orthogonality penalty", runPenalty},
		{"orthogonalize", "decorrelate the paths with SGD on the penalty", runOrthogonalize},
		{"init", "write a freshly initialized checkpoint", runInit},
		{"serve", "serve the model over HTTP", runServe},
	}
}

func run(args []string, out io.Writer) error {
	if len(args) == 0 {
		printUsage(out)
		return errUsage
	}
	for _, cmd := range commands() {
		if cmd.name == args[0] {
			return cmd.run(args[1:], out)
		}
	}
	printUsage(out)
	return fmt.Errorf("%w: unknown command %q", errUsage, args[0])
}

func printUsage(out io.Writer) {
	fmt.Fprintf(out, "orthopath %s - multi-path CIFAR ResNet\n\n", version)
	fmt.Fprintln(out, "Commands:")
	for _, cmd := range commands() {
		fmt.Fprintf(out, "  %-14s %s\n", cmd.name, cmd.usage)
	}
}

func runVersion(_ []string, out io.Writer) error {
	_, err := fmt.Fprintf(out, "orthopath %s\n", version)
	return err
}
