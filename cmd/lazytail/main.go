// Command lazytail implements spec.md §6's capture CLI contract:
// `lazytail -n <NAME>` reads stdin, appends each line to a named log, echoes
// it to stdout, and holds a liveness marker until SIGINT/SIGTERM/EOF. The
// interactive viewer itself lives outside this core (spec.md §1 Non-goals).
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/lazytail-go/lazytail/internal/config"
	"github.com/lazytail-go/lazytail/pkg/capture"
)

func main() {
	var name string
	var projectDir string
	flag.StringVar(&name, "n", "", "name of the captured source")
	flag.StringVar(&projectDir, "dir", ".", "directory to search for a project lazytail.yaml")
	flag.Parse()

	logger := logrus.New()
	logger.SetOutput(os.Stderr)

	if name == "" {
		fmt.Fprintln(os.Stderr, "lazytail: -n <NAME> is required")
		os.Exit(1)
	}

	roots, err := config.Discover(projectDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "lazytail: resolving data roots: %v\n", err)
		os.Exit(1)
	}

	tee, err := capture.New(name, roots, os.Stdin, os.Stdout, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "lazytail: %v\n", err)
		os.Exit(1)
	}

	if err := tee.Run(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "lazytail: %v\n", err)
		os.Exit(1)
	}
}
