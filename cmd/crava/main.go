// Command crava runs a Bayesian inversion of angle-stack seismic for the
// elastic parameters Vp, Vs and density, driven by a JSON settings file.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os/signal"
	"strings"
	"syscall"

	"github.com/banshee-data/crava/internal/config"
	"github.com/banshee-data/crava/internal/version"
)

func main() {
	configPath := flag.String("config", config.DefaultConfigPath, "Path to the JSON settings file")
	outDir := flag.String("out", "", "Output directory (overrides output_dir)")
	dbPath := flag.String("db", "", "Run database path (overrides run_db)")
	seismic := flag.String("seismic", "", "Comma-separated Storm files, one per stack (overrides the stack seismic paths)")
	synthetic := flag.Bool("synthetic", false, "Forward-model a synthetic test volume instead of reading seismic")
	generateOnly := flag.Bool("generate-seismic", false, "Forward-model the synthetic stacks, write them and exit without inverting")
	showVersion := flag.Bool("version", false, "Print the build version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}

	opts := options{
		configPath: *configPath,
		outDir:     *outDir,
		dbPath:     *dbPath,
		synthetic:  *synthetic,

		generateOnly: *generateOnly,
	}
	if *seismic != "" {
		opts.seismic = strings.Split(*seismic, ",")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, opts); err != nil {
		log.Fatalf("crava: %v", err)
	}
}
