package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/bytedance/sonic"

	"github.com/jsload/jsload"
	"github.com/jsload/jsload/internal/infrastructure/config"
	"github.com/jsload/jsload/internal/infrastructure/logging"
)

func main() {
	cfg := config.LoadOrDefault()

	subPath := flag.String("sub", "", "Package subpath to load")
	async := flag.Bool("async", cfg.Engine.Async, "Run execution units asynchronously")
	sources := flag.Bool("sources", false, "List touched source files")
	timeout := flag.Duration("timeout", cfg.Engine.Timeout, "Execution timeout (0 = none)")
	logLevel := flag.String("log-level", cfg.Logging.Level, "Log level")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: jsload [flags] <module>")
		flag.PrintDefaults()
		os.Exit(2)
	}
	entry := flag.Arg(0)

	logger, err := logging.New(*logLevel, cfg.Logging.Development)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	res, err := jsload.LoadModule(entry, jsload.Options{
		Async:             *async,
		SubPath:           *subPath,
		ReturnSourceFiles: *sources,
		Timeout:           *timeout,
		Logger:            logger,
	})
	if err != nil {
		log.Fatalf("Load failed: %v", err)
	}

	out, err := sonic.MarshalIndent(res.Exports.Export(), "", "  ")
	if err != nil {
		log.Fatalf("Failed to encode exports: %v", err)
	}
	fmt.Println(string(out))

	if *sources {
		fmt.Fprintln(os.Stderr, "source files:")
		for _, f := range res.SourceFiles {
			fmt.Fprintf(os.Stderr, "  %s\n", f)
		}
	}
	logger.Debug("load finished")
}
