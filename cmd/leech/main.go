// Command leech downloads a single torrent to disk. It is the CLI entry
// point for the driver/session/piece/tracker stack: a positional .torrent
// path, a verbose flag, and SIGINT/SIGTERM handling for a clean shutdown.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"torrentleech/internal/driver"
	"torrentleech/internal/metainfo"
	"torrentleech/internal/progressui"
)

func main() {
	verbose := flag.Bool("v", false, "enable verbose logging")
	outputDir := flag.String("o", ".", "directory to write the downloaded file into")
	sessions := flag.Int("peers", driver.DefaultSessions, "maximum number of concurrent peer connections")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [flags] <path-to-torrent-file>\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	if !*verbose {
		log.SetOutput(discard{})
	}

	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}

	if err := run(flag.Arg(0), *outputDir, *sessions); err != nil {
		log.SetOutput(os.Stderr)
		log.Fatalf("leech: %v", err)
	}
}

func run(torrentPath, outputDir string, sessions int) error {
	info, err := metainfo.Load(torrentPath)
	if err != nil {
		return fmt.Errorf("loading torrent: %w", err)
	}

	outputPath := filepath.Join(outputDir, sanitizeFileName(info.FileName()))

	cfg := driver.DefaultConfig()
	if sessions > 0 {
		cfg.Sessions = sessions
	}

	d, err := driver.New(info, outputPath, cfg)
	if err != nil {
		return fmt.Errorf("initializing download: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigs
		fmt.Fprintln(os.Stderr, "\nexiting, please wait until everything is shut down...")
		d.Stop()
		cancel()
	}()

	reporter := progressui.New(info.FileName(), info.TotalSize())
	go reporter.Watch(ctx, d.Manager())

	if err := d.Run(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("download failed: %w", err)
	}

	return nil
}

// sanitizeFileName strips any path separators a hostile .torrent could put
// in its name field, since it's used directly to build an output path.
func sanitizeFileName(name string) string {
	name = strings.ReplaceAll(name, "/", "_")
	name = strings.ReplaceAll(name, string(os.PathSeparator), "_")
	if name == "" || name == "." || name == ".." {
		return "download.bin"
	}
	return name
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }
