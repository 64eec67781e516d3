// Package main is the entry point for blobdock-verify, the bulk integrity
// checking tool. It downloads each object into a scoped local copy, recomputes
// its digest, and reports mismatches.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/blobdock/blobdock/internal/config"
	"github.com/blobdock/blobdock/internal/events"
	"github.com/blobdock/blobdock/internal/logging"
	"github.com/blobdock/blobdock/internal/metrics"
	"github.com/blobdock/blobdock/internal/storage"
	"github.com/blobdock/blobdock/internal/storeerr"
)

func main() {
	fs := flag.NewFlagSet("blobdock-verify", flag.ExitOnError)
	configPath := fs.String("config", "blobdock.yaml", "Config file path")
	algorithm := fs.String("algorithm", "", "Digest algorithm override (default: from config)")
	manifest := fs.String("manifest", "", "Manifest file of '<digest> <key>' lines to verify (- for stdin)")
	metricsAddr := fs.String("metrics-addr", "", "Serve Prometheus metrics on this address while running")
	logLevel := fs.String("log-level", "", "Log level: debug, info, warn, error (default: from config)")
	fs.Parse(os.Args[1:])

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}
	logging.Setup(cfg.Logging.Level, cfg.Logging.Format, os.Stderr)

	var recorder events.Recorder = events.Log{}
	if *metricsAddr != "" {
		metrics.Register()
		recorder = events.Multi{events.Log{}, events.Prom{}}
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		go func() {
			if err := http.ListenAndServe(*metricsAddr, mux); err != nil {
				fmt.Fprintf(os.Stderr, "Error serving metrics: %v\n", err)
			}
		}()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	svc, err := storage.New(ctx, &cfg.Store, recorder)
	cancel()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	var alg storage.ChecksumAlgorithm
	if *algorithm != "" {
		alg, err = storage.ParseChecksumAlgorithm(*algorithm)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	} else {
		alg = svc.DefaultChecksumAlgorithm()
	}

	if *manifest != "" {
		os.Exit(runManifest(svc, *manifest, alg))
	}
	if fs.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "Usage: blobdock-verify [flags] <key>...\n       blobdock-verify [flags] -manifest <file>")
		os.Exit(1)
	}
	os.Exit(runDigest(svc, fs.Args(), alg))
}

// runDigest prints '<digest> <key>' for each key, in a format runManifest
// accepts back.
func runDigest(svc *storage.Service, keys []string, alg storage.ChecksumAlgorithm) int {
	dl := storage.NewDownloader(svc)
	rc := 0
	for _, key := range keys {
		var digest string
		err := dl.Open(context.Background(), key, storage.OpenOptions{Algorithm: alg}, func(f *os.File) error {
			var derr error
			digest, derr = storage.ComputeChecksum(f, alg)
			return derr
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error digesting %s: %v\n", key, err)
			rc = 1
			continue
		}
		fmt.Printf("%s %s\n", digest, key)
	}
	return rc
}

// runManifest verifies every '<digest> <key>' line of the manifest against
// the remote objects.
func runManifest(svc *storage.Service, path string, alg storage.ChecksumAlgorithm) int {
	var in *os.File
	if path == "-" {
		in = os.Stdin
	} else {
		f, err := os.Open(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error opening manifest: %v\n", err)
			return 1
		}
		defer f.Close()
		in = f
	}

	dl := storage.NewDownloader(svc)
	var verified, failed, missing int

	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		digest, key, ok := strings.Cut(line, " ")
		if !ok {
			fmt.Fprintf(os.Stderr, "Skipping malformed line: %q\n", line)
			continue
		}
		key = strings.TrimSpace(key)

		err := dl.Open(context.Background(), key, storage.OpenOptions{Checksum: digest, Algorithm: alg}, func(*os.File) error {
			return nil
		})
		switch {
		case err == nil:
			verified++
		case storeerr.IsIntegrity(err):
			failed++
			fmt.Fprintf(os.Stderr, "FAILED %s: %v\n", key, err)
		case storeerr.IsNotFound(err):
			missing++
			fmt.Fprintf(os.Stderr, "MISSING %s\n", key)
		default:
			fmt.Fprintf(os.Stderr, "Error verifying %s: %v\n", key, err)
			return 1
		}
	}
	if err := scanner.Err(); err != nil {
		fmt.Fprintf(os.Stderr, "Error reading manifest: %v\n", err)
		return 1
	}

	fmt.Fprintf(os.Stderr, "%d verified, %d failed, %d missing\n", verified, failed, missing)
	if failed > 0 || missing > 0 {
		return 1
	}
	return 0
}
