// Package main is the entry point for the blobdock command line client,
// a thin shell around the object-storage adapter.
package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/blobdock/blobdock/internal/config"
	"github.com/blobdock/blobdock/internal/events"
	"github.com/blobdock/blobdock/internal/logging"
	"github.com/blobdock/blobdock/internal/storage"
)

const usage = `Usage: blobdock <command> [flags]

Commands:
  upload         upload a local file or stdin to a key
  download       download a key to a local file or stdout
  delete         delete a key (idempotent)
  delete-prefix  delete every key under a prefix
  exists         report whether a key exists
  url            issue a download URL for a key
  direct-upload  issue a presigned direct-upload URL and its headers
  compose        concatenate source keys into a destination key
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}

	var rc int
	switch command := os.Args[1]; command {
	case "upload":
		rc = runUpload(os.Args[2:])
	case "download":
		rc = runDownload(os.Args[2:])
	case "delete":
		rc = runDelete(os.Args[2:])
	case "delete-prefix":
		rc = runDeletePrefix(os.Args[2:])
	case "exists":
		rc = runExists(os.Args[2:])
	case "url":
		rc = runURL(os.Args[2:])
	case "direct-upload":
		rc = runDirectUpload(os.Args[2:])
	case "compose":
		rc = runCompose(os.Args[2:])
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n%s", command, usage)
		rc = 1
	}
	os.Exit(rc)
}

// newService loads configuration, sets up logging, and builds the adapter.
// Shared flag plumbing for every subcommand.
func newService(fs *flag.FlagSet, args []string) (*storage.Service, []string, error) {
	configPath := fs.String("config", "blobdock.yaml", "Config file path")
	logLevel := fs.String("log-level", "", "Log level: debug, info, warn, error (default: from config)")
	fs.Parse(args)

	cfg, err := config.Load(*configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("loading config: %w", err)
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}
	logging.Setup(cfg.Logging.Level, cfg.Logging.Format, os.Stderr)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	svc, err := storage.New(ctx, &cfg.Store, events.Log{})
	if err != nil {
		return nil, nil, err
	}
	return svc, fs.Args(), nil
}

func fail(err error) int {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	return 1
}

func runUpload(args []string) int {
	fs := flag.NewFlagSet("upload", flag.ExitOnError)
	file := fs.String("file", "-", "Local file to upload (- for stdin)")
	contentType := fs.String("content-type", "", "Content type stored with the object")
	filename := fs.String("filename", "", "Filename for the stored Content-Disposition")
	disposition := fs.String("disposition", "", "Disposition type: inline or attachment")
	checksum := fs.Bool("checksum", false, "Compute and send the configured digest")

	svc, rest, err := newService(fs, args)
	if err != nil {
		return fail(err)
	}
	if len(rest) != 1 {
		fmt.Fprintln(os.Stderr, "Usage: blobdock upload [flags] <key>")
		return 1
	}
	key := rest[0]

	var data []byte
	if *file == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(*file)
	}
	if err != nil {
		return fail(fmt.Errorf("reading payload: %w", err))
	}

	opts := storage.UploadOptions{
		ContentType: *contentType,
		Filename:    *filename,
		Disposition: *disposition,
	}
	if *checksum {
		digest, err := storage.ComputeChecksum(bytes.NewReader(data), svc.DefaultChecksumAlgorithm())
		if err != nil {
			return fail(err)
		}
		opts.Checksum = digest
	}

	ctx := context.Background()
	if err := svc.Upload(ctx, key, bytes.NewReader(data), int64(len(data)), opts); err != nil {
		return fail(err)
	}
	fmt.Fprintf(os.Stderr, "Uploaded %s (%s)\n", key, humanize.IBytes(uint64(len(data))))
	return 0
}

func runDownload(args []string) int {
	fs := flag.NewFlagSet("download", flag.ExitOnError)
	output := fs.String("output", "-", "Output file path (- for stdout)")

	svc, rest, err := newService(fs, args)
	if err != nil {
		return fail(err)
	}
	if len(rest) != 1 {
		fmt.Fprintln(os.Stderr, "Usage: blobdock download [flags] <key>")
		return 1
	}
	key := rest[0]

	var out io.Writer = os.Stdout
	if *output != "-" {
		f, err := os.Create(*output)
		if err != nil {
			return fail(err)
		}
		defer f.Close()
		out = f
	}

	// Stream chunk by chunk so arbitrarily large objects fit in memory.
	var total int64
	err = svc.DownloadChunked(context.Background(), key, func(chunk []byte) error {
		n, werr := out.Write(chunk)
		total += int64(n)
		return werr
	})
	if err != nil {
		return fail(err)
	}
	fmt.Fprintf(os.Stderr, "Downloaded %s (%s)\n", key, humanize.IBytes(uint64(total)))
	return 0
}

func runDelete(args []string) int {
	fs := flag.NewFlagSet("delete", flag.ExitOnError)
	svc, rest, err := newService(fs, args)
	if err != nil {
		return fail(err)
	}
	if len(rest) != 1 {
		fmt.Fprintln(os.Stderr, "Usage: blobdock delete [flags] <key>")
		return 1
	}
	if err := svc.Delete(context.Background(), rest[0]); err != nil {
		return fail(err)
	}
	fmt.Fprintf(os.Stderr, "Deleted %s\n", rest[0])
	return 0
}

func runDeletePrefix(args []string) int {
	fs := flag.NewFlagSet("delete-prefix", flag.ExitOnError)
	svc, rest, err := newService(fs, args)
	if err != nil {
		return fail(err)
	}
	if len(rest) != 1 {
		fmt.Fprintln(os.Stderr, "Usage: blobdock delete-prefix [flags] <prefix>")
		return 1
	}
	if err := svc.DeletePrefixed(context.Background(), rest[0]); err != nil {
		return fail(err)
	}
	fmt.Fprintf(os.Stderr, "Deleted objects under %s\n", rest[0])
	return 0
}

func runExists(args []string) int {
	fs := flag.NewFlagSet("exists", flag.ExitOnError)
	svc, rest, err := newService(fs, args)
	if err != nil {
		return fail(err)
	}
	if len(rest) != 1 {
		fmt.Fprintln(os.Stderr, "Usage: blobdock exists [flags] <key>")
		return 1
	}
	ok, err := svc.Exists(context.Background(), rest[0])
	if err != nil {
		return fail(err)
	}
	fmt.Println(ok)
	if !ok {
		return 2
	}
	return 0
}

func runURL(args []string) int {
	fs := flag.NewFlagSet("url", flag.ExitOnError)
	expires := fs.Duration("expires", 5*time.Minute, "URL validity window")
	filename := fs.String("filename", "", "Filename for the response Content-Disposition")
	disposition := fs.String("disposition", "", "Disposition type: inline or attachment")
	contentType := fs.String("content-type", "", "Content type override for the response")

	svc, rest, err := newService(fs, args)
	if err != nil {
		return fail(err)
	}
	if len(rest) != 1 {
		fmt.Fprintln(os.Stderr, "Usage: blobdock url [flags] <key>")
		return 1
	}

	signed, err := svc.URL(context.Background(), rest[0], *expires, storage.URLOptions{
		Filename:    *filename,
		Disposition: *disposition,
		ContentType: *contentType,
	})
	if err != nil {
		return fail(err)
	}
	fmt.Println(signed)
	return 0
}

func runDirectUpload(args []string) int {
	fs := flag.NewFlagSet("direct-upload", flag.ExitOnError)
	expires := fs.Duration("expires", 5*time.Minute, "URL validity window")
	contentType := fs.String("content-type", "", "Content type the direct PUT must carry")
	contentLength := fs.Int64("content-length", 0, "Exact byte length the direct PUT must carry")
	checksum := fs.String("checksum", "", "Expected digest in wire encoding")
	algorithm := fs.String("algorithm", "", "Digest algorithm override (default: from config)")

	svc, rest, err := newService(fs, args)
	if err != nil {
		return fail(err)
	}
	if len(rest) != 1 {
		fmt.Fprintln(os.Stderr, "Usage: blobdock direct-upload [flags] <key>")
		return 1
	}
	key := rest[0]

	opts := storage.DirectUploadOptions{
		ContentType:   *contentType,
		ContentLength: *contentLength,
		Checksum:      *checksum,
	}
	if *algorithm != "" {
		alg, err := storage.ParseChecksumAlgorithm(*algorithm)
		if err != nil {
			return fail(err)
		}
		opts.ChecksumAlgorithm = alg
	}

	signed, err := svc.URLForDirectUpload(context.Background(), key, *expires, opts)
	if err != nil {
		return fail(err)
	}
	headers, err := svc.HeadersForDirectUpload(key, opts)
	if err != nil {
		return fail(err)
	}

	fmt.Println(signed)
	for name, value := range headers {
		fmt.Printf("%s: %s\n", name, value)
	}
	return 0
}

func runCompose(args []string) int {
	fs := flag.NewFlagSet("compose", flag.ExitOnError)
	contentType := fs.String("content-type", "", "Content type stored with the destination")

	svc, rest, err := newService(fs, args)
	if err != nil {
		return fail(err)
	}
	if len(rest) < 2 {
		fmt.Fprintln(os.Stderr, "Usage: blobdock compose [flags] <source>... <destination>")
		return 1
	}
	sources, dest := rest[:len(rest)-1], rest[len(rest)-1]

	err = svc.Compose(context.Background(), sources, dest, storage.ComposeOptions{
		ContentType: *contentType,
	})
	if err != nil {
		return fail(err)
	}
	fmt.Fprintf(os.Stderr, "Composed %s from %s\n", dest, strings.Join(sources, ", "))
	return 0
}
