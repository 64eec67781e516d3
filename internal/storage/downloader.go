package storage

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/blobdock/blobdock/internal/storeerr"
)

// Downloader fetches a remote object into a scoped temporary local copy,
// verifies its checksum, and hands the open file to a caller callback. The
// temporary file is removed on every exit path: success, verification
// failure, an error from the callback, even a panic inside it. Callers
// never observe a partially written or unverified copy.
type Downloader struct {
	service *Service
}

// NewDownloader creates a Downloader backed by the given adapter.
func NewDownloader(service *Service) *Downloader {
	return &Downloader{service: service}
}

// OpenOptions controls verification for one Open call.
type OpenOptions struct {
	// Checksum is the expected digest in wire encoding. Empty skips
	// verification.
	Checksum string
	// Algorithm overrides the adapter's default digest algorithm.
	Algorithm ChecksumAlgorithm
	// SkipVerification downloads without checking the digest even when a
	// checksum is supplied.
	SkipVerification bool
}

// Open streams the object at key into a temporary file, verifies its digest
// against opts.Checksum, and invokes use with the file positioned at the
// start. A mismatch returns an IntegrityError without ever invoking use.
func (d *Downloader) Open(ctx context.Context, key string, opts OpenOptions, use func(*os.File) error) (err error) {
	alg := opts.Algorithm
	if alg == "" {
		alg = d.service.defaultAlgorithm
	}
	if err := alg.Validate(); err != nil {
		return err
	}

	tmp, err := os.CreateTemp("", "blobdock-*")
	if err != nil {
		return fmt.Errorf("creating scoped local copy for %s: %w", key, err)
	}
	defer func() {
		tmp.Close()
		if rmErr := os.Remove(tmp.Name()); rmErr != nil && err == nil {
			err = fmt.Errorf("removing scoped local copy of %s: %w", key, rmErr)
		}
	}()

	if err := d.service.DownloadChunked(ctx, key, func(chunk []byte) error {
		_, werr := tmp.Write(chunk)
		return werr
	}); err != nil {
		return err
	}
	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("rewinding scoped local copy of %s: %w", key, err)
	}

	if opts.Checksum != "" && !opts.SkipVerification {
		actual, err := ComputeChecksum(tmp, alg)
		if err != nil {
			return fmt.Errorf("computing digest of %s: %w", key, err)
		}
		if actual != opts.Checksum {
			return &storeerr.IntegrityError{Key: key, Expected: opts.Checksum, Actual: actual}
		}
		if _, err := tmp.Seek(0, io.SeekStart); err != nil {
			return fmt.Errorf("rewinding scoped local copy of %s: %w", key, err)
		}
	}

	return use(tmp)
}
