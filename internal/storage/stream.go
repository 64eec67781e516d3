package storage

import (
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/blobdock/blobdock/internal/storeerr"
)

// streamChunks reads the object at key in fixed-size byte ranges, invoking
// fn once per range in strictly increasing offset order until the object's
// content length is exhausted. At most one chunk is held in memory at a
// time, regardless of object size. Returns the number of bytes streamed.
//
// One ranged GET is in flight at a time; ordering and bounded memory are
// traded for throughput here, callers that need parallel fetches own that
// concern.
func (s *Service) streamChunks(ctx context.Context, key string, chunkSize int64, fn func([]byte) error) (int64, error) {
	head, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return 0, &storeerr.NotFoundError{Key: key}
		}
		return 0, fmt.Errorf("probing %s before streaming: %w", key, err)
	}

	total := aws.ToInt64(head.ContentLength)
	var streamed int64
	for offset := int64(0); offset < total; offset += chunkSize {
		end := offset + chunkSize - 1
		if end > total-1 {
			end = total - 1
		}
		chunk, err := s.getRange(ctx, key, offset, end)
		if err != nil {
			return streamed, err
		}
		streamed += int64(len(chunk))
		if err := fn(chunk); err != nil {
			return streamed, err
		}
	}
	return streamed, nil
}

// getRange fetches the inclusive byte range [begin, end] of the object.
func (s *Service) getRange(ctx context.Context, key string, begin, end int64) ([]byte, error) {
	resp, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Range:  aws.String(fmt.Sprintf("bytes=%d-%d", begin, end)),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, &storeerr.NotFoundError{Key: key}
		}
		return nil, fmt.Errorf("getting range %d-%d of %s: %w", begin, end, key, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading range %d-%d of %s: %w", begin, end, key, err)
	}
	return data, nil
}
