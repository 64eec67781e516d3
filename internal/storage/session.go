package storage

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// uploadSession streams a payload into the remote store as a multipart
// upload. It buffers exactly one part: every Write appends to the current
// part buffer and ships it when it reaches the part size, so memory use is
// bounded by partSize. Close flushes the final (possibly short) part and
// completes the upload; any failure aborts the upload server-side.
//
// A session is owned by a single goroutine; it is not safe for concurrent
// writes.
type uploadSession struct {
	ctx      context.Context
	client   S3API
	logger   *slog.Logger
	bucket   string
	key      string
	uploadID string
	partSize int64
	buf      []byte
	parts    []types.CompletedPart
	partNum  int32
	aborted  bool
}

// openUploadSession starts a multipart upload to key with the given part
// size. shape, when non-nil, mutates the create request to carry content
// type, disposition, metadata, ACL, and the configured upload options.
func (s *Service) openUploadSession(ctx context.Context, key string, partSize int64, shape func(*s3.CreateMultipartUploadInput)) (*uploadSession, error) {
	in := &s3.CreateMultipartUploadInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}
	if shape != nil {
		shape(in)
	}

	resp, err := s.client.CreateMultipartUpload(ctx, in)
	if err != nil {
		return nil, fmt.Errorf("creating multipart upload for %s: %w", key, err)
	}

	return &uploadSession{
		ctx:      ctx,
		client:   s.client,
		logger:   s.logger,
		bucket:   s.bucket,
		key:      key,
		uploadID: aws.ToString(resp.UploadId),
		partSize: partSize,
		buf:      make([]byte, 0, partSize),
	}, nil
}

// Write implements io.Writer. Full parts are shipped as they fill.
func (u *uploadSession) Write(p []byte) (int, error) {
	written := len(p)
	for len(p) > 0 {
		room := int(u.partSize) - len(u.buf)
		if room > len(p) {
			room = len(p)
		}
		u.buf = append(u.buf, p[:room]...)
		p = p[room:]
		if int64(len(u.buf)) == u.partSize {
			if err := u.flushPart(); err != nil {
				return 0, err
			}
		}
	}
	return written, nil
}

// flushPart uploads the buffered bytes as the next part. On failure the
// whole upload is aborted.
func (u *uploadSession) flushPart() error {
	if len(u.buf) == 0 {
		return nil
	}
	u.partNum++
	resp, err := u.client.UploadPart(u.ctx, &s3.UploadPartInput{
		Bucket:        aws.String(u.bucket),
		Key:           aws.String(u.key),
		UploadId:      aws.String(u.uploadID),
		PartNumber:    aws.Int32(u.partNum),
		Body:          bytes.NewReader(u.buf),
		ContentLength: aws.Int64(int64(len(u.buf))),
	})
	if err != nil {
		u.abort()
		return fmt.Errorf("uploading part %d of %s: %w", u.partNum, u.key, err)
	}
	u.parts = append(u.parts, types.CompletedPart{
		ETag:       resp.ETag,
		PartNumber: aws.Int32(u.partNum),
	})
	u.buf = u.buf[:0]
	return nil
}

// Close flushes the final part and completes the multipart upload. Closing
// an already-aborted session is a no-op. Implements io.Closer.
func (u *uploadSession) Close() error {
	if u.aborted {
		return nil
	}
	if err := u.flushPart(); err != nil {
		return err
	}

	// A multipart upload must complete with at least one part, so an
	// empty payload ships one zero-byte part.
	if len(u.parts) == 0 {
		u.partNum++
		resp, err := u.client.UploadPart(u.ctx, &s3.UploadPartInput{
			Bucket:        aws.String(u.bucket),
			Key:           aws.String(u.key),
			UploadId:      aws.String(u.uploadID),
			PartNumber:    aws.Int32(u.partNum),
			Body:          bytes.NewReader(nil),
			ContentLength: aws.Int64(0),
		})
		if err != nil {
			u.abort()
			return fmt.Errorf("uploading empty part of %s: %w", u.key, err)
		}
		u.parts = append(u.parts, types.CompletedPart{
			ETag:       resp.ETag,
			PartNumber: aws.Int32(u.partNum),
		})
	}

	_, err := u.client.CompleteMultipartUpload(u.ctx, &s3.CompleteMultipartUploadInput{
		Bucket:   aws.String(u.bucket),
		Key:      aws.String(u.key),
		UploadId: aws.String(u.uploadID),
		MultipartUpload: &types.CompletedMultipartUpload{
			Parts: u.parts,
		},
	})
	if err != nil {
		u.abort()
		return fmt.Errorf("completing multipart upload of %s: %w", u.key, err)
	}
	return nil
}

// abort cancels the upload server-side so abandoned parts don't accumulate.
func (u *uploadSession) abort() {
	if u.aborted {
		return
	}
	u.aborted = true
	_, err := u.client.AbortMultipartUpload(u.ctx, &s3.AbortMultipartUploadInput{
		Bucket:   aws.String(u.bucket),
		Key:      aws.String(u.key),
		UploadId: aws.String(u.uploadID),
	})
	if err != nil {
		u.logger.Warn("failed to abort multipart upload", "key", u.key, "upload_id", u.uploadID, "error", err)
	}
}
