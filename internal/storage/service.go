package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/blobdock/blobdock/internal/config"
	"github.com/blobdock/blobdock/internal/events"
	"github.com/blobdock/blobdock/internal/logging"
	"github.com/blobdock/blobdock/internal/storeerr"
)

// Service is the public-facing object-storage adapter. It composes the
// upload planner, checksum negotiator, and chunked streamer over an
// S3-compatible remote store to implement upload, download, delete,
// existence checks, composition, and URL issuance.
//
// A Service holds no mutable state across calls; every operation is an
// independent request/response exchange and is safe to invoke concurrently
// for distinct keys. Concurrent writers to the same key race at the
// backend's last-write-wins semantics.
type Service struct {
	client    S3API
	presigner PresignAPI
	recorder  events.Recorder
	logger    *slog.Logger

	bucket             string
	region             string
	endpoint           string
	pathStyle          bool
	public             bool
	defaultAlgorithm   ChecksumAlgorithm
	multipartThreshold int64
	upload             config.UploadConfig
}

// UploadOptions enumerates the recognized per-upload options. The zero
// value uploads with no checksum, default content type, and no metadata.
type UploadOptions struct {
	// Checksum is the expected digest of the payload in the default
	// algorithm's wire encoding. The adapter forwards it; the backend
	// rejects the upload on mismatch.
	Checksum string
	// ContentType is the MIME type stored with the object.
	ContentType string
	// Filename, when set, is carried in the stored Content-Disposition.
	Filename string
	// Disposition is "inline" or "attachment"; defaults to inline when a
	// filename is given.
	Disposition string
	// CustomMetadata is attached to the object as backend metadata.
	CustomMetadata map[string]string
}

// ComposeOptions enumerates the recognized per-compose options for the
// destination object.
type ComposeOptions struct {
	ContentType    string
	Filename       string
	Disposition    string
	CustomMetadata map[string]string
}

// DirectUploadOptions enumerates the constraints baked into a direct-upload
// URL and the matching client headers.
type DirectUploadOptions struct {
	ContentType   string
	ContentLength int64
	// Checksum is the expected digest the direct PUT must carry.
	Checksum string
	// ChecksumAlgorithm overrides the adapter default for this URL.
	// Validated against the supported set before use.
	ChecksumAlgorithm ChecksumAlgorithm
	Filename          string
	Disposition       string
	CustomMetadata    map[string]string
}

// URLOptions enumerates the recognized options for download URL issuance.
type URLOptions struct {
	// Filename and Disposition override the Content-Disposition of the
	// response the URL will serve.
	Filename    string
	Disposition string
	// ContentType overrides the Content-Type of the response.
	ContentType string
}

// New creates a Service from configuration, building the AWS client and
// presigner, eagerly validating the configured default checksum algorithm,
// and verifying the bucket is reachable.
func New(ctx context.Context, cfg *config.StoreConfig, rec events.Recorder) (*Service, error) {
	client, err := newS3Client(ctx, cfg)
	if err != nil {
		return nil, err
	}

	svc, err := NewWithClient(cfg, client, s3.NewPresignClient(client), rec)
	if err != nil {
		return nil, err
	}

	// Verify the bucket is accessible before handing the adapter out.
	if _, err := client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(cfg.Bucket)}); err != nil {
		return nil, fmt.Errorf("cannot access bucket %q: %w", cfg.Bucket, err)
	}

	svc.logger.Info("object storage adapter initialized",
		"bucket", cfg.Bucket, "region", cfg.Region,
		"checksum_algorithm", svc.defaultAlgorithm,
		"multipart_threshold", svc.multipartThreshold,
		"public", cfg.Public)
	return svc, nil
}

// NewWithClient creates a Service with pre-configured clients. This is
// primarily used for testing with mocks.
func NewWithClient(cfg *config.StoreConfig, client S3API, presigner PresignAPI, rec events.Recorder) (*Service, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket name cannot be empty")
	}

	alg, err := ParseChecksumAlgorithm(cfg.ChecksumAlgorithm)
	if err != nil {
		return nil, err
	}

	threshold := cfg.MultipartThreshold
	if threshold <= 0 {
		threshold = DefaultMultipartThreshold
	}
	if rec == nil {
		rec = events.Nop{}
	}

	return &Service{
		client:             client,
		presigner:          presigner,
		recorder:           rec,
		logger:             logging.Component("storage").With("bucket", cfg.Bucket),
		bucket:             cfg.Bucket,
		region:             cfg.Region,
		endpoint:           cfg.Endpoint,
		pathStyle:          cfg.ForcePathStyle,
		public:             cfg.Public,
		defaultAlgorithm:   alg,
		multipartThreshold: threshold,
		upload:             cfg.Upload,
	}, nil
}

// Upload stores the payload at key, choosing single-shot or multipart
// according to the payload size. size must be the exact byte length of
// data. A backend digest rejection surfaces as an IntegrityError; the
// object at key is created or overwritten on success.
func (s *Service) Upload(ctx context.Context, key string, data io.Reader, size int64, opts UploadOptions) (err error) {
	start := time.Now()
	plan := planUpload(size, s.multipartThreshold, MinUploadPartSize, MaxUploadParts)
	defer func() {
		s.recorder.Record(events.Event{
			Operation: events.OpUpload,
			Key:       key,
			Bytes:     size,
			Multipart: plan.Strategy == strategyMultipart,
			Duration:  time.Since(start),
			Err:       err,
		})
	}()

	if plan.Strategy == strategySingle {
		return s.uploadSingle(ctx, key, data, size, opts)
	}
	return s.uploadMultipart(ctx, key, data, plan.PartSize, opts)
}

// uploadSingle issues one put carrying checksum parameters, content type,
// disposition, and metadata.
func (s *Service) uploadSingle(ctx context.Context, key string, data io.Reader, size int64, opts UploadOptions) error {
	in := &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          data,
		ContentLength: aws.Int64(size),
	}
	s.shapePut(in, opts.ContentType, opts.Filename, opts.Disposition, opts.CustomMetadata)
	applyChecksumToPut(in, opts.Checksum, s.defaultAlgorithm)

	if _, err := s.client.PutObject(ctx, in); err != nil {
		if isDigestRejection(err) {
			return &storeerr.IntegrityError{Key: key, Expected: opts.Checksum, Cause: err}
		}
		return fmt.Errorf("uploading %s: %w", key, err)
	}
	return nil
}

// uploadMultipart copies the payload into a streaming upload session with
// the planned part size.
func (s *Service) uploadMultipart(ctx context.Context, key string, data io.Reader, partSize int64, opts UploadOptions) error {
	sess, err := s.openUploadSession(ctx, key, partSize, func(in *s3.CreateMultipartUploadInput) {
		s.shapeCreate(in, opts.ContentType, opts.Filename, opts.Disposition, opts.CustomMetadata)
	})
	if err != nil {
		return err
	}
	if _, err := io.Copy(sess, data); err != nil {
		sess.abort()
		return fmt.Errorf("copying payload into multipart upload of %s: %w", key, err)
	}
	return sess.Close()
}

// Download fetches the entire object at key in one request and returns the
// raw bytes. Returns a NotFoundError if the key is absent.
func (s *Service) Download(ctx context.Context, key string) (data []byte, err error) {
	start := time.Now()
	defer func() {
		s.recorder.Record(events.Event{
			Operation: events.OpDownload,
			Key:       key,
			Bytes:     int64(len(data)),
			Duration:  time.Since(start),
			Err:       err,
		})
	}()

	resp, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, &storeerr.NotFoundError{Key: key}
		}
		return nil, fmt.Errorf("downloading %s: %w", key, err)
	}
	defer resp.Body.Close()

	data, err = io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading body of %s: %w", key, err)
	}
	return data, nil
}

// DownloadChunked streams the object at key to fn in fixed-size chunks of
// DefaultChunkSize, in strictly increasing offset order. Returns a
// NotFoundError if the key is absent.
func (s *Service) DownloadChunked(ctx context.Context, key string, fn func([]byte) error) (err error) {
	start := time.Now()
	var streamed int64
	defer func() {
		s.recorder.Record(events.Event{
			Operation: events.OpStreamingDownload,
			Key:       key,
			Bytes:     streamed,
			Duration:  time.Since(start),
			Err:       err,
		})
	}()

	streamed, err = s.streamChunks(ctx, key, DefaultChunkSize, fn)
	return err
}

// DownloadChunk fetches exactly the bytes [offset, offset+length) of the
// object at key. Returns a NotFoundError if the key is absent.
func (s *Service) DownloadChunk(ctx context.Context, key string, offset, length int64) (data []byte, err error) {
	start := time.Now()
	defer func() {
		s.recorder.Record(events.Event{
			Operation: events.OpDownloadChunk,
			Key:       key,
			Bytes:     int64(len(data)),
			Duration:  time.Since(start),
			Err:       err,
		})
	}()

	if length <= 0 {
		return nil, nil
	}
	return s.getRange(ctx, key, offset, offset+length-1)
}

// Delete removes the object at key. Idempotent: deleting an absent key is
// not an error.
func (s *Service) Delete(ctx context.Context, key string) (err error) {
	start := time.Now()
	defer func() {
		s.recorder.Record(events.Event{
			Operation: events.OpDelete,
			Key:       key,
			Duration:  time.Since(start),
			Err:       err,
		})
	}()

	_, err = s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return nil
		}
		return fmt.Errorf("deleting %s: %w", key, err)
	}
	return nil
}

// DeletePrefixed batch-deletes every object whose key starts with prefix,
// listing and deleting page by page.
func (s *Service) DeletePrefixed(ctx context.Context, prefix string) (err error) {
	start := time.Now()
	defer func() {
		s.recorder.Record(events.Event{
			Operation: events.OpDeletePrefixed,
			Key:       prefix,
			Duration:  time.Since(start),
			Err:       err,
		})
	}()

	for {
		listResp, err := s.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket: aws.String(s.bucket),
			Prefix: aws.String(prefix),
		})
		if err != nil {
			return fmt.Errorf("listing objects under %s: %w", prefix, err)
		}

		if len(listResp.Contents) == 0 {
			return nil
		}

		objects := make([]types.ObjectIdentifier, 0, len(listResp.Contents))
		for _, obj := range listResp.Contents {
			objects = append(objects, types.ObjectIdentifier{Key: obj.Key})
		}

		_, err = s.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(s.bucket),
			Delete: &types.Delete{
				Objects: objects,
				Quiet:   aws.Bool(true),
			},
		})
		if err != nil {
			return fmt.Errorf("batch-deleting objects under %s: %w", prefix, err)
		}

		if !aws.ToBool(listResp.IsTruncated) {
			return nil
		}
	}
}

// Exists reports whether an object exists at key. Absence is a normal
// false result, never an error.
func (s *Service) Exists(ctx context.Context, key string) (ok bool, err error) {
	start := time.Now()
	defer func() {
		s.recorder.Record(events.Event{
			Operation: events.OpExist,
			Key:       key,
			Duration:  time.Since(start),
			Err:       err,
		})
	}()

	_, err = s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("checking existence of %s: %w", key, err)
	}
	return true, nil
}

// Compose concatenates the source objects, in order, into destKey: one
// streaming upload session is opened to the destination and each source is
// streamed into it chunk by chunk. The destination holds exactly the
// ordered concatenation of the sources' bytes. Not atomic with respect to
// sources changing mid-compose.
func (s *Service) Compose(ctx context.Context, sourceKeys []string, destKey string, opts ComposeOptions) (err error) {
	start := time.Now()
	var composed int64
	defer func() {
		s.recorder.Record(events.Event{
			Operation: events.OpCompose,
			Key:       destKey,
			Bytes:     composed,
			Duration:  time.Since(start),
			Err:       err,
		})
	}()

	sess, err := s.openUploadSession(ctx, destKey, MinUploadPartSize, func(in *s3.CreateMultipartUploadInput) {
		s.shapeCreate(in, opts.ContentType, opts.Filename, opts.Disposition, opts.CustomMetadata)
	})
	if err != nil {
		return err
	}

	for _, src := range sourceKeys {
		n, err := s.streamChunks(ctx, src, DefaultChunkSize, func(chunk []byte) error {
			_, werr := sess.Write(chunk)
			return werr
		})
		composed += n
		if err != nil {
			sess.abort()
			return fmt.Errorf("composing %s into %s: %w", src, destKey, err)
		}
	}
	return sess.Close()
}

// URLForDirectUpload produces a time-limited signed URL authorizing exactly
// one PUT of an object matching the given content type, length, and
// checksum. The checksum algorithm may override the adapter default and is
// validated before signing.
func (s *Service) URLForDirectUpload(ctx context.Context, key string, expiresIn time.Duration, opts DirectUploadOptions) (signed string, err error) {
	start := time.Now()
	defer func() {
		s.recorder.Record(events.Event{
			Operation: events.OpURL,
			Key:       key,
			URL:       signed,
			Duration:  time.Since(start),
			Err:       err,
		})
	}()

	alg := opts.ChecksumAlgorithm
	if alg == "" {
		alg = s.defaultAlgorithm
	}
	if err := alg.Validate(); err != nil {
		return "", err
	}

	in := &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		ContentLength: aws.Int64(opts.ContentLength),
	}
	if opts.ContentType != "" {
		in.ContentType = aws.String(opts.ContentType)
	}
	if len(opts.CustomMetadata) > 0 {
		in.Metadata = opts.CustomMetadata
	}
	s.applyUploadDefaultsToPut(in)
	applyChecksumToPut(in, opts.Checksum, alg)

	req, err := s.presigner.PresignPutObject(ctx, in, s3.WithPresignExpires(expiresIn))
	if err != nil {
		return "", fmt.Errorf("presigning direct upload of %s: %w", key, err)
	}
	return req.URL, nil
}

// HeadersForDirectUpload returns the header set a direct-upload client must
// send for its PUT to match the constraints in the signed URL: content
// type, checksum, disposition, and metadata headers with the backend's
// metadata key prefix.
func (s *Service) HeadersForDirectUpload(key string, opts DirectUploadOptions) (map[string]string, error) {
	alg := opts.ChecksumAlgorithm
	if alg == "" {
		alg = s.defaultAlgorithm
	}
	if err := alg.Validate(); err != nil {
		return nil, err
	}

	headers := checksumHeaders(opts.Checksum, alg)
	if opts.ContentType != "" {
		headers["Content-Type"] = opts.ContentType
	}
	if opts.Filename != "" {
		headers["Content-Disposition"] = contentDisposition(opts.Disposition, opts.Filename)
	}
	for k, v := range opts.CustomMetadata {
		headers["x-amz-meta-"+k] = v
	}
	return headers, nil
}

// URL returns a download URL for the object at key: a stable public URL for
// publicly readable buckets, otherwise a presigned GET with response
// content-type/disposition overrides.
func (s *Service) URL(ctx context.Context, key string, expiresIn time.Duration, opts URLOptions) (signed string, err error) {
	start := time.Now()
	defer func() {
		s.recorder.Record(events.Event{
			Operation: events.OpURL,
			Key:       key,
			URL:       signed,
			Duration:  time.Since(start),
			Err:       err,
		})
	}()

	if s.public {
		return s.publicURL(key), nil
	}
	return s.privateURL(ctx, key, expiresIn, opts)
}

// privateURL presigns a GET of key with response header overrides.
func (s *Service) privateURL(ctx context.Context, key string, expiresIn time.Duration, opts URLOptions) (string, error) {
	in := &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}
	if opts.Filename != "" || opts.Disposition != "" {
		in.ResponseContentDisposition = aws.String(contentDisposition(opts.Disposition, opts.Filename))
	}
	if opts.ContentType != "" {
		in.ResponseContentType = aws.String(opts.ContentType)
	}

	req, err := s.presigner.PresignGetObject(ctx, in, s3.WithPresignExpires(expiresIn))
	if err != nil {
		return "", fmt.Errorf("presigning download of %s: %w", key, err)
	}
	return req.URL, nil
}

// publicURL returns the stable URL of key for publicly readable buckets.
func (s *Service) publicURL(key string) string {
	escaped := (&url.URL{Path: "/" + key}).EscapedPath()
	if s.endpoint != "" {
		base := s.endpoint
		for len(base) > 0 && base[len(base)-1] == '/' {
			base = base[:len(base)-1]
		}
		if s.pathStyle {
			return base + "/" + s.bucket + escaped
		}
		return base + escaped
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com%s", s.bucket, s.region, escaped)
}

// shapePut applies content shaping and the configured upload defaults to a
// put request.
func (s *Service) shapePut(in *s3.PutObjectInput, contentType, filename, disposition string, metadata map[string]string) {
	if contentType != "" {
		in.ContentType = aws.String(contentType)
	}
	if filename != "" {
		in.ContentDisposition = aws.String(contentDisposition(disposition, filename))
	}
	if len(metadata) > 0 {
		in.Metadata = metadata
	}
	s.applyUploadDefaultsToPut(in)
}

// applyUploadDefaultsToPut merges the construction-time upload options and
// ACL into a put request.
func (s *Service) applyUploadDefaultsToPut(in *s3.PutObjectInput) {
	if s.public {
		in.ACL = types.ObjectCannedACLPublicRead
	}
	if s.upload.StorageClass != "" {
		in.StorageClass = types.StorageClass(s.upload.StorageClass)
	}
	if s.upload.CacheControl != "" {
		in.CacheControl = aws.String(s.upload.CacheControl)
	}
	if s.upload.ServerSideEncryption != "" {
		in.ServerSideEncryption = types.ServerSideEncryption(s.upload.ServerSideEncryption)
	}
}

// shapeCreate mirrors shapePut for multipart upload creation.
func (s *Service) shapeCreate(in *s3.CreateMultipartUploadInput, contentType, filename, disposition string, metadata map[string]string) {
	if contentType != "" {
		in.ContentType = aws.String(contentType)
	}
	if filename != "" {
		in.ContentDisposition = aws.String(contentDisposition(disposition, filename))
	}
	if len(metadata) > 0 {
		in.Metadata = metadata
	}
	if s.public {
		in.ACL = types.ObjectCannedACLPublicRead
	}
	if s.upload.StorageClass != "" {
		in.StorageClass = types.StorageClass(s.upload.StorageClass)
	}
	if s.upload.CacheControl != "" {
		in.CacheControl = aws.String(s.upload.CacheControl)
	}
	if s.upload.ServerSideEncryption != "" {
		in.ServerSideEncryption = types.ServerSideEncryption(s.upload.ServerSideEncryption)
	}
}

// DefaultChecksumAlgorithm returns the algorithm configured at construction.
func (s *Service) DefaultChecksumAlgorithm() ChecksumAlgorithm {
	return s.defaultAlgorithm
}

// isNotFound checks if an AWS error is a 404/NoSuchKey/NotFound error.
func isNotFound(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		code := apiErr.ErrorCode()
		if code == "NoSuchKey" || code == "NotFound" || code == "404" || code == "NoSuchBucket" {
			return true
		}
	}
	// Also check for typed NoSuchKey.
	var noSuchKey *types.NoSuchKey
	if errors.As(err, &noSuchKey) {
		return true
	}
	// Check HTTP status code via ResponseError.
	var respErr interface{ HTTPStatusCode() int }
	if errors.As(err, &respErr) {
		if respErr.HTTPStatusCode() == 404 {
			return true
		}
	}
	return false
}

// isDigestRejection checks if an AWS error is a checksum rejection: a
// mismatched digest (BadDigest) or a malformed checksum header
// (InvalidDigest).
func isDigestRejection(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		code := apiErr.ErrorCode()
		return code == "BadDigest" || code == "InvalidDigest"
	}
	return false
}
