package storage

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/base64"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

// mockS3Client implements S3API for unit testing.
type mockS3Client struct {
	// objects stores all objects keyed by their S3 key.
	objects map[string][]byte
	// multipartUploads tracks active multipart uploads.
	multipartUploads map[string]*mockMultipartUpload
	// nextUploadID is the counter for generating upload IDs.
	nextUploadID int
	// lastPut captures the most recent PutObject input for verification.
	lastPut *s3.PutObjectInput
	// lastCreate captures the most recent CreateMultipartUpload input.
	lastCreate *s3.CreateMultipartUploadInput
	// partSizes records uploaded part sizes per upload ID, in order.
	partSizes map[string][]int
	// putObjectCalls tracks the number of PutObject calls for verification.
	putObjectCalls int
	// getObjectCalls tracks the number of GetObject calls.
	getObjectCalls int
	// deleteObjectCalls tracks the number of DeleteObject calls.
	deleteObjectCalls int
	// abortCalls tracks the number of AbortMultipartUpload calls.
	abortCalls int
	// failUploadPartAt makes the Nth UploadPart call of an upload fail,
	// 1-based. Zero disables the failure.
	failUploadPartAt int
}

type mockMultipartUpload struct {
	key   string
	parts map[int32][]byte
}

func newMockS3Client() *mockS3Client {
	return &mockS3Client{
		objects:          make(map[string][]byte),
		multipartUploads: make(map[string]*mockMultipartUpload),
		partSizes:        make(map[string][]int),
	}
}

// verifyPutChecksum simulates server-side digest checking: any checksum
// parameter on the request is recomputed over the body and mismatches are
// rejected the way S3 rejects them.
func verifyPutChecksum(params *s3.PutObjectInput, data []byte) error {
	check := func(expected string, alg ChecksumAlgorithm) error {
		if _, err := base64.StdEncoding.DecodeString(expected); err != nil {
			return &mockAPIError{code: "InvalidDigest", message: "The checksum you specified was invalid.", httpStatus: 400}
		}
		actual, err := ComputeChecksum(bytes.NewReader(data), alg)
		if err != nil {
			return err
		}
		if actual != expected {
			return &mockAPIError{code: "BadDigest", message: "The checksum you specified did not match what we received.", httpStatus: 400}
		}
		return nil
	}

	switch {
	case params.ContentMD5 != nil:
		return check(aws.ToString(params.ContentMD5), ChecksumMD5)
	case params.ChecksumCRC32 != nil:
		return check(aws.ToString(params.ChecksumCRC32), ChecksumCRC32)
	case params.ChecksumCRC32C != nil:
		return check(aws.ToString(params.ChecksumCRC32C), ChecksumCRC32C)
	case params.ChecksumSHA1 != nil:
		return check(aws.ToString(params.ChecksumSHA1), ChecksumSHA1)
	case params.ChecksumSHA256 != nil:
		return check(aws.ToString(params.ChecksumSHA256), ChecksumSHA256)
	case params.ChecksumCRC64NVME != nil:
		return check(aws.ToString(params.ChecksumCRC64NVME), ChecksumCRC64NVME)
	}
	return nil
}

func (m *mockS3Client) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	m.putObjectCalls++
	m.lastPut = params
	key := aws.ToString(params.Key)
	data, err := io.ReadAll(params.Body)
	if err != nil {
		return nil, err
	}
	if err := verifyPutChecksum(params, data); err != nil {
		return nil, err
	}
	m.objects[key] = data
	h := md5.Sum(data)
	etag := fmt.Sprintf(`"%x"`, h)
	return &s3.PutObjectOutput{
		ETag: aws.String(etag),
	}, nil
}

// parseRange parses a "bytes=a-b" header into inclusive offsets.
func parseRange(header string, size int64) (int64, int64, bool) {
	spec, ok := strings.CutPrefix(header, "bytes=")
	if !ok {
		return 0, 0, false
	}
	beginStr, endStr, ok := strings.Cut(spec, "-")
	if !ok {
		return 0, 0, false
	}
	begin, err := strconv.ParseInt(beginStr, 10, 64)
	if err != nil {
		return 0, 0, false
	}
	end := size - 1
	if endStr != "" {
		end, err = strconv.ParseInt(endStr, 10, 64)
		if err != nil {
			return 0, 0, false
		}
	}
	if end > size-1 {
		end = size - 1
	}
	if begin > end {
		return 0, 0, false
	}
	return begin, end, true
}

func (m *mockS3Client) GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	m.getObjectCalls++
	key := aws.ToString(params.Key)
	data, ok := m.objects[key]
	if !ok {
		return nil, &mockAPIError{code: "NoSuchKey", message: "The specified key does not exist.", httpStatus: 404}
	}
	if params.Range != nil {
		begin, end, ok := parseRange(aws.ToString(params.Range), int64(len(data)))
		if !ok {
			return nil, &mockAPIError{code: "InvalidRange", message: "The requested range is not satisfiable", httpStatus: 416}
		}
		data = data[begin : end+1]
	}
	return &s3.GetObjectOutput{
		Body:          io.NopCloser(bytes.NewReader(data)),
		ContentLength: aws.Int64(int64(len(data))),
	}, nil
}

func (m *mockS3Client) DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	m.deleteObjectCalls++
	key := aws.ToString(params.Key)
	delete(m.objects, key)
	return &s3.DeleteObjectOutput{}, nil
}

func (m *mockS3Client) DeleteObjects(ctx context.Context, params *s3.DeleteObjectsInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error) {
	for _, obj := range params.Delete.Objects {
		delete(m.objects, aws.ToString(obj.Key))
	}
	return &s3.DeleteObjectsOutput{}, nil
}

func (m *mockS3Client) HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	key := aws.ToString(params.Key)
	data, ok := m.objects[key]
	if !ok {
		return nil, &mockAPIError{code: "NotFound", message: "Not Found", httpStatus: 404}
	}
	return &s3.HeadObjectOutput{
		ContentLength: aws.Int64(int64(len(data))),
	}, nil
}

func (m *mockS3Client) HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error) {
	return &s3.HeadBucketOutput{}, nil
}

func (m *mockS3Client) CreateMultipartUpload(ctx context.Context, params *s3.CreateMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.CreateMultipartUploadOutput, error) {
	m.lastCreate = params
	m.nextUploadID++
	uploadID := fmt.Sprintf("mock-upload-%d", m.nextUploadID)
	m.multipartUploads[uploadID] = &mockMultipartUpload{
		key:   aws.ToString(params.Key),
		parts: make(map[int32][]byte),
	}
	return &s3.CreateMultipartUploadOutput{
		UploadId: aws.String(uploadID),
	}, nil
}

func (m *mockS3Client) UploadPart(ctx context.Context, params *s3.UploadPartInput, optFns ...func(*s3.Options)) (*s3.UploadPartOutput, error) {
	uploadID := aws.ToString(params.UploadId)
	upload, ok := m.multipartUploads[uploadID]
	if !ok {
		return nil, &mockAPIError{code: "NoSuchUpload", message: "No such upload", httpStatus: 404}
	}
	if m.failUploadPartAt > 0 && len(m.partSizes[uploadID])+1 == m.failUploadPartAt {
		return nil, &mockAPIError{code: "InternalError", message: "We encountered an internal error.", httpStatus: 500}
	}
	data, err := io.ReadAll(params.Body)
	if err != nil {
		return nil, err
	}
	upload.parts[aws.ToInt32(params.PartNumber)] = data
	m.partSizes[uploadID] = append(m.partSizes[uploadID], len(data))

	h := md5.Sum(data)
	etag := fmt.Sprintf(`"%x"`, h)
	return &s3.UploadPartOutput{
		ETag: aws.String(etag),
	}, nil
}

func (m *mockS3Client) CompleteMultipartUpload(ctx context.Context, params *s3.CompleteMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.CompleteMultipartUploadOutput, error) {
	uploadID := aws.ToString(params.UploadId)
	upload, ok := m.multipartUploads[uploadID]
	if !ok {
		return nil, &mockAPIError{code: "NoSuchUpload", message: "No such upload", httpStatus: 404}
	}

	// Assemble parts in order.
	var assembled bytes.Buffer
	compositeMD5 := md5.New()
	for _, cp := range params.MultipartUpload.Parts {
		partNum := aws.ToInt32(cp.PartNumber)
		partData, ok := upload.parts[partNum]
		if !ok {
			return nil, &mockAPIError{code: "InvalidPart", message: "Part not found", httpStatus: 400}
		}
		assembled.Write(partData)
		partHash := md5.Sum(partData)
		compositeMD5.Write(partHash[:])
	}

	m.objects[upload.key] = assembled.Bytes()
	delete(m.multipartUploads, uploadID)

	etag := fmt.Sprintf(`"%x-%d"`, compositeMD5.Sum(nil), len(params.MultipartUpload.Parts))
	return &s3.CompleteMultipartUploadOutput{
		ETag: aws.String(etag),
	}, nil
}

func (m *mockS3Client) AbortMultipartUpload(ctx context.Context, params *s3.AbortMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.AbortMultipartUploadOutput, error) {
	m.abortCalls++
	uploadID := aws.ToString(params.UploadId)
	delete(m.multipartUploads, uploadID)
	return &s3.AbortMultipartUploadOutput{}, nil
}

func (m *mockS3Client) ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	prefix := aws.ToString(params.Prefix)
	resp := &s3.ListObjectsV2Output{IsTruncated: aws.Bool(false)}
	for key, data := range m.objects {
		if strings.HasPrefix(key, prefix) {
			resp.Contents = append(resp.Contents, types.Object{
				Key:  aws.String(key),
				Size: aws.Int64(int64(len(data))),
			})
		}
	}
	return resp, nil
}

// mockPresigner implements PresignAPI, producing deterministic fake URLs
// and capturing the signed request inputs for verification.
type mockPresigner struct {
	lastPut *s3.PutObjectInput
	lastGet *s3.GetObjectInput
}

func (p *mockPresigner) PresignPutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
	p.lastPut = params
	return &v4.PresignedHTTPRequest{
		URL:    fmt.Sprintf("https://%s.s3.test/%s?X-Amz-Signature=put", aws.ToString(params.Bucket), aws.ToString(params.Key)),
		Method: "PUT",
	}, nil
}

func (p *mockPresigner) PresignGetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
	p.lastGet = params
	return &v4.PresignedHTTPRequest{
		URL:    fmt.Sprintf("https://%s.s3.test/%s?X-Amz-Signature=get", aws.ToString(params.Bucket), aws.ToString(params.Key)),
		Method: "GET",
	}, nil
}

// mockAPIError implements smithy.APIError for the mock client.
type mockAPIError struct {
	code       string
	message    string
	httpStatus int
}

func (e *mockAPIError) Error() string {
	return fmt.Sprintf("%s: %s", e.code, e.message)
}

func (e *mockAPIError) ErrorCode() string {
	return e.code
}

func (e *mockAPIError) ErrorMessage() string {
	return e.message
}

func (e *mockAPIError) ErrorFault() smithy.ErrorFault {
	if e.httpStatus >= 500 {
		return smithy.FaultServer
	}
	return smithy.FaultClient
}

// Ensure the mocks satisfy the adapter interfaces.
var (
	_ S3API           = (*mockS3Client)(nil)
	_ PresignAPI      = (*mockPresigner)(nil)
	_ smithy.APIError = (*mockAPIError)(nil)
)
