package storage

import (
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/base64"
	"hash"
	"hash/crc32"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/minio/crc64nvme"

	"github.com/blobdock/blobdock/internal/storeerr"
)

// ChecksumAlgorithm identifies a digest algorithm from the fixed supported
// set. The adapter never computes upload checksums itself; callers supply
// them and the adapter forwards them in the backend's wire format.
type ChecksumAlgorithm string

// Supported checksum algorithms.
const (
	ChecksumCRC32     ChecksumAlgorithm = "CRC32"
	ChecksumCRC32C    ChecksumAlgorithm = "CRC32C"
	ChecksumMD5       ChecksumAlgorithm = "MD5"
	ChecksumSHA1      ChecksumAlgorithm = "SHA1"
	ChecksumSHA256    ChecksumAlgorithm = "SHA256"
	ChecksumCRC64NVME ChecksumAlgorithm = "CRC64NVME"
)

// supportedChecksums is the fixed set of algorithms the backend understands.
var supportedChecksums = map[ChecksumAlgorithm]struct{}{
	ChecksumCRC32:     {},
	ChecksumCRC32C:    {},
	ChecksumMD5:       {},
	ChecksumSHA1:      {},
	ChecksumSHA256:    {},
	ChecksumCRC64NVME: {},
}

// ParseChecksumAlgorithm normalizes and validates an algorithm name.
func ParseChecksumAlgorithm(name string) (ChecksumAlgorithm, error) {
	alg := ChecksumAlgorithm(strings.ToUpper(name))
	if err := alg.Validate(); err != nil {
		return "", err
	}
	return alg, nil
}

// Validate returns an UnsupportedChecksumError if the algorithm is not a
// member of the supported set. It is called once at adapter construction for
// the configured default, and again before any per-request override is used.
func (a ChecksumAlgorithm) Validate() error {
	if _, ok := supportedChecksums[a]; !ok {
		return &storeerr.UnsupportedChecksumError{Algorithm: string(a)}
	}
	return nil
}

// hasher returns a fresh hash state for the algorithm. Stateless dispatch on
// the enum; no lazy caching needed, construction is cheap.
func (a ChecksumAlgorithm) hasher() (hash.Hash, error) {
	switch a {
	case ChecksumCRC32:
		return crc32.NewIEEE(), nil
	case ChecksumCRC32C:
		return crc32.New(crc32.MakeTable(crc32.Castagnoli)), nil
	case ChecksumMD5:
		return md5.New(), nil
	case ChecksumSHA1:
		return sha1.New(), nil
	case ChecksumSHA256:
		return sha256.New(), nil
	case ChecksumCRC64NVME:
		return crc64nvme.New(), nil
	default:
		return nil, &storeerr.UnsupportedChecksumError{Algorithm: string(a)}
	}
}

// ComputeChecksum reads r to EOF and returns the digest in the backend's
// wire encoding: standard base64 of the big-endian digest bytes, matching
// what S3 expects in Content-MD5 and x-amz-checksum-* headers.
func ComputeChecksum(r io.Reader, alg ChecksumAlgorithm) (string, error) {
	h, err := alg.hasher()
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(h, r); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(h.Sum(nil)), nil
}

// sdkChecksumAlgorithm maps a non-MD5 algorithm to the SDK enum used in
// request parameters. MD5 has no SDK enum; it travels as Content-MD5.
func (a ChecksumAlgorithm) sdkChecksumAlgorithm() types.ChecksumAlgorithm {
	switch a {
	case ChecksumCRC32:
		return types.ChecksumAlgorithmCrc32
	case ChecksumCRC32C:
		return types.ChecksumAlgorithmCrc32c
	case ChecksumSHA1:
		return types.ChecksumAlgorithmSha1
	case ChecksumSHA256:
		return types.ChecksumAlgorithmSha256
	case ChecksumCRC64NVME:
		return types.ChecksumAlgorithmCrc64nvme
	default:
		return ""
	}
}

// applyChecksumToPut embeds a caller-supplied checksum into a PutObject
// request (also used for presigned direct-upload PUTs). Two wire formats:
// MD5 uses the legacy Content-MD5 parameter; every other algorithm uses the
// uniform algorithm-tagged checksum parameter pair. No checksum, no params.
func applyChecksumToPut(in *s3.PutObjectInput, checksum string, alg ChecksumAlgorithm) {
	if checksum == "" {
		return
	}
	if alg == ChecksumMD5 {
		in.ContentMD5 = aws.String(checksum)
		return
	}
	in.ChecksumAlgorithm = alg.sdkChecksumAlgorithm()
	switch alg {
	case ChecksumCRC32:
		in.ChecksumCRC32 = aws.String(checksum)
	case ChecksumCRC32C:
		in.ChecksumCRC32C = aws.String(checksum)
	case ChecksumSHA1:
		in.ChecksumSHA1 = aws.String(checksum)
	case ChecksumSHA256:
		in.ChecksumSHA256 = aws.String(checksum)
	case ChecksumCRC64NVME:
		in.ChecksumCRC64NVME = aws.String(checksum)
	}
}

// checksumHeaders returns the literal HTTP headers a direct-upload client
// must send so its PUT matches the constraints baked into the presigned URL.
// Mirrors the two-case logic of applyChecksumToPut as header names.
func checksumHeaders(checksum string, alg ChecksumAlgorithm) map[string]string {
	if checksum == "" {
		return map[string]string{}
	}
	if alg == ChecksumMD5 {
		return map[string]string{"Content-MD5": checksum}
	}
	return map[string]string{
		"x-amz-checksum-" + strings.ToLower(string(alg)): checksum,
	}
}
