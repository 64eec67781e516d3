package storage

// Backend upload limits and adapter defaults.
const (
	// DefaultMultipartThreshold is the payload size at or above which
	// uploads switch to the multipart strategy.
	DefaultMultipartThreshold int64 = 100 * 1024 * 1024
	// MinUploadPartSize is the backend's minimum multipart part size
	// (all parts but the last).
	MinUploadPartSize int64 = 5 * 1024 * 1024
	// MaxUploadParts is the backend's hard cap on part count per upload.
	MaxUploadParts int64 = 10000
	// DefaultChunkSize is the byte-range size used for chunked downloads
	// and composition reads.
	DefaultChunkSize int64 = 5 * 1024 * 1024
)

// uploadStrategy selects between a single-shot put and a multipart session.
type uploadStrategy int

const (
	strategySingle uploadStrategy = iota
	strategyMultipart
)

// uploadPlan is the decision record for one upload: which strategy to use
// and, for multipart, how large each part is.
type uploadPlan struct {
	Strategy uploadStrategy
	PartSize int64
}

// planUpload chooses the upload strategy for a payload of the given size.
// Below the threshold a single-shot put avoids multipart overhead. At or
// above it, the part size is the smallest that respects the backend's cap
// on part count, floored at the backend's minimum part size. Pure function,
// no I/O.
func planUpload(size, threshold, minPartSize, maxParts int64) uploadPlan {
	if size < threshold {
		return uploadPlan{Strategy: strategySingle}
	}
	partSize := (size + maxParts - 1) / maxParts
	if partSize < minPartSize {
		partSize = minPartSize
	}
	return uploadPlan{Strategy: strategyMultipart, PartSize: partSize}
}
