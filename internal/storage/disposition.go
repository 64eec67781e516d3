package storage

import "mime"

// contentDisposition combines a disposition type with an escaped filename
// into a Content-Disposition header value. The filename is quoted and, when
// it contains non-ASCII characters, carried in the RFC 2231 filename*
// parameter as well. An empty filename yields just the bare type; an empty
// type defaults to "inline".
func contentDisposition(dispositionType, filename string) string {
	if dispositionType == "" {
		dispositionType = "inline"
	}
	if filename == "" {
		return dispositionType
	}
	return mime.FormatMediaType(dispositionType, map[string]string{"filename": filename})
}
