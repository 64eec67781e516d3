package storage

import (
	"strings"
	"testing"
)

func TestContentDisposition(t *testing.T) {
	got := contentDisposition("attachment", "report.pdf")
	if !strings.HasPrefix(got, "attachment") || !strings.Contains(got, "report.pdf") {
		t.Errorf("contentDisposition(attachment, report.pdf) = %q", got)
	}

	got = contentDisposition("inline", "photo.jpg")
	if !strings.HasPrefix(got, "inline") || !strings.Contains(got, "photo.jpg") {
		t.Errorf("contentDisposition(inline, photo.jpg) = %q", got)
	}

	// Empty type defaults to inline.
	got = contentDisposition("", "photo.jpg")
	if !strings.HasPrefix(got, "inline") {
		t.Errorf("contentDisposition(\"\", photo.jpg) = %q, want inline default", got)
	}

	// Names needing quoting must come out quoted.
	got = contentDisposition("attachment", "my report.pdf")
	if !strings.Contains(got, `"my report.pdf"`) {
		t.Errorf("contentDisposition with spaces = %q, want quoted filename", got)
	}

	// Non-ASCII names use the RFC 5987 extended parameter.
	got = contentDisposition("attachment", "résumé.pdf")
	if !strings.Contains(got, "filename*=utf-8''") {
		t.Errorf("contentDisposition with non-ASCII = %q, want filename* parameter", got)
	}

	// No filename yields the bare type.
	if got := contentDisposition("attachment", ""); got != "attachment" {
		t.Errorf("contentDisposition(attachment, \"\") = %q, want bare type", got)
	}
}
