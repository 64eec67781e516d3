package storage

import (
	"bytes"
	"context"
	"testing"
)

func TestUploadSessionPartSplitting(t *testing.T) {
	svc, client, _ := newTestService(t, nil)
	ctx := context.Background()

	sess, err := svc.openUploadSession(ctx, "blobs/parts", 4, nil)
	if err != nil {
		t.Fatalf("openUploadSession: %v", err)
	}

	// 10 bytes at part size 4: two full parts plus a short tail.
	for _, w := range []string{"ab", "cdefg", "hij"} {
		if _, err := sess.Write([]byte(w)); err != nil {
			t.Fatalf("Write(%q): %v", w, err)
		}
	}
	if err := sess.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	sizes := client.partSizes[sess.uploadID]
	if len(sizes) != 3 || sizes[0] != 4 || sizes[1] != 4 || sizes[2] != 2 {
		t.Errorf("part sizes = %v, want [4 4 2]", sizes)
	}
	if got := client.objects["blobs/parts"]; !bytes.Equal(got, []byte("abcdefghij")) {
		t.Errorf("assembled object = %q, want abcdefghij", got)
	}
}

func TestUploadSessionEmptyPayload(t *testing.T) {
	svc, client, _ := newTestService(t, nil)

	sess, err := svc.openUploadSession(context.Background(), "blobs/empty", 4, nil)
	if err != nil {
		t.Fatalf("openUploadSession: %v", err)
	}
	if err := sess.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	got, ok := client.objects["blobs/empty"]
	if !ok {
		t.Fatal("empty upload produced no object")
	}
	if len(got) != 0 {
		t.Errorf("object = %d bytes, want 0", len(got))
	}
}

func TestUploadSessionCloseAfterAbort(t *testing.T) {
	svc, client, _ := newTestService(t, nil)

	sess, err := svc.openUploadSession(context.Background(), "blobs/aborted", 4, nil)
	if err != nil {
		t.Fatalf("openUploadSession: %v", err)
	}
	if _, err := sess.Write([]byte("abc")); err != nil {
		t.Fatalf("Write: %v", err)
	}

	sess.abort()
	sess.abort() // idempotent
	if client.abortCalls != 1 {
		t.Errorf("abortCalls = %d, want 1", client.abortCalls)
	}

	if err := sess.Close(); err != nil {
		t.Errorf("Close after abort = %v, want nil", err)
	}
	if _, ok := client.objects["blobs/aborted"]; ok {
		t.Error("aborted session produced an object")
	}
}

func TestUploadSessionPartFailure(t *testing.T) {
	svc, client, _ := newTestService(t, nil)
	client.failUploadPartAt = 2

	sess, err := svc.openUploadSession(context.Background(), "blobs/failing", 4, nil)
	if err != nil {
		t.Fatalf("openUploadSession: %v", err)
	}

	// First part flushes fine, second fails mid-write.
	_, err = sess.Write(bytes.Repeat([]byte("z"), 12))
	if err == nil {
		t.Fatal("expected write failure on second part")
	}
	if client.abortCalls != 1 {
		t.Errorf("abortCalls = %d, want 1", client.abortCalls)
	}
	if len(client.multipartUploads) != 0 {
		t.Error("failed upload left open server-side")
	}
}
