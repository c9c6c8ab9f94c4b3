package service

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Kapo179/docuseal3/config"
	"github.com/Kapo179/docuseal3/model"
)

func TestNewMinioService(t *testing.T) {
	cfg := &config.MinioConfig{
		Endpoint:  "invalid-endpoint:9000",
		AccessKey: "test",
		SecretKey: "test",
		Bucket:    "test",
		UseSSL:    false,
	}

	svc, err := NewMinioService(cfg)
	// NewMinioService only builds the client; the connection is made lazily.
	if err != nil {
		t.Logf("NewMinioService returned error: %v", err)
	} else if svc == nil {
		t.Error("Expected non-nil service")
	}
}

func TestMinioServiceArchiveAuditTrail(t *testing.T) {
	var uploadPath, uploadType string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		uploadPath = r.URL.Path
		uploadType = r.Header.Get("Content-Type")
		w.Header().Set("ETag", `"d41d8cd98f00b204e9800998ecf8427e"`)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	svc, err := NewMinioService(&config.MinioConfig{
		Endpoint:   strings.TrimPrefix(server.URL, "http://"),
		AccessKey:  "test",
		SecretKey:  "test",
		Bucket:     "agreements",
		ExpireDays: 7,
	})
	if err != nil {
		t.Fatalf("Failed to create service: %v", err)
	}

	link, err := svc.ArchiveAuditTrail(context.Background(), "doc-1", []byte("%PDF-1.4 audit"))
	if err != nil {
		t.Fatalf("ArchiveAuditTrail failed: %v", err)
	}
	if uploadPath != "/agreements/"+AuditTrailObjectName("doc-1") || uploadType != "application/pdf" {
		t.Errorf("Unexpected upload %s (%s)", uploadPath, uploadType)
	}
	if !strings.HasPrefix(link, server.URL+"/agreements/audit-trails/doc-1.pdf?") {
		t.Errorf("Expected presigned object link, got %s", link)
	}
	if !strings.Contains(link, "X-Amz-Expires=604800") || !strings.Contains(link, "X-Amz-Signature=") {
		t.Errorf("Expected a 7 day signed link, got %s", link)
	}
}

func TestMinioServiceGetMissingKey(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/xml")
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`<?xml version="1.0" encoding="UTF-8"?><Error><Code>NoSuchKey</Code><Message>The specified key does not exist.</Message><BucketName>agreements</BucketName><Key>kv/missing</Key></Error>`))
	}))
	defer server.Close()

	svc, err := NewMinioService(&config.MinioConfig{
		Endpoint:  strings.TrimPrefix(server.URL, "http://"),
		AccessKey: "test",
		SecretKey: "test",
		Bucket:    "agreements",
	})
	if err != nil {
		t.Fatalf("Failed to create service: %v", err)
	}

	_, err = svc.Get(context.Background(), "missing")
	if !errors.Is(err, model.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestMinioServiceWithCancelledContext(t *testing.T) {
	svc, err := NewMinioService(&config.MinioConfig{
		Endpoint:   "localhost:9000",
		AccessKey:  "test",
		SecretKey:  "test",
		Bucket:     "test",
		ExpireDays: 7,
	})
	if err != nil {
		t.Skip("Could not create MinIO service")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := svc.Set(ctx, "key", []byte(`{}`), 0); err == nil {
		t.Error("Expected error for cancelled context")
	}
}
