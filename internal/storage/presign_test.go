package storage

import (
	"context"
	"net/url"
	"strings"
	"testing"
)

// Presigning is local signing work, so static credentials are enough to
// exercise the full URL construction path.
func TestPresignPut(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	p, err := NewS3Presigner(ctx, S3Config{
		Region:          "us-east-1",
		Endpoint:        "http://minio.internal:9000",
		AccessKeyID:     "test-key",
		SecretAccessKey: "test-secret",
	})
	if err != nil {
		t.Fatalf("NewS3Presigner() error = %v", err)
	}

	signed, err := p.PresignPut(ctx, "media", "tenants/acme/uploads/image.png", "image/png")
	if err != nil {
		t.Fatalf("PresignPut() error = %v", err)
	}

	u, err := url.Parse(signed)
	if err != nil {
		t.Fatalf("presigned URL does not parse: %v", err)
	}
	if !strings.Contains(u.Path, "media") {
		t.Errorf("path %q missing bucket", u.Path)
	}
	if !strings.Contains(u.Path, "tenants/acme/uploads/image.png") {
		t.Errorf("path %q missing object key", u.Path)
	}
	if u.Query().Get("X-Amz-Signature") == "" {
		t.Error("URL is not signed")
	}
	if u.Query().Get("X-Amz-Expires") != "3600" {
		t.Errorf("X-Amz-Expires = %q, want 3600", u.Query().Get("X-Amz-Expires"))
	}
}
