package storage

import (
	"context"
	"errors"
	"os"
	"testing"
)

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{
			name:    "empty endpoint",
			config:  Config{Endpoint: "", Bucket: "test"},
			wantErr: true,
		},
		{
			name:    "no default bucket",
			config:  Config{Endpoint: "localhost:9000"},
			wantErr: false,
		},
		{
			name: "valid config",
			config: Config{
				Endpoint:        "localhost:9000",
				Bucket:          "test",
				AccessKeyID:     "minioadmin",
				SecretAccessKey: "minioadmin",
			},
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.config)
			if (err != nil) != tt.wantErr {
				t.Errorf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestBucketRequired(t *testing.T) {
	client, err := New(Config{Endpoint: "localhost:9000"})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if _, err := client.GetObject(context.Background(), "", "a.txt", 0); err == nil {
		t.Error("GetObject() without any bucket should fail")
	}
}

// TestIntegration_S3Operations tests actual S3 operations against MinIO.
// Skip if MinIO is not running.
func TestIntegration_S3Operations(t *testing.T) {
	endpoint := os.Getenv("MINIO_ENDPOINT")
	if endpoint == "" {
		endpoint = "localhost:9000"
	}

	client, err := New(Config{
		Endpoint:        endpoint,
		Bucket:          "leadai-rag-test",
		AccessKeyID:     "minioadmin",
		SecretAccessKey: "minioadmin",
		UseSSL:          false,
	})
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}

	ctx := context.Background()

	// Try to ensure bucket - skip if MinIO is not available
	if err := client.EnsureBucket(ctx, ""); err != nil {
		t.Skipf("MinIO not available, skipping integration test: %v", err)
	}

	const key = "evidence/policy/review.md"
	content := "# Review Policy\n\nModels are reviewed quarterly."

	t.Run("PutObject", func(t *testing.T) {
		if err := client.PutObject(ctx, "", key, []byte(content), "text/markdown"); err != nil {
			t.Fatalf("PutObject() error = %v", err)
		}
	})

	t.Run("GetObject", func(t *testing.T) {
		obj, err := client.GetObject(ctx, "", key, 0)
		if err != nil {
			t.Fatalf("GetObject() error = %v", err)
		}
		if string(obj.Data) != content {
			t.Errorf("GetObject() = %q, want %q", obj.Data, content)
		}
		if obj.ContentType != "text/markdown" {
			t.Errorf("ContentType = %q, want text/markdown", obj.ContentType)
		}
	})

	t.Run("GetObject too large", func(t *testing.T) {
		_, err := client.GetObject(ctx, "", key, 4)
		if !errors.Is(err, ErrObjectTooLarge) {
			t.Errorf("GetObject() error = %v, want ErrObjectTooLarge", err)
		}
	})

	t.Run("GetObject missing", func(t *testing.T) {
		_, err := client.GetObject(ctx, "", "evidence/missing.md", 0)
		if !errors.Is(err, ErrObjectNotFound) {
			t.Errorf("GetObject() error = %v, want ErrObjectNotFound", err)
		}
	})

	t.Run("ListObjects", func(t *testing.T) {
		keys, err := client.ListObjects(ctx, "", "evidence/")
		if err != nil {
			t.Fatalf("ListObjects() error = %v", err)
		}
		found := false
		for _, k := range keys {
			if k == key {
				found = true
			}
		}
		if !found {
			t.Errorf("ListObjects() = %v, missing %q", keys, key)
		}
	})
}
