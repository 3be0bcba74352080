package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"strings"

	"cloud.google.com/go/storage"
)

const gcsScheme = "gs://"

// splitGCSPath splits gs://bucket/object into its bucket and object names.
func splitGCSPath(uri string) (bucket, object string, err error) {
	rest := strings.TrimPrefix(uri, gcsScheme)
	bucket, object, ok := strings.Cut(rest, "/")
	if !ok || bucket == "" || object == "" {
		return "", "", fmt.Errorf("invalid GCS path %q, want gs://bucket/object", uri)
	}
	return bucket, object, nil
}

// readSource loads a PDF from a local path or a gs://bucket/object URI and
// returns its bytes and the filename to report.
func readSource(ctx context.Context, src string) ([]byte, string, error) {
	if !strings.HasPrefix(src, gcsScheme) {
		data, err := os.ReadFile(src)
		if err != nil {
			return nil, "", fmt.Errorf("failed to read %s: %w", src, err)
		}
		return data, src, nil
	}

	bucket, object, err := splitGCSPath(src)
	if err != nil {
		return nil, "", err
	}

	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create storage client: %w", err)
	}
	defer client.Close()

	reader, err := client.Bucket(bucket).Object(object).NewReader(ctx)
	if err != nil {
		return nil, "", fmt.Errorf("failed to open %s: %w", src, err)
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, "", fmt.Errorf("failed to download %s: %w", src, err)
	}
	return data, path.Base(object), nil
}
