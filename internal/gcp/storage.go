package gcp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"time"

	"cloud.google.com/go/storage"
	"golang.org/x/sync/errgroup"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"
)

const (
	uploadRetries     = 4
	uploadConcurrency = 10
)

// ErrObjectExists is returned by conditional uploads when the object is already present.
var ErrObjectExists = errors.New("object already exists")

// UploadFile writes a local file to bucket/object. With ifAbsent set, an
// existing object is left untouched and ErrObjectExists is returned.
func UploadFile(ctx context.Context, bucket *storage.BucketHandle, localPath, object string, ifAbsent bool) error {
	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("could not open local file %s: %w", localPath, err)
	}
	defer f.Close()

	obj := bucket.Object(object)
	if ifAbsent {
		obj = obj.If(storage.Conditions{DoesNotExist: true})
	}
	writer := obj.NewWriter(ctx)

	if _, err := io.Copy(writer, f); err != nil {
		_ = writer.Close()
		return fmt.Errorf("io.Copy to GCS failed: %w", err)
	}
	if err := writer.Close(); err != nil {
		var gerr *googleapi.Error
		if errors.As(err, &gerr) && gerr.Code == 412 {
			return ErrObjectExists
		}
		return fmt.Errorf("failed to close GCS writer (finalize upload): %w", err)
	}
	return nil
}

// uploadWithRetry retries transient upload failures with exponential backoff.
func uploadWithRetry(ctx context.Context, bucket *storage.BucketHandle, localPath, object string) error {
	backoff := 1 * time.Second
	var lastErr error

	for i := 0; i < uploadRetries; i++ {
		err := func() error {
			writeCtx, cancel := context.WithTimeout(ctx, time.Second*50)
			defer cancel()
			return UploadFile(writeCtx, bucket, localPath, object, true)
		}()
		if err == nil {
			return nil
		}
		if errors.Is(err, ErrObjectExists) {
			slog.Info("SKIPPING: object already exists.", "gcsObject", object)
			return nil
		}

		lastErr = err
		slog.Warn(
			"Upload failed, will retry.",
			"gcsObject", object,
			"attempt", i+1,
			"maxRetries", uploadRetries,
			"backoff", backoff.String(),
			"error", err,
		)

		select {
		case <-time.After(backoff):
			backoff *= 2
		case <-ctx.Done():
			slog.Error("Context cancelled during backoff. Aborting retries.", "gcsObject", object, "error", ctx.Err())
			return ctx.Err()
		}
	}
	slog.Error("Upload failed after all retries.", "gcsObject", object, "error", lastErr)
	return fmt.Errorf("upload for %s failed after all retries: %w", object, lastErr)
}

// UploadDir uploads every file below localDir to bucket under prefix,
// concurrently, and returns the object names written.
func UploadDir(ctx context.Context, bucket *storage.BucketHandle, localDir, prefix string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(localDir, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			files = append(files, p)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk %s: %w", localDir, err)
	}

	objects := make([]string, len(files))
	eg, gctx := errgroup.WithContext(ctx)
	eg.SetLimit(uploadConcurrency)

	for i, localPath := range files {
		localPath := localPath
		rel, err := filepath.Rel(localDir, localPath)
		if err != nil {
			return nil, fmt.Errorf("failed to relativize %s: %w", localPath, err)
		}
		object := path.Join(prefix, filepath.ToSlash(rel))
		objects[i] = object

		eg.Go(func() error {
			if err := uploadWithRetry(gctx, bucket, localPath, object); err != nil {
				return fmt.Errorf("%s: %w", rel, err)
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, fmt.Errorf("one or more files failed to upload: %w", err)
	}
	return objects, nil
}

// DownloadObject streams bucket/object into destPath.
func DownloadObject(ctx context.Context, client *storage.Client, bucket, object, destPath string) error {
	gcsReader, err := client.Bucket(bucket).Object(object).NewReader(ctx)
	if err != nil {
		return fmt.Errorf("failed to get GCS object reader for gs://%s/%s: %w", bucket, object, err)
	}
	defer gcsReader.Close()
	localFile, err := os.Create(destPath)
	if err != nil {
		return fmt.Errorf("failed to create temp file at %s: %w", destPath, err)
	}
	defer localFile.Close()
	if _, err := io.Copy(localFile, gcsReader); err != nil {
		return fmt.Errorf("failed to copy GCS object to local file: %w", err)
	}
	return nil
}

// DeletePrefix removes every object under prefix. Used to drop staged uploads.
func DeletePrefix(ctx context.Context, bucket *storage.BucketHandle, prefix string) error {
	it := bucket.Objects(ctx, &storage.Query{Prefix: prefix})
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to list objects under %s: %w", prefix, err)
		}
		if err := bucket.Object(attrs.Name).Delete(ctx); err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
			return fmt.Errorf("failed to delete %s: %w", attrs.Name, err)
		}
	}
}
