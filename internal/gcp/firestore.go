package gcp

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/Lllllllleong/ocrflow/internal/models"
)

// NewFirestoreClient creates and returns a new Firestore client for the given project ID.
func NewFirestoreClient(ctx context.Context, projectID string) (*firestore.Client, error) {
	if projectID == "" {
		return nil, fmt.Errorf("projectID must be provided to create a firestore client")
	}

	client, err := firestore.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to create Firestore client: %w", err)
	}

	return client, nil
}

// FirestoreTracker records one JobRecord per processed document and keeps
// its status in step with the pipeline.
type FirestoreTracker struct {
	client     *firestore.Client
	collection string
	provider   string
}

func NewFirestoreTracker(client *firestore.Client, collection, provider string) *FirestoreTracker {
	return &FirestoreTracker{client: client, collection: collection, provider: provider}
}

// Begin creates the job record for the document at path and returns its ID.
func (t *FirestoreTracker) Begin(ctx context.Context, path string) (string, error) {
	fileHash, err := CalculateFileHash(path)
	if err != nil {
		return "", fmt.Errorf("failed to calculate file hash: %w", err)
	}
	now := time.Now()
	record := models.JobRecord{
		FileHash:         fileHash,
		OriginalFilename: filepath.Base(path),
		Provider:         t.provider,
		Status:           models.StatusQueued,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	docRef, _, err := t.client.Collection(t.collection).Add(ctx, record)
	if err != nil {
		return "", fmt.Errorf("failed to create job record: %w", err)
	}
	return docRef.ID, nil
}

// Transition updates the status of a job record along with any extra fields.
func (t *FirestoreTracker) Transition(ctx context.Context, jobID, status string, fields map[string]any) error {
	updates := []firestore.Update{
		{Path: "status", Value: status},
		{Path: "updatedAt", Value: time.Now()},
	}
	for k, v := range fields {
		updates = append(updates, firestore.Update{Path: k, Value: v})
	}
	if _, err := t.client.Collection(t.collection).Doc(jobID).Update(ctx, updates); err != nil {
		return fmt.Errorf("failed to update job %s to %s: %w", jobID, status, err)
	}
	return nil
}

// FindCompleted returns the ID of a finished job for the file hash, or "" when
// the file has not been processed successfully before.
func (t *FirestoreTracker) FindCompleted(ctx context.Context, fileHash string) (string, error) {
	docs, err := t.client.Collection(t.collection).
		Where("fileHash", "==", fileHash).
		Where("status", "==", models.StatusDone).
		Limit(1).Documents(ctx).GetAll()
	if err != nil {
		return "", fmt.Errorf("failed to query for duplicates: %w", err)
	}
	if len(docs) == 0 {
		return "", nil
	}
	return docs[0].Ref.ID, nil
}

// CalculateFileHash returns the hex SHA-256 of a file.
func CalculateFileHash(filePath string) (string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return "", err
	}
	defer file.Close()
	hash := sha256.New()
	if _, err := io.Copy(hash, file); err != nil {
		return "", err
	}
	return hex.EncodeToString(hash.Sum(nil)), nil
}
