package store

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/meilisearch/meilisearch-go"
)

// MeiliStore implements RecordStore using MeiliSearch as the backend.
type MeiliStore struct {
	client    meilisearch.ServiceManager
	index     meilisearch.IndexManager
	indexName string
	endpoint  string
}

// NewMeiliStore creates a MeiliStore for the given MeiliSearch instance.
// It does no I/O, so building one costs the hook nothing until Index is
// called. Every request is bounded by timeout and is never retried. Call
// Ping to check connectivity and Setup once to configure the index.
func NewMeiliStore(endpoint, apiKey, indexName string, timeout time.Duration) *MeiliStore {
	client := meilisearch.New(endpoint,
		meilisearch.WithAPIKey(apiKey),
		meilisearch.WithCustomClient(&http.Client{Timeout: timeout}),
		meilisearch.DisableRetries(),
	)

	return &MeiliStore{
		client:    client,
		index:     client.Index(indexName),
		indexName: indexName,
		endpoint:  endpoint,
	}
}

// Ping fails fast if MeiliSearch is unreachable or unhealthy.
func (s *MeiliStore) Ping() error {
	if !s.client.IsHealthy() {
		return fmt.Errorf("meilisearch at %s is not healthy", s.endpoint)
	}
	return nil
}

// Setup creates the journal index and configures its filterable and sortable
// attributes, waiting for each task to finish. It is idempotent.
func (s *MeiliStore) Setup() error {
	taskInfo, err := s.client.CreateIndex(&meilisearch.IndexConfig{
		Uid:        s.indexName,
		PrimaryKey: "id",
	})
	if err != nil {
		return fmt.Errorf("create index %q: %w", s.indexName, err)
	}
	// An "index already exists" failure is fine here.
	if _, err := s.client.WaitForTask(taskInfo.TaskUID, 500*time.Millisecond); err != nil {
		return fmt.Errorf("wait for create index: %w", err)
	}

	taskInfo, err = s.index.UpdateSearchableAttributes(&[]string{
		"file_path",
		"tool_name",
		"error",
	})
	if err != nil {
		return fmt.Errorf("update searchable attributes: %w", err)
	}
	if err := waitForSettingsTask(s.client, taskInfo, "searchable attributes"); err != nil {
		return err
	}

	// FilterableAttributes uses []interface{} per the SDK's API.
	filterAttrs := []interface{}{
		"tool_name",
		"session_id",
		"file_path",
		"cwd",
		"staged",
		"timestamp_unix",
	}
	taskInfo, err = s.index.UpdateFilterableAttributes(&filterAttrs)
	if err != nil {
		return fmt.Errorf("update filterable attributes: %w", err)
	}
	if err := waitForSettingsTask(s.client, taskInfo, "filterable attributes"); err != nil {
		return err
	}

	taskInfo, err = s.index.UpdateSortableAttributes(&[]string{
		"timestamp_unix",
		"duration_ms",
	})
	if err != nil {
		return fmt.Errorf("update sortable attributes: %w", err)
	}
	return waitForSettingsTask(s.client, taskInfo, "sortable attributes")
}

// waitForSettingsTask waits for a settings update task to complete.
func waitForSettingsTask(client meilisearch.ServiceManager, taskInfo *meilisearch.TaskInfo, name string) error {
	task, err := client.WaitForTask(taskInfo.TaskUID, 500*time.Millisecond)
	if err != nil {
		return fmt.Errorf("wait for %s: %w", name, err)
	}
	if task.Status == meilisearch.TaskStatusFailed {
		return fmt.Errorf("%s task failed: %s", name, task.Error.Message)
	}
	return nil
}

// Index enqueues a Record. MeiliSearch indexes asynchronously, so this only
// fails when the enqueue request itself fails.
func (s *MeiliStore) Index(ctx context.Context, rec Record) error {
	pk := "id"
	_, err := s.index.AddDocumentsWithContext(ctx, []Record{rec}, &meilisearch.DocumentOptions{
		PrimaryKey: &pk,
	})
	if err != nil {
		return fmt.Errorf("index record %s: %w", rec.ID, err)
	}
	return nil
}

// Close is a no-op for MeiliStore. The SDK's HTTP client has no persistent
// resources that need explicit cleanup.
func (s *MeiliStore) Close() error {
	return nil
}
