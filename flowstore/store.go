package flowstore

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/bubblelab/bubbleflow/errors"
	"github.com/bubblelab/bubbleflow/natsclient"
)

// Store provides persistence for Flow entities using NATS KV
type Store struct {
	kvStore *natsclient.KVStore
}

// DefaultBucket is the KV bucket flows persist to unless overridden.
const DefaultBucket = "bubbleflow_flows"

// StoreOption customizes store creation.
type StoreOption func(*storeOptions)

type storeOptions struct {
	bucket string
}

// WithBucket overrides the KV bucket name.
func WithBucket(name string) StoreOption {
	return func(o *storeOptions) {
		if name != "" {
			o.bucket = name
		}
	}
}

// NewStore creates a new flow store
func NewStore(natsClient *natsclient.Client, opts ...StoreOption) (*Store, error) {
	if natsClient == nil {
		return nil, errors.WrapInvalid(fmt.Errorf("nats client cannot be nil"), "flowstore", "NewStore", "validation")
	}

	options := storeOptions{bucket: DefaultBucket}
	for _, opt := range opts {
		opt(&options)
	}

	ctx := context.Background()
	bucket, err := natsClient.CreateKeyValueBucket(ctx, jetstream.KeyValueConfig{
		Bucket:      options.bucket,
		Description: "BubbleFlow definitions and metadata",
		History:     10, // Keep last 10 versions for recovery
	})
	if err != nil {
		return nil, errors.WrapTransient(err, "flowstore", "NewStore", "create KV bucket")
	}

	return &Store{
		kvStore: natsClient.NewKVStore(bucket),
	}, nil
}

// Create creates a new flow
func (s *Store) Create(ctx context.Context, flow *Flow) error {
	if flow == nil {
		return errors.WrapInvalid(fmt.Errorf("flow cannot be nil"), "flowstore", "Create", "validation")
	}
	if flow.ID == "" {
		return errors.WrapInvalid(fmt.Errorf("flow ID cannot be empty"), "flowstore", "Create", "validation")
	}

	flow.Version = 1
	now := time.Now()
	flow.CreatedAt = now
	flow.UpdatedAt = now
	flow.LastModified = now

	if flow.RuntimeState == "" {
		flow.RuntimeState = StateIdle
	}

	data, err := json.Marshal(flow)
	if err != nil {
		return errors.WrapFatal(err, "flowstore", "Create", "marshal flow")
	}

	// Create() only succeeds if the key doesn't exist yet
	if _, err := s.kvStore.Create(ctx, flow.ID, data); err != nil {
		if natsclient.IsKVConflictError(err) {
			return errors.WrapInvalid(err, "flowstore", "Create", "flow already exists")
		}
		return errors.WrapTransient(err, "flowstore", "Create", "create in KV")
	}

	return nil
}

// Get retrieves a flow by ID
func (s *Store) Get(ctx context.Context, id string) (*Flow, error) {
	if id == "" {
		return nil, errors.WrapInvalid(fmt.Errorf("flow ID cannot be empty"), "flowstore", "Get", "validation")
	}

	entry, err := s.kvStore.Get(ctx, id)
	if err != nil {
		if natsclient.IsKVNotFoundError(err) {
			return nil, errors.ErrFlowNotFound
		}
		return nil, errors.WrapTransient(err, "flowstore", "Get", "get from KV")
	}

	var flow Flow
	if err := json.Unmarshal(entry.Value, &flow); err != nil {
		return nil, errors.WrapFatal(err, "flowstore", "Get", "unmarshal flow")
	}

	return &flow, nil
}

// Update updates an existing flow with optimistic concurrency control
func (s *Store) Update(ctx context.Context, flow *Flow) error {
	if flow == nil {
		return errors.WrapInvalid(fmt.Errorf("flow cannot be nil"), "flowstore", "Update", "validation")
	}
	if flow.ID == "" {
		return errors.WrapInvalid(fmt.Errorf("flow ID cannot be empty"), "flowstore", "Update", "validation")
	}

	current, err := s.Get(ctx, flow.ID)
	if err != nil {
		return errors.WrapTransient(err, "flowstore", "Update", "get current version")
	}

	if current.Version != flow.Version {
		return errors.WrapInvalid(
			fmt.Errorf("version mismatch: expected %d, got %d", current.Version, flow.Version),
			"flowstore", "Update", "conflict: flow was modified by another user")
	}

	flow.Version++
	flow.UpdatedAt = time.Now()
	flow.LastModified = time.Now()

	data, err := json.Marshal(flow)
	if err != nil {
		return errors.WrapFatal(err, "flowstore", "Update", "marshal flow")
	}

	if _, err := s.kvStore.Put(ctx, flow.ID, data); err != nil {
		return errors.WrapTransient(err, "flowstore", "Update", "put to KV")
	}

	return nil
}

// SetRuntimeState transitions a flow's persisted runtime state with a
// CAS retry loop, so concurrent execute/complete calls cannot clobber
// each other's updates.
func (s *Store) SetRuntimeState(ctx context.Context, id string, state RuntimeState) error {
	if id == "" {
		return errors.WrapInvalid(fmt.Errorf("flow ID cannot be empty"), "flowstore", "SetRuntimeState", "validation")
	}

	err := s.kvStore.UpdateWithRetry(ctx, id, func(current []byte) ([]byte, error) {
		if len(current) == 0 {
			return nil, errors.ErrFlowNotFound
		}

		var flow Flow
		if err := json.Unmarshal(current, &flow); err != nil {
			return nil, fmt.Errorf("unmarshal flow: %w", err)
		}

		now := time.Now()
		flow.RuntimeState = state
		flow.Version++
		flow.UpdatedAt = now
		flow.LastModified = now
		switch state {
		case StateRunning:
			flow.StartedAt = &now
		case StateIdle, StateError:
			flow.StoppedAt = &now
		}

		return json.Marshal(flow)
	})
	if err != nil {
		if stderrors.Is(err, errors.ErrFlowNotFound) || natsclient.IsKVNotFoundError(err) {
			return errors.ErrFlowNotFound
		}
		return errors.WrapTransient(err, "flowstore", "SetRuntimeState", "update in KV")
	}

	return nil
}

// Delete removes a flow by ID
func (s *Store) Delete(ctx context.Context, id string) error {
	if id == "" {
		return errors.WrapInvalid(fmt.Errorf("flow ID cannot be empty"), "flowstore", "Delete", "validation")
	}

	if err := s.kvStore.Delete(ctx, id); err != nil {
		if natsclient.IsKVNotFoundError(err) {
			return errors.ErrFlowNotFound
		}
		return errors.WrapTransient(err, "flowstore", "Delete", "delete from KV")
	}

	return nil
}

// List retrieves all flows
func (s *Store) List(ctx context.Context) ([]*Flow, error) {
	keys, err := s.kvStore.Keys(ctx)
	if err != nil {
		return nil, errors.WrapTransient(err, "flowstore", "List", "list KV keys")
	}

	flows := make([]*Flow, 0, len(keys))
	for _, key := range keys {
		flow, err := s.Get(ctx, key)
		if err != nil {
			return nil, errors.WrapTransient(err, "flowstore", "List",
				fmt.Sprintf("get flow %s", key))
		}
		flows = append(flows, flow)
	}

	return flows, nil
}
