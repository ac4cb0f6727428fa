package mocks

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/driftwood-labs/driftsync/internal/core/domain"
	"github.com/driftwood-labs/driftsync/internal/core/ports/driven"
)

type storedObject struct {
	data     []byte
	metadata map[string]string
}

type multipartUpload struct {
	key      string
	metadata map[string]string
	parts    map[int32][]byte
}

// MockObjectStore is an in-memory ObjectStore for testing.
type MockObjectStore struct {
	mu      sync.RWMutex
	objects map[string]*storedObject
	uploads map[string]*multipartUpload
	nextID  int

	PutErr        error
	UploadPartErr error
	// FailPartNumber makes only that part fail, so abort paths can be
	// exercised after some parts succeed.
	FailPartNumber int32

	aborted []string
}

// NewMockObjectStore creates a new MockObjectStore.
func NewMockObjectStore() *MockObjectStore {
	return &MockObjectStore{
		objects: make(map[string]*storedObject),
		uploads: make(map[string]*multipartUpload),
	}
}

func (m *MockObjectStore) Head(ctx context.Context, key string) (*driven.ObjectInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	obj, ok := m.objects[key]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &driven.ObjectInfo{
		Key:      key,
		Size:     int64(len(obj.data)),
		Metadata: obj.metadata,
	}, nil
}

func (m *MockObjectStore) Put(ctx context.Context, key string, body io.Reader, size int64, metadata map[string]string) error {
	if m.PutErr != nil {
		return m.PutErr
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = &storedObject{data: data, metadata: metadata}
	return nil
}

func (m *MockObjectStore) CreateMultipart(ctx context.Context, key string, metadata map[string]string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	id := fmt.Sprintf("upload-%d", m.nextID)
	m.uploads[id] = &multipartUpload{
		key:      key,
		metadata: metadata,
		parts:    make(map[int32][]byte),
	}
	return id, nil
}

func (m *MockObjectStore) UploadPart(ctx context.Context, key, uploadID string, partNumber int32, body io.Reader, size int64) (string, error) {
	if m.UploadPartErr != nil && (m.FailPartNumber == 0 || m.FailPartNumber == partNumber) {
		return "", m.UploadPartErr
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	up, ok := m.uploads[uploadID]
	if !ok {
		return "", fmt.Errorf("unknown upload %s", uploadID)
	}
	up.parts[partNumber] = data
	return fmt.Sprintf("etag-%d", partNumber), nil
}

func (m *MockObjectStore) CompleteMultipart(ctx context.Context, key, uploadID string, etags []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	up, ok := m.uploads[uploadID]
	if !ok {
		return fmt.Errorf("unknown upload %s", uploadID)
	}
	var buf bytes.Buffer
	for i := int32(1); i <= int32(len(up.parts)); i++ {
		buf.Write(up.parts[i])
	}
	m.objects[key] = &storedObject{data: buf.Bytes(), metadata: up.metadata}
	delete(m.uploads, uploadID)
	return nil
}

func (m *MockObjectStore) AbortMultipart(ctx context.Context, key, uploadID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.uploads, uploadID)
	m.aborted = append(m.aborted, uploadID)
	return nil
}

// Helper methods for testing

func (m *MockObjectStore) SeedObject(key string, data []byte, metadata map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = &storedObject{data: data, metadata: metadata}
}

func (m *MockObjectStore) Object(key string) ([]byte, map[string]string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	obj, ok := m.objects[key]
	if !ok {
		return nil, nil, false
	}
	return obj.data, obj.metadata, true
}

func (m *MockObjectStore) Aborted() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.aborted...)
}

func (m *MockObjectStore) PendingUploads() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.uploads)
}
