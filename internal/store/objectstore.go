package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"sync"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	log "github.com/sirupsen/logrus"
)

const objectStoreRecordPrefix = "credentials"

// ObjectStoreConfig captures configuration for the S3-compatible credential store.
type ObjectStoreConfig struct {
	Endpoint  string
	Bucket    string
	AccessKey string
	SecretKey string
	Region    string
	Prefix    string
	UseSSL    bool
	PathStyle bool
}

// ObjectStore persists one JSON object per record in an S3-compatible bucket.
type ObjectStore struct {
	client *minio.Client
	cfg    ObjectStoreConfig

	mu          sync.Mutex
	initialized bool
}

// NewObjectStore validates cfg and creates the minio client. No request is made until Initialize.
func NewObjectStore(cfg ObjectStoreConfig) (*ObjectStore, error) {
	cfg.Endpoint = strings.TrimSpace(cfg.Endpoint)
	cfg.Bucket = strings.TrimSpace(cfg.Bucket)
	cfg.AccessKey = strings.TrimSpace(cfg.AccessKey)
	cfg.SecretKey = strings.TrimSpace(cfg.SecretKey)
	cfg.Prefix = strings.Trim(cfg.Prefix, "/")

	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("object store: endpoint is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("object store: bucket is required")
	}
	if cfg.AccessKey == "" {
		return nil, fmt.Errorf("object store: access key is required")
	}
	if cfg.SecretKey == "" {
		return nil, fmt.Errorf("object store: secret key is required")
	}

	options := &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	}
	if cfg.PathStyle {
		options.BucketLookup = minio.BucketLookupPath
	}

	client, err := minio.New(cfg.Endpoint, options)
	if err != nil {
		return nil, fmt.Errorf("object store: create client: %w", err)
	}
	return &ObjectStore{client: client, cfg: cfg}, nil
}

// Initialize ensures the bucket exists.
func (s *ObjectStore) Initialize(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.cfg.Bucket)
	if err != nil {
		return fmt.Errorf("object store: check bucket: %w", err)
	}
	if !exists {
		if err = s.client.MakeBucket(ctx, s.cfg.Bucket, minio.MakeBucketOptions{Region: s.cfg.Region}); err != nil {
			return fmt.Errorf("object store: create bucket: %w", err)
		}
	}
	s.mu.Lock()
	s.initialized = true
	s.mu.Unlock()
	return nil
}

// AddAccount uploads the record under credentials/<file name>.
func (s *ObjectStore) AddAccount(ctx context.Context, record *Record) error {
	if !s.ready() {
		return ErrNotInitialized
	}
	if err := record.validate(); err != nil {
		return fmt.Errorf("object store: %w", err)
	}
	raw, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("object store: marshal record: %w", err)
	}
	key := s.recordKey(record)
	_, err = s.client.PutObject(ctx, s.cfg.Bucket, key, bytes.NewReader(raw), int64(len(raw)), minio.PutObjectOptions{
		ContentType: "application/json",
	})
	if err != nil {
		return fmt.Errorf("object store: put object %s: %w", key, err)
	}
	return nil
}

// ListAccounts downloads every record object under the prefix.
func (s *ObjectStore) ListAccounts(ctx context.Context) ([]*Record, error) {
	if !s.ready() {
		return nil, ErrNotInitialized
	}
	prefix := s.prefixedKey(objectStoreRecordPrefix + "/")
	objectCh := s.client.ListObjects(ctx, s.cfg.Bucket, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	})
	records := make([]*Record, 0, 32)
	for object := range objectCh {
		if object.Err != nil {
			return nil, fmt.Errorf("object store: list record objects: %w", object.Err)
		}
		if !strings.HasSuffix(strings.ToLower(object.Key), ".json") {
			continue
		}
		data, found, err := s.getObject(ctx, object.Key)
		if err != nil {
			return nil, err
		}
		if !found {
			continue
		}
		rec, errDecode := decodeRecord(data)
		if errDecode != nil {
			log.WithError(errDecode).WithField("key", object.Key).Warn("object store: skip invalid record")
			continue
		}
		records = append(records, rec)
	}
	sortRecords(records)
	return records, nil
}

// getObject reports found=false when the object vanished between listing and download.
func (s *ObjectStore) getObject(ctx context.Context, key string) ([]byte, bool, error) {
	reader, err := s.client.GetObject(ctx, s.cfg.Bucket, key, minio.GetObjectOptions{})
	if err != nil {
		if isObjectNotFound(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("object store: download %s: %w", key, err)
	}
	defer func() {
		if errClose := reader.Close(); errClose != nil {
			log.WithError(errClose).Debug("object store: close reader")
		}
	}()
	data, err := io.ReadAll(reader)
	if err != nil {
		if isObjectNotFound(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("object store: read %s: %w", key, err)
	}
	return data, true, nil
}

func (s *ObjectStore) ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.initialized
}

func (s *ObjectStore) recordKey(record *Record) string {
	return s.prefixedKey(path.Join(objectStoreRecordPrefix, record.FileName()))
}

func (s *ObjectStore) prefixedKey(key string) string {
	key = strings.TrimLeft(key, "/")
	if s.cfg.Prefix == "" {
		return key
	}
	return strings.TrimLeft(s.cfg.Prefix+"/"+key, "/")
}

func isObjectNotFound(err error) bool {
	if err == nil {
		return false
	}
	resp := minio.ToErrorResponse(err)
	if resp.StatusCode == http.StatusNotFound {
		return true
	}
	switch resp.Code {
	case "NoSuchKey", "NotFound", "NoSuchBucket":
		return true
	}
	return false
}
