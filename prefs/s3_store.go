package prefs

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

const ctxTimeout = 10 * time.Second

// S3Config contains the configuration required to connect to S3 (MinIO).
type S3Config struct {
	Endpoint        string `json:"endpoint" yaml:"endpoint"`
	AccessKeyID     string `json:"access_key_id" yaml:"access_key_id"`
	SecretAccessKey string `json:"secret_access_key" yaml:"secret_access_key"`
	Bucket          string `json:"bucket" yaml:"bucket"`
	KeyPrefix       string `json:"key_prefix,omitempty" yaml:"key_prefix,omitempty"`
	UseSSL          bool   `json:"use_ssl" yaml:"use_ssl"`
	Region          string `json:"region,omitempty" yaml:"region,omitempty"`
}

// S3Store implements Store against an S3-compatible backend using MinIO.
//
// Object layout:
//
//	bucket/
//	├── [keyPrefix/]serviceA.prefs   # JSON document: user -> base64(envelope)
//	├── [keyPrefix/]serviceB.prefs
//	└── ...
//
// One object per namespace keeps commits atomic at the object level: a commit
// is a read-modify-write serialized by the store lock, and S3 object puts are
// atomic, so readers always see exactly one editor's result.
type S3Store struct {
	client     *minio.Client
	bucketName string
	keyPrefix  string
	mu         sync.Mutex // serializes commits (last-commit-wins)
}

// NewS3Store connects to the S3 endpoint and ensures the bucket exists.
func NewS3Store(config S3Config) (*S3Store, error) {
	if config.Endpoint == "" {
		return nil, fmt.Errorf("s3 storage requires an endpoint")
	}
	if config.Bucket == "" {
		return nil, fmt.Errorf("s3 storage requires a bucket")
	}

	client, err := minio.New(config.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(config.AccessKeyID, config.SecretAccessKey, ""),
		Secure: config.UseSSL,
		Region: config.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}

	store := &S3Store{
		client:     client,
		bucketName: config.Bucket,
		keyPrefix:  config.KeyPrefix,
	}

	ctx, cancel := context.WithTimeout(context.Background(), ctxTimeout)
	defer cancel()

	if err = store.ensureBucket(ctx); err != nil {
		return nil, fmt.Errorf("failed to ensure bucket exists: %w", err)
	}
	return store, nil
}

// NewS3StoreFromConfig initializes an S3Store from a generic StoreConfig.
func NewS3StoreFromConfig(config StoreConfig) (*S3Store, error) {
	if config.Type != StoreTypeS3 {
		return nil, fmt.Errorf("invalid store type for S3: %s", config.Type)
	}

	configBytes, err := json.Marshal(config.Config)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal config: %w", err)
	}
	var s3Config S3Config
	if err = json.Unmarshal(configBytes, &s3Config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal S3 config: %w", err)
	}
	return NewS3Store(s3Config)
}

func (s3s *S3Store) ensureBucket(ctx context.Context) error {
	exists, err := s3s.client.BucketExists(ctx, s3s.bucketName)
	if err != nil {
		return fmt.Errorf("failed to check bucket %s: %w", s3s.bucketName, err)
	}
	if !exists {
		if err = s3s.client.MakeBucket(ctx, s3s.bucketName, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("failed to create bucket %s: %w", s3s.bucketName, err)
		}
	}
	return nil
}

func (s3s *S3Store) objectName(namespace string) (string, error) {
	if err := validateNamespace(namespace); err != nil {
		return "", err
	}
	name := namespace + prefsExt
	if s3s.keyPrefix != "" {
		name = s3s.keyPrefix + "/" + name
	}
	return name, nil
}

// loadDocument fetches a namespace document; an absent object is an empty
// document, not an error.
func (s3s *S3Store) loadDocument(ctx context.Context, objectName string) (map[string]string, error) {
	object, err := s3s.client.GetObject(ctx, s3s.bucketName, objectName, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to get object %s: %w", objectName, err)
	}
	defer object.Close()

	data, err := io.ReadAll(object)
	if err != nil {
		if minioErr := minio.ToErrorResponse(err); minioErr.Code == "NoSuchKey" {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("failed to read object %s: %w", objectName, err)
	}

	doc := map[string]string{}
	if len(data) > 0 {
		if err = json.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("failed to parse object %s: %w", objectName, err)
		}
	}
	return doc, nil
}

func (s3s *S3Store) Get(namespace, key string) ([]byte, bool, error) {
	objectName, err := s3s.objectName(namespace)
	if err != nil {
		return nil, false, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), ctxTimeout)
	defer cancel()

	doc, err := s3s.loadDocument(ctx, objectName)
	if err != nil {
		return nil, false, err
	}
	encoded, ok := doc[key]
	if !ok {
		return nil, false, nil
	}
	value, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		fmt.Printf("WARNING: bad base64 on key %q in namespace %q, ignoring\n", key, namespace)
		return nil, false, nil
	}
	return value, true, nil
}

func (s3s *S3Store) Edit(namespace string) (Editor, error) {
	objectName, err := s3s.objectName(namespace)
	if err != nil {
		return nil, err
	}
	return &s3Editor{store: s3s, objectName: objectName}, nil
}

func (s3s *S3Store) Ping() error {
	ctx, cancel := context.WithTimeout(context.Background(), ctxTimeout)
	defer cancel()

	exists, err := s3s.client.BucketExists(ctx, s3s.bucketName)
	if err != nil {
		return fmt.Errorf("failed to connect to S3: %w", err)
	}
	if !exists {
		return fmt.Errorf("bucket %s does not exist", s3s.bucketName)
	}
	return nil
}

func (s3s *S3Store) Close() error {
	return nil
}

func (s3s *S3Store) GetType() string {
	return string(StoreTypeS3)
}

type s3Editor struct {
	store      *S3Store
	objectName string
	ops        []op
}

func (e *s3Editor) Put(key string, value []byte) Editor {
	staged := make([]byte, len(value))
	copy(staged, value)
	e.ops = append(e.ops, op{key: key, value: staged})
	return e
}

func (e *s3Editor) Remove(key string) Editor {
	e.ops = append(e.ops, op{key: key})
	return e
}

func (e *s3Editor) Commit() error {
	e.store.mu.Lock()
	defer e.store.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), ctxTimeout)
	defer cancel()

	doc, err := e.store.loadDocument(ctx, e.objectName)
	if err != nil {
		return err
	}
	applyOps(doc, e.ops, base64.StdEncoding.EncodeToString)

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize namespace document: %w", err)
	}

	_, err = e.store.client.PutObject(
		ctx,
		e.store.bucketName,
		e.objectName,
		bytes.NewReader(data),
		int64(len(data)),
		minio.PutObjectOptions{ContentType: "application/json"},
	)
	if err != nil {
		return fmt.Errorf("failed to commit namespace document: %w", err)
	}
	return nil
}
