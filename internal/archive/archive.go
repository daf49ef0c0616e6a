// Package archive persists a JSON summary of each settled auction so results
// outlive the contract being reused for the next auction. S3 is the durable
// driver; memory backs tests and one-off CLI runs.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
)

const (
	DriverS3     = "s3"
	DriverMemory = "memory"

	contentType = "application/json"

	maxSummarySize int64 = 1 << 20
)

var (
	ErrInvalidConfig  = errors.New("archive: invalid config")
	ErrInvalidSummary = errors.New("archive: invalid summary")
	ErrNotFound       = errors.New("archive: not found")
)

// Summary is the record of one settled auction.
type Summary struct {
	ContractAddress string    `json:"contractAddress"`
	Creator         string    `json:"creator,omitempty"`
	Winner          string    `json:"winner"`
	WinningBid      string    `json:"winningBid"`
	CommitEnd       uint64    `json:"commitEnd"`
	RevealEnd       uint64    `json:"revealEnd"`
	SettledAt       time.Time `json:"settledAt"`
}

func (s Summary) validate() error {
	if strings.TrimSpace(s.ContractAddress) == "" {
		return fmt.Errorf("%w: contract address is required", ErrInvalidSummary)
	}
	if s.RevealEnd == 0 {
		return fmt.Errorf("%w: reveal end is required", ErrInvalidSummary)
	}
	return nil
}

// key layout: auctions/<contract>/<revealEnd>.json. The reveal deadline
// distinguishes successive auctions on the same contract.
func (s Summary) key() string {
	return "auctions/" + strings.ToLower(strings.TrimSpace(s.ContractAddress)) + "/" + strconv.FormatUint(s.RevealEnd, 10) + ".json"
}

type Store interface {
	Archive(ctx context.Context, summary Summary) error
	Load(ctx context.Context, contractAddress string, revealEnd uint64) (Summary, error)
	Exists(ctx context.Context, contractAddress string, revealEnd uint64) (bool, error)
}

type Config struct {
	Driver string

	// S3 fields.
	Bucket   string
	Prefix   string
	S3Client S3Client
}

type S3Client interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
}

func New(cfg Config) (Store, error) {
	switch strings.TrimSpace(strings.ToLower(cfg.Driver)) {
	case DriverMemory:
		return newMemoryStore(), nil
	case DriverS3, "":
		return newS3Store(cfg)
	default:
		return nil, fmt.Errorf("%w: unsupported driver %q", ErrInvalidConfig, cfg.Driver)
	}
}

type memoryStore struct {
	mu        sync.RWMutex
	summaries map[string]Summary
}

func newMemoryStore() Store {
	return &memoryStore{summaries: make(map[string]Summary)}
}

func (m *memoryStore) Archive(_ context.Context, summary Summary) error {
	if err := summary.validate(); err != nil {
		return err
	}
	m.mu.Lock()
	m.summaries[summary.key()] = summary
	m.mu.Unlock()
	return nil
}

func (m *memoryStore) Load(_ context.Context, contractAddress string, revealEnd uint64) (Summary, error) {
	key := Summary{ContractAddress: contractAddress, RevealEnd: revealEnd}.key()
	m.mu.RLock()
	summary, ok := m.summaries[key]
	m.mu.RUnlock()
	if !ok {
		return Summary{}, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return summary, nil
}

func (m *memoryStore) Exists(_ context.Context, contractAddress string, revealEnd uint64) (bool, error) {
	key := Summary{ContractAddress: contractAddress, RevealEnd: revealEnd}.key()
	m.mu.RLock()
	_, ok := m.summaries[key]
	m.mu.RUnlock()
	return ok, nil
}

type s3Store struct {
	client S3Client
	bucket string
	prefix string
}

func newS3Store(cfg Config) (Store, error) {
	bucket := strings.TrimSpace(cfg.Bucket)
	if bucket == "" {
		return nil, fmt.Errorf("%w: s3 bucket is required", ErrInvalidConfig)
	}
	if cfg.S3Client == nil {
		return nil, fmt.Errorf("%w: s3 client is required", ErrInvalidConfig)
	}
	return &s3Store{
		client: cfg.S3Client,
		bucket: bucket,
		prefix: strings.Trim(strings.TrimSpace(cfg.Prefix), "/"),
	}, nil
}

func (s *s3Store) fullKey(key string) string {
	if s.prefix == "" {
		return key
	}
	return s.prefix + "/" + key
}

func (s *s3Store) Archive(ctx context.Context, summary Summary) error {
	if err := summary.validate(); err != nil {
		return err
	}
	payload, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("archive/s3: encode summary: %w", err)
	}

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s.fullKey(summary.key())),
		Body:        bytes.NewReader(payload),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("archive/s3: put %q: %w", summary.key(), err)
	}
	return nil
}

func (s *s3Store) Load(ctx context.Context, contractAddress string, revealEnd uint64) (Summary, error) {
	key := Summary{ContractAddress: contractAddress, RevealEnd: revealEnd}.key()

	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.fullKey(key)),
	})
	if err != nil {
		if isNotFound(err) {
			return Summary{}, fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return Summary{}, fmt.Errorf("archive/s3: get %q: %w", key, err)
	}
	defer func() { _ = out.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(out.Body, maxSummarySize))
	if err != nil {
		return Summary{}, fmt.Errorf("archive/s3: read %q: %w", key, err)
	}
	var summary Summary
	if err := json.Unmarshal(data, &summary); err != nil {
		return Summary{}, fmt.Errorf("archive/s3: decode %q: %w", key, err)
	}
	return summary, nil
}

func (s *s3Store) Exists(ctx context.Context, contractAddress string, revealEnd uint64) (bool, error) {
	key := Summary{ContractAddress: contractAddress, RevealEnd: revealEnd}.key()

	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.fullKey(key)),
	})
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("archive/s3: head %q: %w", key, err)
	}
	return true, nil
}

func isNotFound(err error) bool {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	switch apiErr.ErrorCode() {
	case "NoSuchKey", "NotFound", "404":
		return true
	default:
		return false
	}
}
