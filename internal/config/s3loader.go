package config

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// S3LoaderConfig configures an S3-backed overlay loader.
type S3LoaderConfig struct {
	Client       *s3.Client
	Bucket       string
	Key          string
	RefreshTTL   time.Duration // how often to re-check the object (default 5m)
	ErrorBackoff time.Duration // wait after a failed fetch (default 1m)
	Logger       *slog.Logger
}

// S3Loader fetches a JSON object from S3 with ETag-conditional requests.
// Unchanged objects cost a 304 round trip; fetch errors back off so a broken
// bucket cannot stall request paths.
type S3Loader struct {
	client *s3.Client
	bucket string
	key    string

	mu          sync.Mutex
	etag        string
	initialized bool
	fetching    bool
	lastCheck   time.Time
	lastError   time.Time

	refreshTTL   time.Duration
	errorBackoff time.Duration
	logger       *slog.Logger
}

// NewS3Loader creates a loader. Zero durations take defaults.
func NewS3Loader(cfg S3LoaderConfig) *S3Loader {
	if cfg.RefreshTTL == 0 {
		cfg.RefreshTTL = 5 * time.Minute
	}
	if cfg.ErrorBackoff == 0 {
		cfg.ErrorBackoff = time.Minute
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &S3Loader{
		client:       cfg.Client,
		bucket:       cfg.Bucket,
		key:          cfg.Key,
		refreshTTL:   cfg.RefreshTTL,
		errorBackoff: cfg.ErrorBackoff,
		logger:       cfg.Logger,
	}
}

// Enabled reports whether a client is configured.
func (l *S3Loader) Enabled() bool {
	return l.client != nil
}

// ShouldRefresh reports whether a fetch is due.
func (l *S3Loader) ShouldRefresh() bool {
	if l.client == nil {
		return false
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.fetching {
		return false
	}
	if !l.lastError.IsZero() && time.Since(l.lastError) < l.errorBackoff {
		return false
	}
	return !l.initialized || time.Since(l.lastCheck) > l.refreshTTL
}

// Fetch retrieves the object. It returns (data, true, nil) when new content
// arrived, (nil, false, nil) when the object is unchanged, absent or the
// loader is disabled, and (nil, false, err) on failure.
func (l *S3Loader) Fetch(ctx context.Context) ([]byte, bool, error) {
	if l.client == nil {
		return nil, false, nil
	}

	l.mu.Lock()
	if l.fetching {
		l.mu.Unlock()
		return nil, false, nil
	}
	l.fetching = true
	currentEtag := l.etag
	l.mu.Unlock()

	defer func() {
		l.mu.Lock()
		l.fetching = false
		l.mu.Unlock()
	}()

	input := &s3.GetObjectInput{
		Bucket: &l.bucket,
		Key:    &l.key,
	}
	if currentEtag != "" {
		quoted := "\"" + currentEtag + "\""
		input.IfNoneMatch = &quoted
	}

	resp, err := l.client.GetObject(ctx, input)
	if err != nil {
		var noSuchKey *types.NoSuchKey
		if errors.As(err, &noSuchKey) {
			l.markChecked(true)
			return nil, false, nil
		}
		var apiErr interface{ ErrorCode() string }
		if errors.As(err, &apiErr) && apiErr.ErrorCode() == "NotModified" {
			l.markChecked(false)
			return nil, false, nil
		}
		l.markChecked(true)
		l.logger.Error("failed to fetch S3 overlay",
			"error", err,
			"bucket", l.bucket,
			"key", l.key,
		)
		return nil, false, err
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		l.markChecked(true)
		return nil, false, err
	}

	newEtag := ""
	if resp.ETag != nil {
		newEtag = strings.Trim(*resp.ETag, "\"")
	}

	l.mu.Lock()
	l.initialized = true
	l.lastCheck = time.Now()
	l.lastError = time.Time{}
	l.etag = newEtag
	l.mu.Unlock()

	l.logger.Debug("S3 overlay fetched",
		"bucket", l.bucket,
		"key", l.key,
		"etag", newEtag,
		"size", len(data),
	)
	return data, true, nil
}

func (l *S3Loader) markChecked(failed bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.initialized = true
	l.lastCheck = time.Now()
	if failed {
		l.lastError = time.Now()
	}
}

// NewS3Client builds an S3 client from the overlay settings. Custom endpoints
// (Tigris, MinIO, R2) use path-style addressing.
func NewS3Client(ctx context.Context, cfg *Config) (*s3.Client, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.S3Region),
		awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.S3AccessKeyID, cfg.S3SecretAccessKey, ""),
		),
	)
	if err != nil {
		return nil, err
	}

	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.S3Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.S3Endpoint)
			o.UsePathStyle = true
		}
	}), nil
}
