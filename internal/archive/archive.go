// Package archive uploads session reports to S3-compatible storage.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/oszuidwest/zwfm-audioswitch/internal/types"
	"github.com/oszuidwest/zwfm-audioswitch/internal/util"
)

const (
	// queueSize is the number of reports that can wait for upload.
	queueSize = 32
	// uploadTimeout bounds a single PutObject call.
	uploadTimeout = 60 * time.Second
	// maxAttempts is the number of uploads tried per report.
	maxAttempts = 3
	// retryDelay and maxRetryDelay bound the wait between attempts.
	retryDelay    = 2 * time.Second
	maxRetryDelay = 30 * time.Second
)

// ErrQueueFull is returned when a report cannot be queued.
var ErrQueueFull = errors.New("archive queue full")

// S3Config holds S3-compatible storage configuration.
type S3Config struct {
	Endpoint        string // Custom S3 endpoint (empty for AWS)
	Bucket          string
	AccessKeyID     string
	SecretAccessKey string
	Prefix          string // Key prefix, without trailing slash
}

// IsConfigured returns true if S3 settings are configured.
func (c *S3Config) IsConfigured() bool {
	return util.IsConfigured(c.Bucket, c.AccessKeyID, c.SecretAccessKey)
}

// objectPutter is the subset of the S3 client used for uploads.
type objectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// ResultFunc receives the outcome of each upload.
type ResultFunc func(sessionID, key string, err error)

// Archiver uploads session reports in the background.
type Archiver struct {
	client   objectPutter
	bucket   string
	prefix   string
	onResult ResultFunc
	// retryDelay is the first wait after a failed upload.
	retryDelay time.Duration

	queue  chan types.SessionReport
	stopCh chan struct{}
	wg     sync.WaitGroup
	once   sync.Once
}

// createS3Client creates an S3 client with the given configuration.
func createS3Client(cfg *S3Config) *s3.Client {
	creds := credentials.NewStaticCredentialsProvider(
		cfg.AccessKeyID,
		cfg.SecretAccessKey,
		"",
	)

	options := []func(*s3.Options){
		func(o *s3.Options) {
			o.Credentials = creds
			o.Region = "auto"
		},
	}

	if cfg.Endpoint != "" {
		options = append(options, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		})
	}

	return s3.New(s3.Options{}, options...)
}

// New returns an Archiver for cfg. onResult may be nil.
func New(cfg *S3Config, onResult ResultFunc) (*Archiver, error) {
	if !cfg.IsConfigured() {
		return nil, fmt.Errorf("S3 is not configured")
	}
	return newArchiver(createS3Client(cfg), cfg, onResult), nil
}

func newArchiver(client objectPutter, cfg *S3Config, onResult ResultFunc) *Archiver {
	if onResult == nil {
		onResult = func(string, string, error) {}
	}
	return &Archiver{
		client:     client,
		bucket:     cfg.Bucket,
		prefix:     cfg.Prefix,
		onResult:   onResult,
		retryDelay: retryDelay,
		queue:      make(chan types.SessionReport, queueSize),
		stopCh:     make(chan struct{}),
	}
}

// Start launches the upload worker.
func (a *Archiver) Start() {
	a.wg.Add(1)
	go a.uploadWorker()
}

// Stop stops the worker after uploading any queued reports.
func (a *Archiver) Stop() {
	a.once.Do(func() { close(a.stopCh) })
	a.wg.Wait()
}

// Enqueue queues a report for upload without blocking.
//
//nolint:gocritic // hugeParam: reports are copied once per session
func (a *Archiver) Enqueue(r types.SessionReport) error {
	select {
	case a.queue <- r:
		slog.Info("queued session report for upload", "session_id", r.ID)
		return nil
	default:
		slog.Warn("archive queue full", "session_id", r.ID)
		return ErrQueueFull
	}
}

// Key returns the object key for a report.
func (a *Archiver) Key(r *types.SessionReport) string {
	return ReportKey(a.prefix, r)
}

// ReportKey returns prefix/sessions/YYYY-MM-DD/<id>.json, dated by the
// session start in UTC.
func ReportKey(prefix string, r *types.SessionReport) string {
	return path.Join(prefix, "sessions", r.StartedAt.UTC().Format(time.DateOnly), r.ID+".json")
}

// uploadWorker processes the upload queue, draining remaining items on shutdown.
func (a *Archiver) uploadWorker() {
	defer a.wg.Done()

	for {
		select {
		case <-a.stopCh:
			for {
				select {
				case r := <-a.queue:
					a.upload(&r)
				default:
					return
				}
			}
		case r := <-a.queue:
			a.upload(&r)
		}
	}
}

// upload stores one report and reports the result. Failed uploads are
// retried with exponential backoff until the archiver stops.
func (a *Archiver) upload(r *types.SessionReport) {
	key := a.Key(r)
	backoff := util.NewBackoff(a.retryDelay, maxRetryDelay)

	var err error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err = a.put(r, key); err == nil || attempt == maxAttempts {
			break
		}
		delay := backoff.Next()
		slog.Warn("session report upload failed, retrying",
			"session_id", r.ID, "attempt", attempt, "retry_in", delay, "error", err)
		if !a.sleep(delay) {
			break
		}
	}

	if err != nil {
		slog.Error("session report upload failed", "session_id", r.ID, "key", key, "error", err)
	} else {
		slog.Info("session report uploaded", "session_id", r.ID, "key", key)
	}
	a.onResult(r.ID, key, err)
}

// sleep waits for d and reports false if the archiver stopped first.
func (a *Archiver) sleep(d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-a.stopCh:
		return false
	}
}

func (a *Archiver) put(r *types.SessionReport, key string) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return util.WrapError("marshal session report", err)
	}

	ctx, cancel := context.WithTimeoutCause(
		context.Background(),
		uploadTimeout,
		errors.New("s3 upload timeout"),
	)
	defer cancel()

	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(a.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String("application/json"),
	})
	if err != nil {
		return util.WrapError("upload session report", err)
	}
	return nil
}

// CheckConnection tests connectivity to the bucket by uploading and deleting a test file.
func CheckConnection(ctx context.Context, cfg *S3Config) error {
	if !cfg.IsConfigured() {
		return fmt.Errorf("S3 is not configured")
	}

	client := createS3Client(cfg)

	ctx, cancel := context.WithTimeout(ctx, 30000*time.Millisecond)
	defer cancel()

	testKey := path.Join(cfg.Prefix, fmt.Sprintf("test-connection-%d.txt", time.Now().UnixNano()))
	testContent := []byte("ZuidWest FM audio switch connection test")

	_, err := client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(cfg.Bucket),
		Key:           aws.String(testKey),
		Body:          bytes.NewReader(testContent),
		ContentLength: aws.Int64(int64(len(testContent))),
	})
	if err != nil {
		return fmt.Errorf("upload test file: %w", err)
	}

	_, err = client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(cfg.Bucket),
		Key:    aws.String(testKey),
	})
	if err != nil {
		slog.Warn("failed to delete test file", "key", testKey, "error", err)
	}

	return nil
}
