package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/google/uuid"
	"github.com/klauspost/compress/gzip"

	"github.com/tinfoilhat/hatscore/internal/attenuation"
	"github.com/tinfoilhat/hatscore/pkg/models"
)

const reportContentType = "application/json"

// Report is the archived copy of one recorded test
type Report struct {
	Result         models.TestResult          `json:"result"`
	ContestantName string                     `json:"contestant_name"`
	DataPoints     []models.TestDataPoint     `json:"data_points"`
	BandSummary    []attenuation.BandSummary  `json:"band_summary"`
	RangeSummary   []attenuation.RangeSummary `json:"range_summary"`
	PreviousBest   *float64                   `json:"previous_best,omitempty"`
	ArchivedAt     time.Time                  `json:"archived_at"`
}

// ReportArchive keeps recorded tests outside the database
type ReportArchive interface {
	Store(ctx context.Context, report *Report) (string, error)
	Fetch(ctx context.Context, key string) (*Report, error)
	DownloadURL(ctx context.Context, key string) (string, error)
}

type s3Archive struct {
	client    *s3.Client
	bucket    string
	urlExpiry time.Duration
	endpoint  string // For MinIO compatibility
}

// S3Config holds configuration for the report archive
type S3Config struct {
	Bucket    string
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
}

// NewS3Archive creates an archive writing to an S3 or MinIO bucket
func NewS3Archive(ctx context.Context, cfg S3Config) (ReportArchive, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("S3_BUCKET is required")
	}

	region := cfg.Region
	opts := []func(*config.LoadOptions) error{}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	var client *s3.Client

	if cfg.Endpoint != "" {
		// MinIO doesn't care about region
		opts = append(opts, config.WithRegion("us-east-1"))
		awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to load AWS config: %w", err)
		}

		endpoint := cfg.Endpoint
		if !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
			endpoint = "http://" + endpoint
		}

		client = s3.NewFromConfig(awsCfg, func(o *s3.Options) {
			o.BaseEndpoint = &endpoint
			o.UsePathStyle = true // MinIO requires path-style URLs
		})
	} else {
		opts = append(opts, config.WithRegion(region))
		awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to load AWS config: %w", err)
		}

		client = s3.NewFromConfig(awsCfg)
	}

	return &s3Archive{
		client:    client,
		bucket:    cfg.Bucket,
		urlExpiry: 24 * time.Hour,
		endpoint:  cfg.Endpoint,
	}, nil
}

// EnsureBucket creates the bucket when it does not exist yet
func EnsureBucket(ctx context.Context, archive ReportArchive) error {
	a, ok := archive.(*s3Archive)
	if !ok {
		return nil
	}

	_, err := a.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(a.bucket)})
	if err == nil {
		return nil
	}

	var notFound *types.NotFound
	if !errors.As(err, &notFound) {
		return fmt.Errorf("failed to check bucket %s: %w", a.bucket, err)
	}

	if _, err := a.client.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String(a.bucket)}); err != nil {
		return fmt.Errorf("failed to create bucket %s: %w", a.bucket, err)
	}
	return nil
}

// ReportKey returns the object key for a report. The random suffix keeps a
// re-archived result from overwriting the earlier copy.
func ReportKey(contestantID, resultID int64) string {
	return fmt.Sprintf("reports/%d/%d-%s.json.gz", contestantID, resultID, uuid.New().String())
}

// Store uploads the gzipped JSON report and returns its key
func (a *s3Archive) Store(ctx context.Context, report *Report) (string, error) {
	if report.ArchivedAt.IsZero() {
		report.ArchivedAt = time.Now().UTC()
	}

	body, err := encodeReport(report)
	if err != nil {
		return "", err
	}

	key := ReportKey(report.Result.ContestantID, report.Result.ID)
	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:          aws.String(a.bucket),
		Key:             aws.String(key),
		Body:            bytes.NewReader(body),
		ContentType:     aws.String(reportContentType),
		ContentEncoding: aws.String("gzip"),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload report: %w", err)
	}

	return key, nil
}

// Fetch downloads and decodes a stored report
func (a *s3Archive) Fetch(ctx context.Context, key string) (*Report, error) {
	result, err := a.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to download report: %w", err)
	}
	defer result.Body.Close()

	data, err := io.ReadAll(result.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read report: %w", err)
	}

	return decodeReport(data)
}

// DownloadURL generates a pre-signed URL for a stored report
func (a *s3Archive) DownloadURL(ctx context.Context, key string) (string, error) {
	presignClient := s3.NewPresignClient(a.client)

	request, err := presignClient.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(key),
	}, func(opts *s3.PresignOptions) {
		opts.Expires = a.urlExpiry
	})
	if err != nil {
		return "", fmt.Errorf("failed to generate download URL: %w", err)
	}

	return request.URL, nil
}

func encodeReport(report *Report) ([]byte, error) {
	var buf bytes.Buffer
	zw, err := gzip.NewWriterLevel(&buf, gzip.BestCompression)
	if err != nil {
		return nil, err
	}
	if err := json.NewEncoder(zw).Encode(report); err != nil {
		zw.Close()
		return nil, fmt.Errorf("failed to encode report: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("failed to compress report: %w", err)
	}
	return buf.Bytes(), nil
}

func decodeReport(data []byte) (*Report, error) {
	zr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decompress report: %w", err)
	}
	defer zr.Close()

	var report Report
	if err := json.NewDecoder(zr).Decode(&report); err != nil {
		return nil, fmt.Errorf("failed to decode report: %w", err)
	}
	return &report, nil
}
