package s3

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

type URLMode string

const (
	URLModePresigned URLMode = "presigned"
	URLModePublic    URLMode = "public"
)

type Config struct {
	Bucket          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	UsePathStyle    bool
	URLMode         URLMode
	PresignedTTL    time.Duration
	KeyPrefix       string
}

// ReportArchive stores analysis report documents in an S3-compatible bucket.
// Implements port.ReportArchive.
type ReportArchive struct {
	client       *s3.Client
	presign      *s3.PresignClient
	bucket       string
	endpoint     string
	usePathStyle bool
	urlMode      URLMode
	presignedTTL time.Duration
	keyPrefix    string
}

func NewReportArchive(ctx context.Context, cfg Config) (*ReportArchive, error) {
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}
	if strings.TrimSpace(cfg.AccessKeyID) == "" || strings.TrimSpace(cfg.SecretAccessKey) == "" {
		return nil, fmt.Errorf("s3 access key id and secret are required")
	}
	if strings.TrimSpace(cfg.Region) == "" {
		cfg.Region = "us-east-1"
	}
	if cfg.URLMode == "" {
		cfg.URLMode = URLModePresigned
	}
	if cfg.URLMode != URLModePresigned && cfg.URLMode != URLModePublic {
		return nil, fmt.Errorf("unsupported s3 url mode: %s", cfg.URLMode)
	}
	if cfg.PresignedTTL <= 0 {
		cfg.PresignedTTL = 5 * time.Minute
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(
		ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			"",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(options *s3.Options) {
		if strings.TrimSpace(cfg.Endpoint) != "" {
			options.BaseEndpoint = &cfg.Endpoint
		}
		options.UsePathStyle = cfg.UsePathStyle
	})

	return &ReportArchive{
		client:       client,
		presign:      s3.NewPresignClient(client),
		bucket:       strings.TrimSpace(cfg.Bucket),
		endpoint:     strings.TrimRight(strings.TrimSpace(cfg.Endpoint), "/"),
		usePathStyle: cfg.UsePathStyle,
		urlMode:      cfg.URLMode,
		presignedTTL: cfg.PresignedTTL,
		keyPrefix:    strings.TrimRight(strings.TrimSpace(cfg.KeyPrefix), "/"),
	}, nil
}

// PutReport stores one serialized analysis report under a date-partitioned key.
func (a *ReportArchive) PutReport(ctx context.Context, pipelineID, analysisType string, generatedAt time.Time, body []byte) (string, error) {
	if strings.TrimSpace(pipelineID) == "" {
		return "", fmt.Errorf("pipeline id is required")
	}
	if strings.TrimSpace(analysisType) == "" {
		return "", fmt.Errorf("analysis type is required")
	}

	key := ReportKey(a.keyPrefix, pipelineID, analysisType, generatedAt)
	return a.PutObject(ctx, key, "application/json", body)
}

// PutObject uploads a report and returns a URL for reading it
func (a *ReportArchive) PutObject(ctx context.Context, key, contentType string, body []byte) (string, error) {
	if strings.TrimSpace(key) == "" {
		return "", fmt.Errorf("object key is required")
	}

	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      &a.bucket,
		Key:         &key,
		Body:        bytes.NewReader(body),
		ContentType: &contentType,
	})
	if err != nil {
		return "", fmt.Errorf("put object failed: %w", err)
	}

	if a.urlMode == URLModePublic {
		return a.publicURL(key), nil
	}

	request, err := a.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: &a.bucket,
		Key:    &key,
	}, s3.WithPresignExpires(a.presignedTTL))
	if err != nil {
		return "", fmt.Errorf("presign failed: %w", err)
	}

	return request.URL, nil
}

// ReportKey builds the archive key for one analysis report.
func ReportKey(prefix, pipelineID, analysisType string, generatedAt time.Time) string {
	ts := generatedAt.UTC()
	key := fmt.Sprintf("%s/%s/%s/%s.json",
		pipelineID,
		ts.Format("2006/01/02"),
		analysisType,
		ts.Format("20060102T150405Z"))
	if strings.TrimSpace(prefix) != "" {
		key = strings.TrimRight(prefix, "/") + "/" + key
	}
	return key
}

func (a *ReportArchive) publicURL(key string) string {
	escapedKey := url.PathEscape(key)
	escapedKey = strings.ReplaceAll(escapedKey, "%2F", "/")
	if a.usePathStyle {
		return fmt.Sprintf("%s/%s/%s", a.endpoint, a.bucket, escapedKey)
	}
	endpoint := strings.TrimPrefix(a.endpoint, "https://")
	endpoint = strings.TrimPrefix(endpoint, "http://")
	return fmt.Sprintf("https://%s.%s/%s", a.bucket, endpoint, escapedKey)
}
