// Package archive uploads expired records to object storage before the
// retention sweep deletes them.
package archive

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"

	"github.com/mohammad-safakhou/enroller/config"
)

// ObjectPutter is the subset of the S3 API the archiver needs.
type ObjectPutter interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Archiver writes zstd-compressed JSON lines to a bucket.
type S3Archiver struct {
	api    ObjectPutter
	bucket string
	prefix string
	now    func() time.Time
}

// NewS3 builds an archiver from configuration. Static credentials are used
// when both keys are set; otherwise the default AWS chain applies.
func NewS3(ctx context.Context, cfg config.S3Config) (*S3Archiver, error) {
	if !cfg.Enabled() {
		return nil, errors.New("storage.s3.bucket is required for archiving")
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(region),
		awsconfig.WithHTTPClient(&http.Client{Timeout: 30 * time.Second}),
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint != "" && !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
		endpoint = "https://" + endpoint
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.ForcePathStyle
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	})
	return New(client, cfg.Bucket), nil
}

// New wraps an existing client.
func New(api ObjectPutter, bucket string) *S3Archiver {
	return &S3Archiver{api: api, bucket: bucket, prefix: "retention", now: time.Now}
}

// WithClock overrides the time source used for object keys.
func (a *S3Archiver) WithClock(now func() time.Time) *S3Archiver {
	a.now = now
	return a
}

// Archive uploads records as one object and returns its key. An empty batch
// uploads nothing.
func (a *S3Archiver) Archive(ctx context.Context, category string, records []any) (string, error) {
	if len(records) == 0 {
		return "", nil
	}
	body, err := Encode(records)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(body)
	checksum := base64.StdEncoding.EncodeToString(sum[:])
	key := ObjectKey(a.prefix, category, a.now(), uuid.NewString())
	size := int64(len(body))

	_, err = a.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket:            aws.String(a.bucket),
		Key:               aws.String(key),
		Body:              bytes.NewReader(body),
		ContentLength:     &size,
		ContentType:       aws.String("application/zstd"),
		ChecksumAlgorithm: s3types.ChecksumAlgorithmSha256,
		ChecksumSHA256:    &checksum,
		Metadata: map[string]string{
			"sha256":   hex.EncodeToString(sum[:]),
			"records":  strconv.Itoa(len(records)),
			"category": category,
		},
	})
	if err != nil {
		return "", fmt.Errorf("put %s: %w", key, err)
	}
	return key, nil
}

// ObjectKey lays archives out by category and UTC day.
func ObjectKey(prefix, category string, at time.Time, id string) string {
	return fmt.Sprintf("%s/%s/%s/%s.jsonl.zst", prefix, category, at.UTC().Format("2006-01-02"), id)
}

// Encode renders records as zstd-compressed JSON lines.
func Encode(records []any) ([]byte, error) {
	var buf bytes.Buffer
	enc, err := zstd.NewWriter(&buf)
	if err != nil {
		return nil, fmt.Errorf("zstd writer: %w", err)
	}
	jw := json.NewEncoder(enc)
	for _, r := range records {
		if err := jw.Encode(r); err != nil {
			enc.Close()
			return nil, fmt.Errorf("encode record: %w", err)
		}
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("zstd close: %w", err)
	}
	return buf.Bytes(), nil
}
