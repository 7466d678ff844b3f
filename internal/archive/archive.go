// Package archive copies generated reports to object storage.
package archive

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"
	"time"
	"unicode"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/segmentio/ksuid"
)

// Archiver stores a CSV report and returns the object key.
type Archiver interface {
	Archive(ctx context.Context, city string, at time.Time, csv []byte) (string, error)
}

// NopArchiver discards reports.
type NopArchiver struct{}

func (NopArchiver) Archive(context.Context, string, time.Time, []byte) (string, error) {
	return "", nil
}

// objectPutter is the subset of *s3.Client used for archiving.
type objectPutter interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Config configures the S3 archiver. Endpoint is optional and enables
// path-style addressing for S3-compatible stores such as MinIO.
type S3Config struct {
	Region   string
	Bucket   string
	Prefix   string
	Endpoint string
}

// S3Archiver writes reports under prefix/city/YYYY/MM/DD/<ksuid>.csv.
type S3Archiver struct {
	client objectPutter
	bucket string
	prefix string
}

// NewS3Archiver loads AWS credentials from the default chain and returns an
// archiver for cfg.Bucket.
func NewS3Archiver(ctx context.Context, cfg S3Config) (*S3Archiver, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 archiver requires a bucket")
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	return newS3Archiver(client, cfg.Bucket, cfg.Prefix), nil
}

func newS3Archiver(client objectPutter, bucket, prefix string) *S3Archiver {
	return &S3Archiver{client: client, bucket: bucket, prefix: strings.Trim(prefix, "/")}
}

// Archive uploads csv and returns its key.
func (a *S3Archiver) Archive(ctx context.Context, city string, at time.Time, csv []byte) (string, error) {
	key := a.Key(city, at, ksuid.New())
	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(csv),
		ContentType: aws.String("text/csv"),
		Metadata: map[string]string{
			"city":         city,
			"generated-at": at.UTC().Format(time.RFC3339),
		},
	})
	if err != nil {
		return "", fmt.Errorf("put report %s: %w", key, err)
	}
	return key, nil
}

// Key builds the object key for a report. KSUIDs sort by creation time, so
// a day's reports list in order.
func (a *S3Archiver) Key(city string, at time.Time, id ksuid.KSUID) string {
	at = at.UTC()
	parts := []string{
		slug(city),
		at.Format("2006"),
		at.Format("01"),
		at.Format("02"),
		id.String() + ".csv",
	}
	if a.prefix != "" {
		parts = append([]string{a.prefix}, parts...)
	}
	return path.Join(parts...)
}

// slug lower-cases city and replaces anything but letters and digits with '-'.
func slug(city string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(strings.TrimSpace(city)) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	s := strings.TrimSuffix(b.String(), "-")
	if s == "" {
		return "unknown"
	}
	return s
}
