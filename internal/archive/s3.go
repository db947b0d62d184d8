package archive

import (
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/triagestack/triage-engine/internal/models"
)

// Archiver stores rendered tickets for completed sessions.
type Archiver interface {
	ArchiveTicket(ctx context.Context, result models.ProcessingResult) error
}

// S3Archiver uploads rendered tickets to object storage under:
//
//	s3://<bucket>/<prefix>/tickets/YYYY/MM/DD/<sessionID>.txt
type S3Archiver struct {
	bucket   string
	prefix   string
	uploader *manager.Uploader
}

// NewS3Archiver creates an archiver. Region and credentials come from the
// standard AWS environment (AWS_REGION, AWS_PROFILE, access keys).
func NewS3Archiver(ctx context.Context, bucket, prefix string) (*S3Archiver, error) {
	if bucket == "" {
		return nil, fmt.Errorf("bucket required")
	}
	cfg, err := awsConfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(cfg)
	return &S3Archiver{
		bucket:   bucket,
		prefix:   prefix,
		uploader: manager.NewUploader(client),
	}, nil
}

// ArchiveTicket uploads the session's rendered ticket.
func (a *S3Archiver) ArchiveTicket(ctx context.Context, result models.ProcessingResult) error {
	if result.SessionID == "" {
		return fmt.Errorf("session id required")
	}
	if result.Ticket == "" {
		return fmt.Errorf("session %s has no rendered ticket", result.SessionID)
	}

	ts := result.CreatedAt
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	year, month, day := ts.Date()
	key := path.Join(a.prefix, "tickets",
		fmt.Sprintf("%04d", year),
		fmt.Sprintf("%02d", int(month)),
		fmt.Sprintf("%02d", day),
		fmt.Sprintf("%s.txt", result.SessionID),
	)

	_, err := a.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        strings.NewReader(result.Ticket),
		ContentType: aws.String("text/plain; charset=utf-8"),
	})
	if err != nil {
		return fmt.Errorf("s3 upload failed: %w", err)
	}
	return nil
}
