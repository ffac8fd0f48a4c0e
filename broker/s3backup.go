package broker

import (
	"bytes"
	"context"
	"fmt"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// ObjectBackupWriter is the Tier-3 object-store alternative to a local
// backup file (spec.md §6 "kafka.backup.s3-enabled, s3-bucket,
// s3-prefix | Object-store backup"). It is consulted alongside
// writeBackup rather than instead of it: a deployment with both an NFS
// backup path and S3 configured gets the event recorded in both places,
// the same belt-and-suspenders posture media-worker/media-service take
// with their own raw/public bucket pair.
type ObjectBackupWriter interface {
	Put(ctx context.Context, key string, body []byte) error
}

// S3BackupWriter uploads Tier-3 backup records to an S3-compatible
// bucket, grounded on media-worker's storage.S3Client: LoadDefaultConfig
// plus a plain s3.Client, PutObject with an explicit ContentLength. No
// custom endpoint resolver is wired here because spec.md's configuration
// surface names only bucket and prefix, not an endpoint override — a
// deployment needing MinIO/R2 instead of real S3 supplies its own
// ObjectBackupWriter.
type S3BackupWriter struct {
	client *s3.Client
	bucket string
	prefix string
}

// NewS3BackupWriter builds an S3BackupWriter from the process's default
// AWS config (environment/shared-config credential chain), matching how
// curve.buildKeyProvider resolves kms.AWSProvider's SDK config.
func NewS3BackupWriter(ctx context.Context, bucket, prefix string) (*S3BackupWriter, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("broker: load aws config for s3 backup: %w", err)
	}
	return &S3BackupWriter{
		client: s3.NewFromConfig(awsCfg),
		bucket: bucket,
		prefix: prefix,
	}, nil
}

// Put uploads body under {prefix}{eventID}.json, mirroring writeBackup's
// local filename convention so an operator reconciling both backup
// targets can correlate them by key alone.
func (w *S3BackupWriter) Put(ctx context.Context, key string, body []byte) error {
	_, err := w.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(w.bucket),
		Key:           aws.String(w.prefix + key),
		Body:          bytes.NewReader(body),
		ContentType:   aws.String("application/json"),
		ContentLength: aws.Int64(int64(len(body))),
	})
	if err != nil {
		return fmt.Errorf("broker: s3 backup put %s: %w", key, err)
	}
	return nil
}

func backupObjectKey(eventID uint64) string {
	return strconv.FormatUint(eventID, 10) + ".json"
}
