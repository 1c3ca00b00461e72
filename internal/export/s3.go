package export

import (
	"bytes"
	"context"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rotisserie/eris"

	"github.com/sells-group/outreach-cli/internal/config"
	"github.com/sells-group/outreach-cli/internal/model"
)

// PutObjectAPI is the slice of the S3 client used for uploads.
type PutObjectAPI interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Uploader stores exports in S3.
type Uploader struct {
	client PutObjectAPI
	bucket string
	prefix string
}

// NewUploader wraps an S3 client.
func NewUploader(client PutObjectAPI, bucket, prefix string) *Uploader {
	return &Uploader{client: client, bucket: bucket, prefix: prefix}
}

// NewS3Uploader loads the default AWS credential chain. It returns nil when
// no bucket is configured.
func NewS3Uploader(ctx context.Context, cfg config.ExportConfig) (*Uploader, error) {
	if cfg.S3Bucket == "" {
		return nil, nil
	}
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.S3Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.S3Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, eris.Wrap(err, "export: load aws config")
	}
	return NewUploader(s3.NewFromConfig(awsCfg), cfg.S3Bucket, cfg.S3Prefix), nil
}

// Upload renders b in format and stores it at <prefix>/<batch id>.<format>.
// It returns the object key.
func (u *Uploader) Upload(ctx context.Context, b *model.BatchResult, format Format) (string, error) {
	if format == "" {
		format = FormatCSV
	}
	var buf bytes.Buffer
	if err := Write(&buf, b, format); err != nil {
		return "", err
	}

	key := path.Join(u.prefix, b.ID+"."+string(format))
	_, err := u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(u.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(buf.Bytes()),
		ContentType: aws.String(ContentType(format)),
	})
	if err != nil {
		return "", eris.Wrapf(err, "export: put s3://%s/%s", u.bucket, key)
	}
	return key, nil
}
