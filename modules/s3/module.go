// Package s3 provides a handler that uploads a local file to an S3
// compatible bucket at a chosen step, for items that publish artefacts.
package s3

import (
	"context"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/vk/setupgrid/internal/ctxlog"
	"github.com/vk/setupgrid/internal/driver"
	"github.com/vk/setupgrid/internal/registry"
)

// Uploader puts one file into a bucket.
type Uploader interface {
	Upload(ctx context.Context, bucket, key, path, contentType string) (int64, error)
}

// Module implements the registry.Module interface for this package.
type Module struct {
	// NewUploader defaults to a minio client built from the input.
	NewUploader func(in *Input) (Uploader, error)
}

// Input defines the arguments of an s3_upload handler.
type Input struct {
	Endpoint   string `cty:"endpoint"`
	Region     string `cty:"region,optional"`
	AccessKey  string `cty:"access_key"`
	SecretKey  string `cty:"secret_key"`
	UseSSL     bool   `cty:"use_ssl,optional"`
	Bucket     string `cty:"bucket"`
	Key        string `cty:"key,optional"`
	SourcePath string `cty:"source_path"`
	Step       string `cty:"step,optional"`
}

type minioUploader struct {
	client *minio.Client
}

func (u minioUploader) Upload(ctx context.Context, bucket, key, path, contentType string) (int64, error) {
	info, err := u.client.FPutObject(ctx, bucket, key, path, minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return 0, err
	}
	return info.Size, nil
}

func newMinioUploader(in *Input) (Uploader, error) {
	region := in.Region
	if region == "" {
		region = "us-east-1"
	}
	client, err := minio.New(in.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(in.AccessKey, in.SecretKey, ""),
		Secure: in.UseSSL,
		Region: region,
	})
	if err != nil {
		return nil, fmt.Errorf("init s3 client: %w", err)
	}
	return minioUploader{client: client}, nil
}

type uploader struct {
	up   Uploader
	in   *Input
	step driver.Step
}

// Handle uploads the source file when step is the configured one.
func (u *uploader) Handle(ctx context.Context, d *driver.Driver, step driver.Step) error {
	if step != u.step {
		return nil
	}
	logger := ctxlog.FromContext(ctx).With("item", d.FullName(), "action", "upload")

	if _, err := os.Stat(u.in.SourcePath); err != nil {
		return fmt.Errorf("failed to stat source file '%s': %w", u.in.SourcePath, err)
	}
	contentType := mime.TypeByExtension(filepath.Ext(u.in.SourcePath))
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	key := u.in.Key
	if key == "" {
		key = filepath.Base(u.in.SourcePath)
	}
	size, err := u.up.Upload(ctx, u.in.Bucket, key, u.in.SourcePath, contentType)
	if err != nil {
		return fmt.Errorf("failed to upload '%s' to s3://%s/%s: %w", u.in.SourcePath, u.in.Bucket, key, err)
	}
	logger.Info("Uploaded file to S3", "source", u.in.SourcePath, "bucket", u.in.Bucket, "key", key, "size", size, "contentType", contentType)
	return nil
}

func (m *Module) build(_ context.Context, input any) (driver.Handler, error) {
	in := input.(*Input)
	for name, v := range map[string]string{"endpoint": in.Endpoint, "bucket": in.Bucket, "source_path": in.SourcePath} {
		if strings.TrimSpace(v) == "" {
			return nil, fmt.Errorf("%s must not be empty", name)
		}
	}
	step := driver.StepInstall
	if in.Step != "" {
		s, err := driver.ParseStep(in.Step)
		if err != nil {
			return nil, err
		}
		step = s
	}
	newUploader := m.NewUploader
	if newUploader == nil {
		newUploader = newMinioUploader
	}
	up, err := newUploader(in)
	if err != nil {
		return nil, err
	}
	return &uploader{up: up, in: in, step: step}, nil
}

// Register registers the handler with the engine.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterHandler("s3_upload", &registry.RegisteredHandler{
		NewInput: func() any { return new(Input) },
		Build:    m.build,
	})
}
