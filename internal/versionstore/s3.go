package versionstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/vk/setupgrid/internal/semver"
)

// S3Config configures the S3 backend.
type S3Config struct {
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	Bucket    string
	Prefix    string
	UseSSL    bool
}

// S3 stores every version as a small JSON object under Prefix.
type S3 struct {
	client *minio.Client
	bucket string
	region string
	prefix string

	initOnce sync.Once
	initErr  error
}

// NewS3 creates an S3 repository. The bucket is created on first use.
func NewS3(cfg S3Config) (*S3, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		return nil, fmt.Errorf("versionstore: s3 endpoint is required")
	}
	access := strings.TrimSpace(cfg.AccessKey)
	secret := strings.TrimSpace(cfg.SecretKey)
	if access == "" || secret == "" {
		return nil, fmt.Errorf("versionstore: s3 access key and secret key are required")
	}
	bucket := strings.TrimSpace(cfg.Bucket)
	if bucket == "" {
		return nil, fmt.Errorf("versionstore: s3 bucket is required")
	}
	region := strings.TrimSpace(cfg.Region)
	if region == "" {
		region = "us-east-1"
	}
	prefix := strings.Trim(strings.TrimSpace(cfg.Prefix), "/")
	if prefix == "" {
		prefix = "setupgrid/versions"
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(access, secret, ""),
		Secure: cfg.UseSSL,
		Region: region,
	})
	if err != nil {
		return nil, fmt.Errorf("versionstore: init s3 client: %w", err)
	}
	return &S3{client: client, bucket: bucket, region: region, prefix: prefix}, nil
}

func (s *S3) ensureBucket(ctx context.Context) error {
	s.initOnce.Do(func() {
		exists, err := s.client.BucketExists(ctx, s.bucket)
		if err != nil {
			s.initErr = err
			return
		}
		if exists {
			return
		}
		s.initErr = s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{Region: s.region})
	})
	return s.initErr
}

func (s *S3) objectKey(itemType, fullName string) string {
	return s.prefix + "/" + itemType + "/" + fullName + ".json"
}

func (s *S3) GetVersion(ctx context.Context, itemType, fullName string) (semver.Version, error) {
	if err := checkKey(itemType, fullName); err != nil {
		return semver.Version{}, err
	}
	if err := s.ensureBucket(ctx); err != nil {
		return semver.Version{}, fmt.Errorf("versionstore: ensure bucket: %w", err)
	}
	obj, err := s.client.GetObject(ctx, s.bucket, s.objectKey(itemType, fullName), minio.GetObjectOptions{})
	if err != nil {
		return semver.Version{}, err
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		errResp := minio.ToErrorResponse(err)
		if errResp.Code == "NoSuchKey" || errResp.Code == "NoSuchBucket" {
			return semver.Version{}, nil
		}
		return semver.Version{}, err
	}
	var r Record
	if err := json.Unmarshal(data, &r); err != nil {
		return semver.Version{}, fmt.Errorf("versionstore: decode %s: %w", Key(itemType, fullName), err)
	}
	return r.Version, nil
}

func (s *S3) SetVersion(ctx context.Context, itemType, fullName string, v semver.Version) error {
	if err := checkKey(itemType, fullName); err != nil {
		return err
	}
	if err := checkVersion(v); err != nil {
		return err
	}
	if err := s.ensureBucket(ctx); err != nil {
		return fmt.Errorf("versionstore: ensure bucket: %w", err)
	}
	data, err := json.Marshal(Record{ItemType: itemType, FullName: fullName, Version: v})
	if err != nil {
		return err
	}
	_, err = s.client.PutObject(ctx, s.bucket, s.objectKey(itemType, fullName), bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: "application/json",
	})
	if err != nil {
		return fmt.Errorf("versionstore: put %s: %w", Key(itemType, fullName), err)
	}
	return nil
}

func (s *S3) List(ctx context.Context) ([]Record, error) {
	if err := s.ensureBucket(ctx); err != nil {
		return nil, fmt.Errorf("versionstore: ensure bucket: %w", err)
	}
	var out []Record
	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{
		Prefix:    s.prefix + "/",
		Recursive: true,
	}) {
		if obj.Err != nil {
			return nil, obj.Err
		}
		rel := strings.TrimSuffix(strings.TrimPrefix(obj.Key, s.prefix+"/"), ".json")
		itemType, fullName, ok := strings.Cut(rel, "/")
		if !ok {
			continue
		}
		v, err := s.GetVersion(ctx, itemType, fullName)
		if err != nil {
			return nil, err
		}
		out = append(out, Record{ItemType: itemType, FullName: fullName, Version: v})
	}
	sortRecords(out)
	return out, nil
}
