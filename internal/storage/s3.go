package storage

import (
	"context"
	"fmt"
	"io"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// S3 はS3互換オブジェクトストレージ上のブロブストレージ実装です（本番環境用）。
// オブジェクトキーは <jobID>/<name> です。
type S3 struct {
	client *minio.Client
	bucket string
}

// S3Options は S3 ストレージの接続設定です。
type S3Options struct {
	Endpoint  string
	Bucket    string
	AccessKey string
	SecretKey string
	UseSSL    bool
}

// NewS3 はバケットの存在を確認して S3 を返します。
func NewS3(ctx context.Context, opts S3Options) (*S3, error) {
	if opts.Endpoint == "" || opts.Bucket == "" {
		return nil, fmt.Errorf("s3 endpoint and bucket are required")
	}

	client, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure: opts.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create s3 client: %w", err)
	}

	exists, err := client.BucketExists(ctx, opts.Bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, opts.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("failed to create bucket: %w", err)
		}
	}

	return &S3{client: client, bucket: opts.Bucket}, nil
}

// Save はブロブをオブジェクトとして保存します。
func (s *S3) Save(ctx context.Context, jobID, name string, r io.Reader) (int64, error) {
	if err := validateKey(jobID, name); err != nil {
		return 0, err
	}
	info, err := s.client.PutObject(ctx, s.bucket, objectKey(jobID, name), r, -1, minio.PutObjectOptions{})
	if err != nil {
		return 0, fmt.Errorf("failed to put object: %w", err)
	}
	return info.Size, nil
}

// Open はオブジェクトの読み取りストリームとサイズを返します。
func (s *S3) Open(ctx context.Context, jobID, name string) (io.ReadCloser, int64, error) {
	if err := validateKey(jobID, name); err != nil {
		return nil, 0, err
	}

	key := objectKey(jobID, name)
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, 0, fmt.Errorf("failed to get object: %w", err)
	}

	// GetObject は遅延読み込みのため、Stat で存在確認を行う
	stat, err := obj.Stat()
	if err != nil {
		obj.Close()
		resp := minio.ToErrorResponse(err)
		if resp.Code == "NoSuchKey" {
			return nil, 0, ErrNotFound
		}
		return nil, 0, fmt.Errorf("failed to stat object: %w", err)
	}
	return obj, stat.Size, nil
}

// DeleteJob はジョブ配下のすべてのオブジェクトを削除します。
func (s *S3) DeleteJob(ctx context.Context, jobID string) error {
	if err := validateKey(jobID, "x"); err != nil {
		return err
	}

	prefix := jobID + "/"
	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if obj.Err != nil {
			return fmt.Errorf("failed to list objects: %w", obj.Err)
		}
		if err := s.client.RemoveObject(ctx, s.bucket, obj.Key, minio.RemoveObjectOptions{}); err != nil {
			return fmt.Errorf("failed to remove object %s: %w", obj.Key, err)
		}
	}
	return nil
}

func objectKey(jobID, name string) string {
	return jobID + "/" + name
}
