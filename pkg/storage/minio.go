// Package storage提供了把 PDF 报告归档到对象存储（MinIO）的功能。
package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"path"
	"time"

	"medifusion-go/internal/config"
	"medifusion-go/pkg/log"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// objectStore 是 *minio.Client 中被用到的部分。
type objectStore interface {
	BucketExists(ctx context.Context, bucketName string) (bool, error)
	MakeBucket(ctx context.Context, bucketName string, opts minio.MakeBucketOptions) error
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	PresignedGetObject(ctx context.Context, bucketName, objectName string, expires time.Duration, reqParams url.Values) (*url.URL, error)
}

// ReportArchive 把报告上传到存储桶，并返回带时效的下载链接。
type ReportArchive struct {
	client objectStore
	bucket string
	expiry time.Duration
}

// NewReportArchive 初始化 MinIO 客户端并确保指定的存储桶存在。
// Endpoint 为空时返回 nil, nil，表示不启用归档。
func NewReportArchive(ctx context.Context, cfg config.MinIOConfig) (*ReportArchive, error) {
	if cfg.Endpoint == "" {
		return nil, nil
	}

	// 1. 初始化 MinIO 客户端
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("初始化 MinIO 客户端失败: %w", err)
	}
	log.Info("MinIO 客户端初始化成功")

	expiry := time.Duration(cfg.URLExpireMinute) * time.Minute
	if expiry <= 0 {
		expiry = time.Hour
	}
	a := &ReportArchive{client: client, bucket: cfg.BucketName, expiry: expiry}

	// 2. 检查存储桶 (Bucket) 是否存在，如果不存在则创建
	if err := a.ensureBucket(ctx); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *ReportArchive) ensureBucket(ctx context.Context) error {
	exists, err := a.client.BucketExists(ctx, a.bucket)
	if err != nil {
		return fmt.Errorf("检查 MinIO 存储桶失败: %w", err)
	}
	if exists {
		log.Infof("存储桶 '%s' 已存在", a.bucket)
		return nil
	}
	log.Infof("存储桶 '%s' 不存在，正在创建...", a.bucket)
	if err := a.client.MakeBucket(ctx, a.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("创建 MinIO 存储桶失败: %w", err)
	}
	log.Infof("存储桶 '%s' 创建成功", a.bucket)
	return nil
}

// ObjectName 返回报告在存储桶中的对象名：reports/<clientID>/<时间戳>-<fileName>。
func ObjectName(clientID, fileName string, at time.Time) string {
	return path.Join("reports", clientID, at.UTC().Format("20060102T150405Z")+"-"+fileName)
}

// Upload 上传 PDF 并返回预签名下载链接。
func (a *ReportArchive) Upload(ctx context.Context, objectName string, data []byte) (string, error) {
	_, err := a.client.PutObject(ctx, a.bucket, objectName, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: "application/pdf",
	})
	if err != nil {
		return "", fmt.Errorf("上传报告失败: %w", err)
	}

	u, err := a.client.PresignedGetObject(ctx, a.bucket, objectName, a.expiry, nil)
	if err != nil {
		log.Errorf("Error generating presigned URL: %s", err)
		return "", fmt.Errorf("生成预签名链接失败: %w", err)
	}
	return u.String(), nil
}
