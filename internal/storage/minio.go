package storage

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/minio/minio-go/v7/pkg/lifecycle"

	"valentinequest/internal/config"
)

// ExportPrefix 是导出 CSV 在 Bucket 中的目录，生命周期规则只作用于该前缀。
const ExportPrefix = "exports/"

const exportLifecycleRuleID = "expire-candidate-exports"

// Client 封装 MinIO 客户端，用于保存候选人导出文件并签发下载链接。
// 内部地址负责读写，公开地址只用来签名，保证链接的 Host 对浏览器可达。
type Client struct {
	internalClient *minio.Client
	publicClient   *minio.Client
	bucketName     string
}

// NewClient 根据配置初始化 MinIO 客户端，确保 Bucket 存在并挂上导出过期规则。
func NewClient(cfg config.MinIOConfig) (*Client, error) {
	lookup, err := parseBucketLookup(cfg.BucketLookup)
	if err != nil {
		return nil, err
	}

	internalClient, err := newMinioClient(cfg, cfg.Endpoint, cfg.UseSSL, lookup)
	if err != nil {
		return nil, fmt.Errorf("init internal minio client: %w", err)
	}

	publicClient := internalClient
	if host, secure, ok, err := publicEndpoint(cfg.PublicEndpoint); err != nil {
		return nil, err
	} else if ok {
		if publicClient, err = newMinioClient(cfg, host, secure, lookup); err != nil {
			return nil, fmt.Errorf("init public minio client: %w", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := ensureBucket(ctx, internalClient, cfg); err != nil {
		return nil, err
	}
	if cfg.ExportRetentionDays > 0 {
		if err := internalClient.SetBucketLifecycle(ctx, cfg.Bucket, exportLifecycle(cfg.ExportRetentionDays)); err != nil {
			return nil, fmt.Errorf("set lifecycle on bucket %q: %w", cfg.Bucket, err)
		}
	}

	return &Client{
		internalClient: internalClient,
		publicClient:   publicClient,
		bucketName:     cfg.Bucket,
	}, nil
}

func parseBucketLookup(raw string) (minio.BucketLookupType, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "auto":
		return minio.BucketLookupAuto, nil
	case "dns":
		return minio.BucketLookupDNS, nil
	case "path":
		return minio.BucketLookupPath, nil
	default:
		return minio.BucketLookupAuto, fmt.Errorf("invalid minio bucket lookup %q", raw)
	}
}

// publicEndpoint 解析对外地址；为空时返回 ok=false，沿用内部客户端。
func publicEndpoint(raw string) (host string, secure bool, ok bool, err error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false, false, nil
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return "", false, false, fmt.Errorf("parse minio public endpoint: %w", err)
	}
	if parsed.Host == "" {
		return "", false, false, fmt.Errorf("invalid minio public endpoint %q, host missing", raw)
	}
	return parsed.Host, parsed.Scheme == "https", true, nil
}

func newMinioClient(cfg config.MinIOConfig, endpoint string, secure bool, lookup minio.BucketLookupType) (*minio.Client, error) {
	return minio.New(endpoint, &minio.Options{
		Creds:        credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure:       secure,
		Region:       cfg.Region,
		BucketLookup: lookup,
	})
}

func ensureBucket(ctx context.Context, client *minio.Client, cfg config.MinIOConfig) error {
	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return fmt.Errorf("check bucket %q: %w", cfg.Bucket, err)
	}
	if exists {
		return nil
	}
	if !cfg.AutoCreateBucket {
		return fmt.Errorf("bucket %q does not exist (auto create disabled)", cfg.Bucket)
	}
	if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{Region: cfg.Region}); err != nil {
		return fmt.Errorf("make bucket %q: %w", cfg.Bucket, err)
	}
	return nil
}

// exportLifecycle 让导出文件在 days 天后由 MinIO 自动删除。
func exportLifecycle(days int) *lifecycle.Configuration {
	lc := lifecycle.NewConfiguration()
	lc.Rules = []lifecycle.Rule{{
		ID:         exportLifecycleRuleID,
		Status:     "Enabled",
		RuleFilter: lifecycle.Filter{Prefix: ExportPrefix},
		Expiration: lifecycle.Expiration{Days: lifecycle.ExpirationDays(days)},
	}}
	return lc
}

// ExportObjectKey 返回某个导出任务的 CSV 在 Bucket 中的位置。
func ExportObjectKey(exportID string) string {
	return ExportPrefix + exportID + ".csv"
}

// UploadFile 将对象上传到私有 Bucket，并返回上传结果。
func (c *Client) UploadFile(ctx context.Context, objectName string, reader io.Reader, size int64, contentType string) (*minio.UploadInfo, error) {
	opts := minio.PutObjectOptions{ContentType: contentType}
	info, err := c.internalClient.PutObject(ctx, c.bucketName, objectName, reader, size, opts)
	if err != nil {
		return nil, fmt.Errorf("put object %q: %w", objectName, err)
	}
	return &info, nil
}

// ObjectExists 检查对象是否仍在 Bucket 中（可能已被生命周期规则清理）。
func (c *Client) ObjectExists(ctx context.Context, objectKey string) (bool, error) {
	if _, err := c.internalClient.StatObject(ctx, c.bucketName, objectKey, minio.StatObjectOptions{}); err != nil {
		if IsNoSuchKey(err) {
			return false, nil
		}
		return false, fmt.Errorf("stat object %q: %w", objectKey, err)
	}
	return true, nil
}

// GenerateDownloadURL 生成带 Content-Disposition 的限时下载链接。
func (c *Client) GenerateDownloadURL(ctx context.Context, objectKey, filename string, duration time.Duration) (string, error) {
	presignedURL, err := c.publicClient.PresignedGetObject(ctx, c.bucketName, objectKey, duration, downloadParams(filename))
	if err != nil {
		return "", fmt.Errorf("generate presigned url for %q: %w", objectKey, err)
	}
	return presignedURL.String(), nil
}

func downloadParams(filename string) url.Values {
	params := url.Values{}
	if filename != "" {
		params.Set("response-content-disposition", fmt.Sprintf("attachment; filename=%q", filename))
		params.Set("response-content-type", "text/csv; charset=utf-8")
	}
	return params
}
