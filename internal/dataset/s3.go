package dataset

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// parseS3URI splits s3://bucket/key into its parts.
func parseS3URI(uri string) (bucket, key string, err error) {
	u, err := url.Parse(uri)
	if err != nil {
		return "", "", fmt.Errorf("parse s3 uri: %w", err)
	}
	if !strings.EqualFold(u.Scheme, "s3") {
		return "", "", fmt.Errorf("not an s3 uri: %s", uri)
	}
	bucket = u.Host
	key = strings.TrimPrefix(u.Path, "/")
	if bucket == "" || key == "" {
		return "", "", fmt.Errorf("s3 uri must be s3://bucket/key: %s", uri)
	}
	return bucket, key, nil
}

func newS3Client(ctx context.Context, opt S3Options) (*s3.Client, error) {
	var loadOpts []func(*awsconfig.LoadOptions) error
	if opt.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(opt.Region))
	}
	if opt.AccessKeyID != "" && opt.SecretAccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opt.AccessKeyID, opt.SecretAccessKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws configuration: %w", err)
	}
	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if opt.Endpoint != "" {
			o.BaseEndpoint = aws.String(opt.Endpoint)
			o.UsePathStyle = true
		}
	}), nil
}

// s3ETag returns the object's ETag, used as its fingerprint.
func s3ETag(ctx context.Context, src Source) (string, error) {
	bucket, key, err := parseS3URI(src.Path)
	if err != nil {
		return "", err
	}
	client, err := newS3Client(ctx, src.S3)
	if err != nil {
		return "", err
	}
	out, err := client.HeadObject(ctx, &s3.HeadObjectInput{Bucket: aws.String(bucket), Key: aws.String(key)})
	if err != nil {
		return "", fmt.Errorf("head s3 object: %w", err)
	}
	return strings.Trim(aws.ToString(out.ETag), `"`), nil
}

// downloadS3 copies the object into a temp file that keeps the key's extension
// and returns the ETag of the bytes it read. The caller removes the file.
func downloadS3(ctx context.Context, src Source) (string, string, error) {
	bucket, key, err := parseS3URI(src.Path)
	if err != nil {
		return "", "", err
	}
	client, err := newS3Client(ctx, src.S3)
	if err != nil {
		return "", "", err
	}
	out, err := client.GetObject(ctx, &s3.GetObjectInput{Bucket: aws.String(bucket), Key: aws.String(key)})
	if err != nil {
		return "", "", fmt.Errorf("get s3 object: %w", err)
	}
	defer out.Body.Close()

	tmp, err := os.CreateTemp("", "macindex-*"+path.Ext(key))
	if err != nil {
		return "", "", fmt.Errorf("create temp file: %w", err)
	}
	if _, err := io.Copy(tmp, out.Body); err != nil {
		tmp.Close()
		_ = os.Remove(tmp.Name())
		return "", "", fmt.Errorf("download s3 object: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return "", "", fmt.Errorf("close temp file: %w", err)
	}
	return tmp.Name(), strings.Trim(aws.ToString(out.ETag), `"`), nil
}
