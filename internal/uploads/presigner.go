package uploads

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
)

const presignExpiry = time.Hour

var (
	// ErrInvalidConfig indicates incomplete S3 settings.
	ErrInvalidConfig = errors.New("uploads: invalid presigner config")
	// ErrInvalidMime indicates an empty or unusable content type.
	ErrInvalidMime = errors.New("uploads: mime type required")
)

// PresignerConfig carries the object-storage settings. Static credentials
// plus a custom endpoint cover MinIO-style deployments as well as AWS.
type PresignerConfig struct {
	Endpoint  string
	Region    string
	Bucket    string
	PublicURL string
	AccessKey string
	SecretKey string
}

// Complete reports whether the settings are sufficient to presign uploads.
func (c PresignerConfig) Complete() bool {
	return strings.TrimSpace(c.Bucket) != "" &&
		strings.TrimSpace(c.PublicURL) != "" &&
		strings.TrimSpace(c.AccessKey) != "" &&
		strings.TrimSpace(c.SecretKey) != ""
}

// PresignedUpload is the one-hour upload grant returned to the client.
type PresignedUpload struct {
	URL       string `json:"url"`
	PublicURL string `json:"publicUrl"`
	Key       string `json:"key"`
}

// Presigner hands out presigned PUT URLs for task attachments.
type Presigner struct {
	config PresignerConfig
}

// NewPresigner constructs a presigner with validated configuration.
func NewPresigner(cfg PresignerConfig) (*Presigner, error) {
	if !cfg.Complete() {
		return nil, fmt.Errorf("%w: bucket, public url and credentials are required", ErrInvalidConfig)
	}
	if strings.TrimSpace(cfg.Region) == "" {
		cfg.Region = "us-east-1"
	}
	return &Presigner{config: cfg}, nil
}

func (p *Presigner) presignClient(ctx context.Context) (*s3.PresignClient, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(p.config.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			p.config.AccessKey,
			p.config.SecretKey,
			"",
		)))
	if err != nil {
		return nil, err
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if strings.TrimSpace(p.config.Endpoint) != "" {
			o.BaseEndpoint = aws.String(p.config.Endpoint)
		}
		o.UsePathStyle = true
	})

	return s3.NewPresignClient(client), nil
}

// PresignPut returns a presigned PUT URL for a fresh object key derived from
// the declared content type.
func (p *Presigner) PresignPut(ctx context.Context, mime string) (PresignedUpload, error) {
	mime = strings.TrimSpace(mime)
	if mime == "" {
		return PresignedUpload{}, ErrInvalidMime
	}

	client, err := p.presignClient(ctx)
	if err != nil {
		return PresignedUpload{}, err
	}

	key := storageKey(mime)
	request, err := client.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(p.config.Bucket),
		Key:         aws.String(key),
		ContentType: aws.String(mime),
	}, func(o *s3.PresignOptions) {
		o.Expires = presignExpiry
	})
	if err != nil {
		return PresignedUpload{}, err
	}

	return PresignedUpload{
		URL:       request.URL,
		PublicURL: strings.TrimRight(p.config.PublicURL, "/") + "/" + key,
		Key:       key,
	}, nil
}

// storageKey derives a fresh object key with an extension taken from the
// mime subtype, falling back to "bin".
func storageKey(mime string) string {
	extension := "bin"
	if _, subtype, found := strings.Cut(mime, "/"); found && subtype != "" {
		extension = subtype
	}
	return uuid.NewString() + "." + extension
}
