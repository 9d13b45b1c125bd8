package handlers

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/gin-gonic/gin"

	appConfig "github.com/placehive/placehive-backend/internal/config"
	"github.com/placehive/placehive-backend/pkg/utils"
)

// R2Uploader stores chat attachments in Cloudflare R2 through the S3 API and
// implements the chat package's Uploader contract.
type R2Uploader struct {
	client *s3.Client
	bucket string
	public string
}

func NewR2Uploader() (*R2Uploader, error) {
	cfg := appConfig.AppConfig
	r2Resolver := aws.EndpointResolverWithOptionsFunc(func(service, region string, options ...interface{}) (aws.Endpoint, error) {
		return aws.Endpoint{
			URL: fmt.Sprintf("https://%s.r2.cloudflarestorage.com", cfg.R2AccountID),
		}, nil
	})

	awsCfg, err := awsconfig.LoadDefaultConfig(context.TODO(),
		awsconfig.WithEndpointResolverWithOptions(r2Resolver),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.R2AccessKeyID, cfg.R2SecretAccessKey, "")),
	)
	if err != nil {
		return nil, err
	}

	publicURL := cfg.R2PublicURL
	if publicURL == "" {
		publicURL = fmt.Sprintf("https://%s.r2.dev", cfg.R2BucketName)
	}

	return &R2Uploader{
		client: s3.NewFromConfig(awsCfg),
		bucket: cfg.R2BucketName,
		public: publicURL,
	}, nil
}

func (u *R2Uploader) put(ctx context.Context, key, contentType string, body io.Reader) (string, error) {
	_, err := u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(u.bucket),
		Key:         aws.String(key),
		Body:        body,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s/%s", u.public, key), nil
}

func (u *R2Uploader) UploadImage(ctx context.Context, filename, contentType string, r io.Reader) (string, error) {
	key := fmt.Sprintf("placehive/chat/%s%s", utils.GenerateID(), filepath.Ext(filename))
	return u.put(ctx, key, contentType, r)
}

func (u *R2Uploader) UploadAudio(ctx context.Context, blob []byte, mimeType string) (string, error) {
	ext := ".webm"
	if mimeType == "audio/mp4" {
		ext = ".m4a"
	}
	key := fmt.Sprintf("placehive/voice/%s%s", utils.GenerateID(), ext)
	return u.put(ctx, key, mimeType, bytes.NewReader(blob))
}

// Uploader is the process-wide upload collaborator, set during startup.
var Uploader *R2Uploader

// UploadFile handles direct uploads (place logos, product photos)
func UploadFile(c *gin.Context) {
	if Uploader == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Storage is not configured"})
		return
	}

	file, header, err := c.Request.FormFile("file")
	if err != nil {
		file, header, err = c.Request.FormFile("image")
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "No valid file field found"})
			return
		}
	}
	defer file.Close()

	folder := c.DefaultQuery("folder", "uploads")
	key := fmt.Sprintf("placehive/%s/%s%s", folder, utils.GenerateID(), filepath.Ext(header.Filename))
	url, err := Uploader.put(c.Request.Context(), key, header.Header.Get("Content-Type"), file)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Upload failed: " + err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"url":      url,
		"key":      key,
		"mimetype": header.Header.Get("Content-Type"),
		"size":     header.Size,
	})
}
