// internal/services/storage_service.go
package services

import (
	"errors"
	"fmt"
	"mime/multipart"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/medvault/medvault-backend/internal/config"
)

// StorageService stores record attachments in S3.
type StorageService struct {
	s3Client *s3.S3
	uploader *s3manager.Uploader
	bucket   string
}

type UploadResult struct {
	Key         string `json:"key"`
	URL         string `json:"url"`
	ContentType string `json:"content_type"`
}

const maxAttachmentSize = 25 << 20 // 25 MB

// allowedAttachmentTypes maps the file extensions accepted for medical
// record attachments to their content types.
var allowedAttachmentTypes = map[string]string{
	".pdf":  "application/pdf",
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".dcm":  "application/dicom",
}

func NewStorageService(cfg *config.Config) (*StorageService, error) {
	sess, err := session.NewSession(&aws.Config{
		Region: aws.String(cfg.AWS.Region),
		Credentials: credentials.NewStaticCredentials(
			cfg.AWS.AccessKeyID,
			cfg.AWS.SecretAccessKey,
			"",
		),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS session: %w", err)
	}

	return &StorageService{
		s3Client: s3.New(sess),
		uploader: s3manager.NewUploader(sess),
		bucket:   cfg.AWS.S3Bucket,
	}, nil
}

// UploadRecordFile validates and uploads an attachment under the record's
// folder, returning the stored key and public URL.
func (s *StorageService) UploadRecordFile(fileHeader *multipart.FileHeader, recordID int64) (*UploadResult, error) {
	if fileHeader.Size > maxAttachmentSize {
		return nil, errors.New("file exceeds maximum attachment size")
	}

	ext := strings.ToLower(filepath.Ext(fileHeader.Filename))
	contentType, ok := allowedAttachmentTypes[ext]
	if !ok {
		return nil, fmt.Errorf("file type %s is not allowed", ext)
	}

	file, err := fileHeader.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	key := fmt.Sprintf("records/%d/%s%s", recordID, uuid.New().String(), ext)

	result, err := s.uploader.Upload(&s3manager.UploadInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        file,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to upload to S3: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"key":       key,
		"record_id": recordID,
		"size":      fileHeader.Size,
	}).Info("Attachment uploaded")

	return &UploadResult{
		Key:         key,
		URL:         result.Location,
		ContentType: contentType,
	}, nil
}

// DeleteFile removes an object from the bucket.
func (s *StorageService) DeleteFile(key string) error {
	_, err := s.s3Client.DeleteObject(&s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to delete from S3: %w", err)
	}
	return nil
}

// GetPresignedURL returns a short-lived download URL for a stored object.
func (s *StorageService) GetPresignedURL(key string, expiry time.Duration) (string, error) {
	req, _ := s.s3Client.GetObjectRequest(&s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})

	url, err := req.Presign(expiry)
	if err != nil {
		return "", fmt.Errorf("failed to presign URL: %w", err)
	}
	return url, nil
}
