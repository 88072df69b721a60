package minio

import (
	"context"
	"log"

	"github.com/samancikme/fizika/internal/config"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// NewClient creates a MinIO client and makes sure the image bucket exists.
func NewClient(cfg *config.MinIOConfig) (*minio.Client, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		log.Printf("Error initializing MinIO client: %v", err)
		return nil, err
	}

	ctx := context.Background()
	exists, err := client.BucketExists(ctx, cfg.BucketName)
	if err != nil {
		log.Printf("Error checking if bucket %s exists: %v", cfg.BucketName, err)
		return nil, err
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.BucketName, minio.MakeBucketOptions{Region: cfg.Region}); err != nil {
			log.Printf("Error creating bucket %s: %v", cfg.BucketName, err)
			return nil, err
		}
		log.Printf("Created bucket: %s", cfg.BucketName)
	}

	log.Println("Successfully initialized MinIO client")
	return client, nil
}
