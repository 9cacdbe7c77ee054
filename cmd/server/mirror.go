package main

import (
	"log"
	"os"
	"strings"
	"time"

	"plotland.farm/internal/persistence/r2s3"
)

// openMirrorFromEnv builds an S3-compatible upload mirror for snapshots and
// milestone archives. Disabled unless PL_R2_ENDPOINT, PL_R2_BUCKET,
// PL_R2_ACCESS_KEY_ID and PL_R2_SECRET_ACCESS_KEY are all set.
func openMirrorFromEnv(dataDir string, logger *log.Logger) *r2s3.Mirror {
	endpoint := strings.TrimSpace(os.Getenv("PL_R2_ENDPOINT"))
	bucket := strings.TrimSpace(os.Getenv("PL_R2_BUCKET"))
	accessKey := strings.TrimSpace(os.Getenv("PL_R2_ACCESS_KEY_ID"))
	secretKey := strings.TrimSpace(os.Getenv("PL_R2_SECRET_ACCESS_KEY"))
	if endpoint == "" && bucket == "" && accessKey == "" && secretKey == "" {
		return nil
	}

	client, err := r2s3.New(r2s3.Config{
		Endpoint:        endpoint,
		Bucket:          bucket,
		AccessKeyID:     accessKey,
		SecretAccessKey: secretKey,
	})
	if err != nil {
		logger.Printf("r2 mirror disabled: %v", err)
		return nil
	}

	prefix := strings.TrimSpace(os.Getenv("PL_R2_PREFIX"))
	workers := envInt("PL_R2_WORKERS", 2)

	logger.Printf("r2 mirror enabled bucket=%s prefix=%s workers=%d", bucket, prefix, workers)
	return r2s3.NewMirror(client, r2s3.MirrorConfig{
		DataDir:       dataDir,
		Prefix:        prefix,
		Workers:       workers,
		QueueCapacity: envInt("PL_R2_QUEUE_CAPACITY", 2048),
		EnqueueWait:   time.Duration(envInt("PL_R2_ENQUEUE_WAIT_MS", 25)) * time.Millisecond,
		Logger:        logger,
	})
}
