package main

import (
	"log"
	"os"
	"strings"

	"gridclash.io/internal/persistence/archive"
)

// openArchiveMirror returns a mirror to an S3-compatible bucket when
// GSYNC_ARCHIVE_ENDPOINT is set, nil otherwise.
func openArchiveMirror(dataDir string, logger *log.Logger) (*archive.Mirror, error) {
	endpoint := strings.TrimSpace(os.Getenv("GSYNC_ARCHIVE_ENDPOINT"))
	if endpoint == "" {
		return nil, nil
	}
	c, err := archive.NewS3Client(archive.S3Config{
		Endpoint:        endpoint,
		Bucket:          os.Getenv("GSYNC_ARCHIVE_BUCKET"),
		Region:          os.Getenv("GSYNC_ARCHIVE_REGION"),
		AccessKeyID:     os.Getenv("GSYNC_ARCHIVE_ACCESS_KEY_ID"),
		SecretAccessKey: os.Getenv("GSYNC_ARCHIVE_SECRET_ACCESS_KEY"),
	})
	if err != nil {
		return nil, err
	}
	return archive.NewMirror(c, dataDir, os.Getenv("GSYNC_ARCHIVE_PREFIX"), 0, logger), nil
}
