// Package backup snapshots the ledger database and optionally ships the
// snapshot to S3-compatible object storage.
package backup

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"

	"github.com/steward-fi/steward/internal/config"
	"github.com/steward-fi/steward/internal/database"
)

// localRetention is how many local snapshots are kept
const localRetention = 7

// Service snapshots the ledger database with VACUUM INTO, verifies the
// copy, and uploads it when object storage is configured. Snapshots are
// plain SQLite files, restorable by pointing the server at one.
type Service struct {
	ledger    *database.DB
	backupDir string
	cfg       config.BackupConfig
	uploader  *manager.Uploader
	log       zerolog.Logger
}

// New creates a backup service. The S3 client is only built when a bucket
// is configured; without one the service keeps local snapshots only.
func New(ledger *database.DB, backupDir string, cfg config.BackupConfig, log zerolog.Logger) (*Service, error) {
	s := &Service{
		ledger:    ledger,
		backupDir: backupDir,
		cfg:       cfg,
		log:       log.With().Str("service", "backup").Logger(),
	}

	if cfg.Bucket != "" {
		client, err := newS3Client(cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to build S3 client: %w", err)
		}
		s.uploader = manager.NewUploader(client)
	}

	return s, nil
}

func newS3Client(cfg config.BackupConfig) (*s3.Client, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(),
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		),
	)
	if err != nil {
		return nil, err
	}

	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	}), nil
}

// UploadLedger takes a verified snapshot of the ledger database, rotates
// local copies, and uploads the snapshot when a bucket is configured.
func (s *Service) UploadLedger() error {
	if err := os.MkdirAll(s.backupDir, 0755); err != nil {
		return fmt.Errorf("failed to create backup directory: %w", err)
	}

	name := fmt.Sprintf("ledger_%s.db", time.Now().UTC().Format("2006-01-02_150405"))
	path := filepath.Join(s.backupDir, name)

	if err := s.snapshot(path); err != nil {
		return err
	}

	if err := s.verify(path); err != nil {
		os.Remove(path)
		return fmt.Errorf("snapshot verification failed: %w", err)
	}

	if err := s.rotate(); err != nil {
		// The snapshot itself succeeded
		s.log.Error().Err(err).Msg("Failed to rotate local snapshots")
	}

	if s.uploader == nil {
		s.log.Info().Str("path", path).Msg("Ledger snapshot created")
		return nil
	}

	if err := s.upload(path, name); err != nil {
		return err
	}

	s.log.Info().Str("path", path).Str("bucket", s.cfg.Bucket).Msg("Ledger snapshot uploaded")
	return nil
}

// snapshot writes an atomic copy of the ledger with VACUUM INTO. The copy
// carries no WAL file and is compacted as a side effect.
func (s *Service) snapshot(path string) error {
	if _, err := s.ledger.Conn().Exec(fmt.Sprintf("VACUUM INTO '%s'", path)); err != nil {
		return fmt.Errorf("VACUUM INTO failed: %w", err)
	}
	return nil
}

// verify opens the snapshot and runs an integrity check
func (s *Service) verify(path string) error {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return fmt.Errorf("failed to open snapshot: %w", err)
	}
	defer db.Close()

	var result string
	if err := db.QueryRow("PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("integrity check failed to run: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("integrity check reported: %s", result)
	}

	var count int
	if err := db.QueryRow("SELECT COUNT(*) FROM orders").Scan(&count); err != nil {
		return fmt.Errorf("snapshot is missing the orders table: %w", err)
	}

	return nil
}

// rotate removes local snapshots beyond the retention count, oldest first
func (s *Service) rotate() error {
	entries, err := os.ReadDir(s.backupDir)
	if err != nil {
		return err
	}

	var snapshots []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasPrefix(entry.Name(), "ledger_") && strings.HasSuffix(entry.Name(), ".db") {
			snapshots = append(snapshots, entry.Name())
		}
	}

	if len(snapshots) <= localRetention {
		return nil
	}

	// Timestamped names sort chronologically
	sort.Strings(snapshots)
	for _, name := range snapshots[:len(snapshots)-localRetention] {
		if err := os.Remove(filepath.Join(s.backupDir, name)); err != nil {
			return err
		}
	}

	return nil
}

func (s *Service) upload(path, name string) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open snapshot for upload: %w", err)
	}
	defer file.Close()

	key := name
	if s.cfg.Prefix != "" {
		key = strings.TrimSuffix(s.cfg.Prefix, "/") + "/" + name
	}

	_, err = s.uploader.Upload(context.Background(), &s3.PutObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(key),
		Body:   file,
	})
	if err != nil {
		return fmt.Errorf("failed to upload snapshot: %w", err)
	}

	return nil
}
