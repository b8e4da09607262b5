package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/opentracing/opentracing-go"
	tracingLog "github.com/opentracing/opentracing-go/log"

	"github.com/mailbridge/mailbridge/interfaces"
	er "github.com/mailbridge/mailbridge/internal/errors"
	"github.com/mailbridge/mailbridge/internal/logger"
	"github.com/mailbridge/mailbridge/internal/models"
	"github.com/mailbridge/mailbridge/internal/tracing"
	"github.com/mailbridge/mailbridge/internal/utils"
)

// LocalStorageService keeps accepted attachments in a single flat
// directory. Files are the only persisted state of the relay.
type LocalStorageService struct {
	root string
	log  logger.Logger
}

func NewLocalStorageService(root string, log logger.Logger) interfaces.StorageService {
	return &LocalStorageService{
		root: root,
		log:  log,
	}
}

func (s *LocalStorageService) EnsureRoot() error {
	if err := os.MkdirAll(s.root, 0o755); err != nil {
		return er.Wrapf(er.KindStorage, err, "failed to create attachments directory %s", s.root)
	}
	return nil
}

// Persist writes the payload under {epochMillis}_{originalFilename}.
// The millisecond prefix keeps same-named attachments from colliding
// within one process lifetime.
func (s *LocalStorageService) Persist(ctx context.Context, payload models.AttachmentPayload) (*models.AttachmentRef, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "LocalStorageService.Persist")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	span.SetTag("filename", payload.Filename)
	span.SetTag("size", len(payload.Content))

	name := fmt.Sprintf("%d_%s", time.Now().UnixMilli(), filepath.Base(payload.Filename))
	path := filepath.Join(s.root, name)

	if err := os.WriteFile(path, payload.Content, 0o644); err != nil {
		err = er.Wrapf(er.KindStorage, err, "failed to write attachment %s", path)
		tracing.TraceErr(span, err)
		return nil, err
	}

	return &models.AttachmentRef{
		ID:          utils.GenerateAttachmentID(),
		Filename:    payload.Filename,
		StoragePath: path,
		ContentType: payload.ContentType,
		Size:        int64(len(payload.Content)),
	}, nil
}

// Remove deletes one stored attachment after a successful forward.
func (s *LocalStorageService) Remove(ctx context.Context, ref models.AttachmentRef) error {
	span, _ := opentracing.StartSpanFromContext(ctx, "LocalStorageService.Remove")
	defer span.Finish()
	span.SetTag("path", ref.StoragePath)

	if err := os.Remove(ref.StoragePath); err != nil {
		err = er.Wrapf(er.KindStorage, err, "failed to remove attachment %s", ref.StoragePath)
		tracing.TraceErr(span, err)
		return err
	}
	return nil
}

// Sweep deletes stored files strictly older than maxAgeDays,
// regardless of whether they were ever forwarded. Per-file errors are
// logged and the sweep keeps going.
func (s *LocalStorageService) Sweep(ctx context.Context, maxAgeDays int) (int, error) {
	span, _ := opentracing.StartSpanFromContext(ctx, "LocalStorageService.Sweep")
	defer span.Finish()
	span.SetTag("max_age_days", maxAgeDays)

	entries, err := os.ReadDir(s.root)
	if err != nil {
		err = er.Wrapf(er.KindStorage, err, "failed to read attachments directory %s", s.root)
		tracing.TraceErr(span, err)
		return 0, err
	}

	cutoff := time.Now().Add(-time.Duration(maxAgeDays) * 24 * time.Hour)
	removed := 0

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			s.log.Warnf("Sweep: failed to stat %s: %v", entry.Name(), err)
			continue
		}

		// Strict inequality: a file exactly at the boundary stays.
		if !info.ModTime().Before(cutoff) {
			continue
		}

		path := filepath.Join(s.root, entry.Name())
		if err := os.Remove(path); err != nil {
			s.log.Warnf("Sweep: failed to remove %s: %v", path, err)
			continue
		}
		removed++
	}

	span.LogFields(tracingLog.Int("removed", removed))
	if removed > 0 {
		s.log.Infof("Retention sweep removed %d attachment file(s) older than %d days", removed, maxAgeDays)
	}
	return removed, nil
}
