package service

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lumenlms/lms-api/internal/authz"
	"github.com/lumenlms/lms-api/internal/models"
	appErrors "github.com/lumenlms/lms-api/pkg/errors"
	"github.com/lumenlms/lms-api/pkg/jobs"
	"github.com/lumenlms/lms-api/pkg/storage"
)

type attachmentRepository interface {
	FindByID(ctx context.Context, id string) (*models.Attachment, error)
	FindByPublicID(ctx context.Context, publicID string) (*models.Attachment, error)
	ListByOwner(ctx context.Context, ownerType, ownerID string) ([]models.Attachment, error)
	Create(ctx context.Context, attachment *models.Attachment) error
	Delete(ctx context.Context, id string) error
}

type blobStore interface {
	Upload(data []byte, opts storage.UploadOptions) (*storage.Blob, error)
	Open(publicID string) (*os.File, error)
	Delete(publicID string) error
}

type urlSigner interface {
	Generate(publicID string) (string, time.Time, error)
	Parse(token string) (string, time.Time, error)
}

// AttachmentConfig bounds what uploads are accepted.
type AttachmentConfig struct {
	MaxFileSizeBytes int64
	AllowedMIMEs     []string
}

// AttachmentService stores uploaded files and their metadata. Blob deletes
// run through the background queue so a slow disk never blocks the request.
type AttachmentService struct {
	repo    attachmentRepository
	blobs   blobStore
	signer  urlSigner
	cleanup *jobs.Queue
	logger  *zap.Logger
	config  AttachmentConfig
}

// NewAttachmentService constructs an AttachmentService instance.
func NewAttachmentService(repo attachmentRepository, blobs blobStore, signer urlSigner, cleanup *jobs.Queue, logger *zap.Logger, config AttachmentConfig) *AttachmentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.MaxFileSizeBytes <= 0 {
		config.MaxFileSizeBytes = 25 << 20
	}
	return &AttachmentService{repo: repo, blobs: blobs, signer: signer, cleanup: cleanup, logger: logger, config: config}
}

// UploadRequest carries an uploaded file and its linkage.
type UploadRequest struct {
	Filename  string
	MimeType  string
	Data      []byte
	OwnerType *string
	OwnerID   *string
}

// SignedDownload points at a stored blob with an expiring token.
type SignedDownload struct {
	URL       string    `json:"url"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Upload validates and stores a file, recording its metadata row.
func (s *AttachmentService) Upload(ctx context.Context, p *authz.Principal, req UploadRequest) (*models.Attachment, error) {
	if d := authz.AnyOf(models.RoleStudent, models.RoleInstructor, models.RoleAdmin).Evaluate(p, ""); !d.Allowed {
		return nil, d.Err()
	}
	if len(req.Data) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "file is empty")
	}
	if int64(len(req.Data)) > s.config.MaxFileSizeBytes {
		return nil, appErrors.Clone(appErrors.ErrValidation, "file exceeds the maximum allowed size")
	}
	if len(s.config.AllowedMIMEs) > 0 && !containsOption(s.config.AllowedMIMEs, req.MimeType) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "file type is not allowed")
	}

	folder := "misc"
	if req.OwnerType != nil && *req.OwnerType != "" {
		folder = *req.OwnerType
	}
	blob, err := s.blobs.Upload(req.Data, storage.UploadOptions{
		Folder:      folder,
		Filename:    req.Filename,
		ContentType: req.MimeType,
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store file")
	}

	attachment := &models.Attachment{
		ID:           uuid.NewString(),
		PublicID:     blob.PublicID,
		SecureURL:    blob.URL,
		OriginalName: req.Filename,
		MimeType:     req.MimeType,
		Size:         blob.Size,
		OwnerType:    req.OwnerType,
		OwnerID:      req.OwnerID,
	}
	if err := s.repo.Create(ctx, attachment); err != nil {
		// Roll the orphaned blob back off disk.
		s.enqueueBlobDelete(blob.PublicID)
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record attachment")
	}
	return attachment, nil
}

// SignDownload returns an expiring download token for an attachment.
func (s *AttachmentService) SignDownload(ctx context.Context, p *authz.Principal, id string) (*SignedDownload, error) {
	if d := authz.AnyOf(models.RoleStudent, models.RoleInstructor, models.RoleAdmin).Evaluate(p, ""); !d.Allowed {
		return nil, d.Err()
	}

	attachment, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "attachment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load attachment")
	}

	token, expiresAt, err := s.signer.Generate(attachment.PublicID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign download")
	}
	return &SignedDownload{URL: attachment.SecureURL, Token: token, ExpiresAt: expiresAt}, nil
}

// AttachmentDownload is an opened blob ready to stream to the client.
type AttachmentDownload struct {
	File     *os.File
	Filename string
	MimeType string
}

// ResolveDownload opens the blob behind a signed token. The token is the
// whole credential, so no session is required.
func (s *AttachmentService) ResolveDownload(ctx context.Context, token string) (*AttachmentDownload, error) {
	publicID, _, err := s.signer.Parse(token)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrUnauthenticated, "download link is invalid or expired")
	}

	attachment, err := s.repo.FindByPublicID(ctx, publicID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "attachment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load attachment")
	}

	file, err := s.blobs.Open(publicID)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "file is no longer available")
	}
	return &AttachmentDownload{File: file, Filename: attachment.OriginalName, MimeType: attachment.MimeType}, nil
}

// ListByOwner returns the attachments linked to a domain entity.
func (s *AttachmentService) ListByOwner(ctx context.Context, p *authz.Principal, ownerType, ownerID string) ([]models.Attachment, error) {
	if d := authz.AnyOf(models.RoleStudent, models.RoleInstructor, models.RoleAdmin).Evaluate(p, ""); !d.Allowed {
		return nil, d.Err()
	}

	attachments, err := s.repo.ListByOwner(ctx, ownerType, ownerID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list attachments")
	}
	return attachments, nil
}

// Delete removes an attachment row and queues the blob for removal. Admin
// only; domain entities own their attachment lifecycles otherwise.
func (s *AttachmentService) Delete(ctx context.Context, p *authz.Principal, id string) error {
	if d := authz.AnyOf(models.RoleAdmin).Evaluate(p, ""); !d.Allowed {
		return d.Err()
	}

	attachment, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "attachment not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load attachment")
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete attachment")
	}

	s.enqueueBlobDelete(attachment.PublicID)
	return nil
}

func (s *AttachmentService) enqueueBlobDelete(publicID string) {
	if s.cleanup == nil {
		if err := s.blobs.Delete(publicID); err != nil {
			s.logger.Warn("failed to delete blob", zap.String("public_id", publicID), zap.Error(err))
		}
		return
	}
	if err := s.cleanup.Enqueue(jobs.Job{
		ID:      uuid.NewString(),
		Type:    "blob.delete",
		Payload: publicID,
	}); err != nil {
		s.logger.Warn("failed to queue blob delete", zap.String("public_id", publicID), zap.Error(err))
	}
}

// BlobCleanupHandler returns the queue handler that deletes blobs.
func BlobCleanupHandler(blobs blobStore) jobs.Handler {
	return func(_ context.Context, job jobs.Job) error {
		publicID, ok := job.Payload.(string)
		if !ok {
			return nil
		}
		return blobs.Delete(publicID)
	}
}
