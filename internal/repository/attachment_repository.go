package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/lumenlms/lms-api/internal/models"
)

// AttachmentRepository provides database access for uploaded files.
type AttachmentRepository struct {
	db *sqlx.DB
}

// NewAttachmentRepository creates a new instance of AttachmentRepository.
func NewAttachmentRepository(db *sqlx.DB) *AttachmentRepository {
	return &AttachmentRepository{db: db}
}

const attachmentColumns = `id, public_id, secure_url, original_name, mime_type, size, owner_type, owner_id, created_at`

// FindByID returns an attachment by identifier.
func (r *AttachmentRepository) FindByID(ctx context.Context, id string) (*models.Attachment, error) {
	query := fmt.Sprintf(`SELECT %s FROM attachments WHERE id = $1 LIMIT 1`, attachmentColumns)
	var attachment models.Attachment
	if err := r.db.GetContext(ctx, &attachment, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find attachment by id: %w", err)
	}
	return &attachment, nil
}

// FindByPublicID returns an attachment by blob store public id.
func (r *AttachmentRepository) FindByPublicID(ctx context.Context, publicID string) (*models.Attachment, error) {
	query := fmt.Sprintf(`SELECT %s FROM attachments WHERE public_id = $1 LIMIT 1`, attachmentColumns)
	var attachment models.Attachment
	if err := r.db.GetContext(ctx, &attachment, query, publicID); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find attachment by public id: %w", err)
	}
	return &attachment, nil
}

// ListByOwner returns the attachments linked to a domain entity.
func (r *AttachmentRepository) ListByOwner(ctx context.Context, ownerType, ownerID string) ([]models.Attachment, error) {
	query := fmt.Sprintf(`SELECT %s FROM attachments WHERE owner_type = $1 AND owner_id = $2 ORDER BY created_at DESC`, attachmentColumns)
	var attachments []models.Attachment
	if err := r.db.SelectContext(ctx, &attachments, query, ownerType, ownerID); err != nil {
		return nil, fmt.Errorf("list attachments by owner: %w", err)
	}
	return attachments, nil
}

// Create persists a new attachment record.
func (r *AttachmentRepository) Create(ctx context.Context, attachment *models.Attachment) error {
	if attachment.ID == "" {
		attachment.ID = uuid.NewString()
	}
	if attachment.CreatedAt.IsZero() {
		attachment.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO attachments (id, public_id, secure_url, original_name, mime_type, size, owner_type, owner_id, created_at)
        VALUES (:id, :public_id, :secure_url, :original_name, :mime_type, :size, :owner_type, :owner_id, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, attachment); err != nil {
		return fmt.Errorf("create attachment: %w", err)
	}
	return nil
}

// Delete removes an attachment record.
func (r *AttachmentRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM attachments WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete attachment: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete attachment rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
