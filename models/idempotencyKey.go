package models

import (
	"bytes"
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/huminex/payroll_backend/appctx"
	"gorm.io/gorm"
)

// IdempotencyRecord is a write-once cache of the response to a mutating request.
// Unique constraint: (tenant_id, idempotency_key, http_method, request_path).
type IdempotencyRecord struct {
	ID                 string    `gorm:"primaryKey;size:36" json:"id"`
	TenantId           string    `gorm:"size:64;not null;index:uniq_idempotency_request,unique" json:"tenantId"`
	IdempotencyKey     string    `gorm:"size:200;not null;index:uniq_idempotency_request,unique" json:"key"`
	HttpMethod         string    `gorm:"size:10;not null;index:uniq_idempotency_request,unique" json:"httpMethod"`
	RequestPath        string    `gorm:"size:400;not null;index:uniq_idempotency_request,unique" json:"requestPath"`
	RequestFingerprint string    `gorm:"size:64;not null" json:"requestFingerprint"`
	StatusCode         int       `gorm:"not null" json:"statusCode"`
	ResponseBodyJson   *string   `gorm:"type:mediumtext" json:"responseBodyJson"`
	CreatedAtUtc       time.Time `gorm:"not null" json:"createdAtUtc"`
	ExpiresAtUtc       time.Time `gorm:"not null;index" json:"expiresAtUtc"`
}

// StoredResponse is the replayable part of an IdempotencyRecord.
type StoredResponse struct {
	StatusCode   int
	Body         []byte
	Fingerprint  string
	CreatedAtUtc time.Time
}

func (s StoredResponse) sameAs(other StoredResponse) bool {
	return s.StatusCode == other.StatusCode &&
		s.Fingerprint == other.Fingerprint &&
		bytes.Equal(s.Body, other.Body)
}

func (rec IdempotencyRecord) response() StoredResponse {
	var body []byte
	if rec.ResponseBodyJson != nil {
		body = []byte(*rec.ResponseBodyJson)
	}
	return StoredResponse{
		StatusCode:   rec.StatusCode,
		Body:         body,
		Fingerprint:  rec.RequestFingerprint,
		CreatedAtUtc: rec.CreatedAtUtc,
	}
}

// IdempotencyStore persists IdempotencyRecord rows.
type IdempotencyStore struct {
	db  *gorm.DB
	Now func() time.Time
}

func NewIdempotencyStore(db *gorm.DB) *IdempotencyStore {
	return &IdempotencyStore{db: db, Now: func() time.Time { return time.Now().UTC() }}
}

func (s *IdempotencyStore) WithTx(tx *gorm.DB) *IdempotencyStore {
	return &IdempotencyStore{db: tx, Now: s.Now}
}

func (s *IdempotencyStore) find(ctx context.Context, tenantID, key, method, path string) (*IdempotencyRecord, error) {
	var rec IdempotencyRecord
	err := s.db.WithContext(ctx).
		Where("tenant_id = ? AND idempotency_key = ? AND http_method = ? AND request_path = ?", tenantID, key, method, path).
		Take(&rec).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &rec, nil
}

// TryGet returns the stored response, or nil when there is none or it has expired.
func (s *IdempotencyStore) TryGet(ctx context.Context, tenantID, key, method, path string) (*StoredResponse, error) {
	if tenantID == "" {
		return nil, ErrMissingTenant
	}
	rec, err := s.find(ctx, tenantID, key, method, path)
	if errors.Is(err, ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if !rec.ExpiresAtUtc.After(s.Now()) {
		return nil, nil
	}
	resp := rec.response()
	return &resp, nil
}

// Put inserts a record. The unique index makes concurrent puts atomic: a put that
// loses to an identical response is a no-op, one that loses to a different response
// returns ErrDuplicateIdempotencyKey. An expired record is replaced.
func (s *IdempotencyStore) Put(ctx context.Context, tenantID, key, method, path string, resp StoredResponse, ttl time.Duration) error {
	if tenantID == "" {
		return ErrMissingTenant
	}
	now := s.Now()
	rec := newIdempotencyRecord(tenantID, key, method, path, resp, now, ttl)

	err := s.db.WithContext(ctx).Create(&rec).Error
	if err == nil {
		return nil
	}
	if !IsDuplicateKeyErr(err) {
		return err
	}

	existing, err := s.find(ctx, tenantID, key, method, path)
	if err != nil {
		return err
	}
	if existing.ExpiresAtUtc.After(now) {
		if existing.response().sameAs(resp) {
			return nil
		}
		return ErrDuplicateIdempotencyKey
	}

	res := s.db.WithContext(ctx).Model(&IdempotencyRecord{}).
		Where("tenant_id = ? AND id = ? AND expires_at_utc <= ?", tenantID, existing.ID, now).
		Updates(map[string]interface{}{
			"request_fingerprint": rec.RequestFingerprint,
			"status_code":         rec.StatusCode,
			"response_body_json":  rec.ResponseBodyJson,
			"created_at_utc":      rec.CreatedAtUtc,
			"expires_at_utc":      rec.ExpiresAtUtc,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		// refreshed by a concurrent request in between
		return ErrDuplicateIdempotencyKey
	}
	return nil
}

func newIdempotencyRecord(tenantID, key, method, path string, resp StoredResponse, now time.Time, ttl time.Duration) IdempotencyRecord {
	rec := IdempotencyRecord{
		ID:                 uuid.NewString(),
		TenantId:           tenantID,
		IdempotencyKey:     key,
		HttpMethod:         method,
		RequestPath:        path,
		RequestFingerprint: resp.Fingerprint,
		StatusCode:         resp.StatusCode,
		CreatedAtUtc:       now,
		ExpiresAtUtc:       now.Add(ttl),
	}
	if len(resp.Body) > 0 {
		body := string(resp.Body)
		rec.ResponseBodyJson = &body
	}
	return rec
}

// Claim inserts the record inside the caller's transaction, after the domain change it
// answers. Any live record for the same request, committed or in flight, makes it return
// ErrDuplicateIdempotencyKey; the caller must then roll back and replay the stored response.
func (s *IdempotencyStore) Claim(ctx context.Context, tenantID, key, method, path string, resp StoredResponse, ttl time.Duration) error {
	if tenantID == "" {
		return ErrMissingTenant
	}
	now := s.Now()
	db := s.db.WithContext(ctx)
	if err := db.
		Where("tenant_id = ? AND idempotency_key = ? AND http_method = ? AND request_path = ? AND expires_at_utc <= ?", tenantID, key, method, path, now).
		Delete(&IdempotencyRecord{}).Error; err != nil {
		return err
	}
	rec := newIdempotencyRecord(tenantID, key, method, path, resp, now, ttl)
	if err := db.Create(&rec).Error; err != nil {
		if IsDuplicateKeyErr(err) {
			return ErrDuplicateIdempotencyKey
		}
		return err
	}
	return nil
}

// DeleteExpired removes up to limit records that expired at or before cutoff, across tenants.
func (s *IdempotencyStore) DeleteExpired(ctx context.Context, cutoff time.Time, limit int) (int64, error) {
	ctx = appctx.CrossTenant(ctx)
	var ids []string
	q := s.db.WithContext(ctx).Model(&IdempotencyRecord{}).
		Where("expires_at_utc <= ?", cutoff).
		Order("expires_at_utc ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Pluck("id", &ids).Error; err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}
	res := s.db.WithContext(ctx).Where("id IN ?", ids).Delete(&IdempotencyRecord{})
	return res.RowsAffected, res.Error
}
