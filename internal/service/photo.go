package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"fortunemagnet/internal/logging"
	"fortunemagnet/internal/model"
	"fortunemagnet/internal/repository"
	"fortunemagnet/internal/signedurl"
	"fortunemagnet/internal/storage"
)

// allowedMimes maps accepted image types to the extension used in object keys.
var allowedMimes = map[string]string{
	"image/jpeg": "jpg",
	"image/png":  "png",
	"image/webp": "webp",
	"image/gif":  "gif",
}

const (
	maxSignTTL      = time.Hour
	defaultMaxBytes = 15 << 20
)

// Config carries the photo service settings.
type Config struct {
	Bucket       string
	UploadMethod string
	UploadTTL    time.Duration
	ReadTTL      time.Duration
	MaxBytes     int64
}

// TicketInput is the validated body of a ticket request.
type TicketInput struct {
	FortuneID string
	Mime      string
}

// FinalizeInput is the body of a finalize request.
type FinalizeInput struct {
	FortuneID string
	Bucket    string
	Path      string
	Mime      string
	Width     *int
	Height    *int
	SizeBytes *int64
}

// FinalizeResult is returned after the media record has been written.
type FinalizeResult struct {
	SignedURL string             `json:"signedUrl"`
	Replaced  bool               `json:"replaced"`
	Media     *model.MediaRecord `json:"media,omitempty"`
}

// PhotoService issues upload tickets and records finished uploads.
type PhotoService interface {
	// IssueTicket authorizes one upload for a fortune the caller owns.
	IssueTicket(ctx context.Context, userID string, in TicketInput) (*model.UploadTicket, error)

	// Finalize re-checks rights, upserts the media record and returns a short-lived read URL.
	Finalize(ctx context.Context, userID string, in FinalizeInput) (*FinalizeResult, error)

	// SignOnly returns a fresh read URL for the fortune's photo, or "" when it has none.
	SignOnly(ctx context.Context, userID, fortuneID string, ttl time.Duration) (string, error)

	// GetMedia returns the media record of a fortune.
	GetMedia(ctx context.Context, userID, fortuneID string) (*model.MediaRecord, error)

	// DeletePhoto removes the stored object and its media record.
	DeletePhoto(ctx context.Context, userID, fortuneID string) error
}

// Deps groups the collaborators of the photo service.
type Deps struct {
	Store        storage.Storage
	Fortunes     repository.FortuneRepository
	Entitlements repository.EntitlementRepository
	Media        repository.MediaRepository
	// URLs caches signed read URLs; built over Store when nil.
	URLs   *signedurl.Cache
	Logger *logging.Logger
	Now    func() time.Time
}

type photoService struct {
	store        storage.Storage
	fortunes     repository.FortuneRepository
	entitlements repository.EntitlementRepository
	media        repository.MediaRepository
	urls         *signedurl.Cache
	log          *logging.Logger
	now          func() time.Time
	cfg          Config
}

// NewPhotoService constructs a new PhotoService.
func NewPhotoService(d Deps, cfg Config) PhotoService {
	if cfg.UploadTTL <= 0 {
		cfg.UploadTTL = 2 * time.Minute
	}
	if cfg.ReadTTL <= 0 {
		cfg.ReadTTL = 5 * time.Minute
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = defaultMaxBytes
	}
	if d.Logger == nil {
		d.Logger = logging.Nop()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.URLs == nil {
		d.URLs = signedurl.New(StorageSigner(d.Store), nil, signedurl.WithLogger(d.Logger))
	}
	return &photoService{
		store:        d.Store,
		fortunes:     d.Fortunes,
		entitlements: d.Entitlements,
		media:        d.Media,
		urls:         d.URLs,
		log:          d.Logger.With("photo"),
		now:          d.Now,
		cfg:          cfg,
	}
}

// StorageSigner adapts Storage to the signed URL cache's direct signer.
func StorageSigner(st storage.Storage) signedurl.Signer {
	return signedurl.SignerFunc(func(ctx context.Context, bucket, path string, ttl time.Duration) (string, error) {
		return st.PresignGet(ctx, bucket, path, ttl)
	})
}

// NormalizeMime lower-cases and validates an image MIME type.
func NormalizeMime(mime string) (string, string, error) {
	m := strings.ToLower(strings.TrimSpace(mime))
	if m == "image/jpg" {
		m = "image/jpeg"
	}
	ext, ok := allowedMimes[m]
	if !ok {
		return "", "", ErrUnsupportedMime
	}
	return m, ext, nil
}

func (s *photoService) IssueTicket(ctx context.Context, userID string, in TicketInput) (*model.UploadTicket, error) {
	if userID == "" {
		return nil, ErrUnauthenticated
	}
	mime, ext, err := NormalizeMime(in.Mime)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, userID, in.FortuneID, true); err != nil {
		return nil, err
	}

	path := objectPath(userID, in.FortuneID, ext)
	grant, err := s.store.PresignUpload(ctx, s.cfg.Bucket, path, storage.PresignUploadOptions{
		ContentType: mime,
		Method:      s.cfg.UploadMethod,
		Expiry:      s.cfg.UploadTTL,
		MaxBytes:    s.cfg.MaxBytes,
	})
	if err != nil {
		s.log.Error("ticket_failed", err, map[string]any{"fortune_id": in.FortuneID})
		return nil, stepErr("presign", err)
	}

	ticket := &model.UploadTicket{
		Bucket:        s.cfg.Bucket,
		Path:          path,
		UploadURL:     grant.URL,
		UploadMethod:  grant.Method,
		Token:         urlToken(grant.URL),
		Headers:       grant.Headers,
		FormFieldName: grant.FormFieldName,
		FormFields:    grant.FormFields,
		ExpiresAt:     grant.ExpiresAt,
	}
	s.log.Info("ticket_issued", map[string]any{
		"fortune_id":    in.FortuneID,
		"path":          path,
		"upload_method": ticket.UploadMethod,
		"upload_url":    logging.RedactURL(ticket.UploadURL),
	})
	return ticket, nil
}

// urlToken returns the signed-upload token some backends embed in the URL.
func urlToken(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return u.Query().Get("token")
}

// validDimension accepts an omitted value or one that fits a positive int4 column.
func validDimension(v *int) bool {
	return v == nil || (*v > 0 && *v <= math.MaxInt32)
}

// objectPath builds {owner}/{fortune}-{suffix}.{ext}. The suffix keeps two
// uploads for the same fortune from overwriting each other.
func objectPath(userID, fortuneID, ext string) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	return fmt.Sprintf("%s/%s-%s.%s", userID, fortuneID, suffix, ext)
}

func (s *photoService) Finalize(ctx context.Context, userID string, in FinalizeInput) (*FinalizeResult, error) {
	if userID == "" {
		return nil, ErrUnauthenticated
	}
	if in.Bucket == "" {
		in.Bucket = s.cfg.Bucket
	}
	if in.Bucket != s.cfg.Bucket {
		return nil, ErrInvalidBucket
	}
	path, err := signedurl.NormalizePath(in.Bucket, in.Path)
	if err != nil {
		return nil, ErrInvalidPath
	}
	var mime string
	if in.Mime != "" {
		if mime, _, err = NormalizeMime(in.Mime); err != nil {
			return nil, err
		}
	}
	if !validDimension(in.Width) || !validDimension(in.Height) || (in.SizeBytes != nil && *in.SizeBytes < 0) {
		return nil, ErrInvalidDimension
	}
	if err := s.authorize(ctx, userID, in.FortuneID, true); err != nil {
		return nil, err
	}
	if !strings.HasPrefix(path, userID+"/") {
		return nil, ErrNotOwner
	}

	info, err := s.store.Stat(ctx, in.Bucket, path)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return nil, ErrObjectMissing
		}
		return nil, stepErr("verify", err)
	}
	if mime == "" {
		if mime, _, err = NormalizeMime(info.ContentType); err != nil {
			return nil, err
		}
	}
	size := in.SizeBytes
	if size == nil && info.Size > 0 {
		sz := info.Size
		size = &sz
	}

	prev, err := s.media.FindByFortuneID(ctx, in.FortuneID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, stepErr("lookup", err)
	}

	stored, err := s.media.Upsert(ctx, &model.MediaRecord{
		FortuneID: in.FortuneID,
		Bucket:    in.Bucket,
		Path:      path,
		MimeType:  mime,
		Width:     in.Width,
		Height:    in.Height,
		SizeBytes: size,
	})
	if err != nil {
		s.log.Error("finalize_failed", err, map[string]any{"fortune_id": in.FortuneID, "step": "upsert"})
		return nil, stepErr("upsert", err)
	}

	if prev != nil {
		s.urls.ClearFor(prev.Bucket, prev.Path)
		if prev.Path != stored.Path {
			s.removeReplaced(ctx, prev)
		}
	}

	signed, err := s.urls.Get(ctx, signedurl.Request{
		Bucket:  stored.Bucket,
		Path:    stored.Path,
		TTL:     s.cfg.ReadTTL,
		Version: stored.Version(),
	})
	if err != nil {
		s.log.Error("finalize_failed", err, map[string]any{"fortune_id": in.FortuneID, "step": "sign"})
		return nil, stepErr("sign", err)
	}

	s.log.Info("photo_finalized", map[string]any{
		"fortune_id": in.FortuneID,
		"path":       stored.Path,
		"replaced":   prev != nil,
	})
	return &FinalizeResult{SignedURL: signed, Replaced: prev != nil, Media: stored}, nil
}

// removeReplaced deletes the object a replaced record pointed at. Failure
// leaves an orphan object behind but never fails the finalize.
func (s *photoService) removeReplaced(ctx context.Context, prev *model.MediaRecord) {
	if err := s.store.Delete(ctx, prev.Bucket, prev.Path); err != nil {
		s.log.Error("replaced_object_delete_failed", err, map[string]any{
			"fortune_id": prev.FortuneID,
			"path":       prev.Path,
		})
	}
}

func (s *photoService) SignOnly(ctx context.Context, userID, fortuneID string, ttl time.Duration) (string, error) {
	if err := s.authorize(ctx, userID, fortuneID, false); err != nil {
		return "", err
	}
	rec, err := s.media.FindByFortuneID(ctx, fortuneID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", stepErr("lookup", err)
	}
	if ttl <= 0 {
		ttl = s.cfg.ReadTTL
	}
	if ttl > maxSignTTL {
		ttl = maxSignTTL
	}
	u, err := s.urls.Get(ctx, signedurl.Request{
		Bucket:  rec.Bucket,
		Path:    rec.Path,
		TTL:     ttl,
		Version: rec.Version(),
	})
	if err != nil {
		return "", stepErr("sign", err)
	}
	return u, nil
}

func (s *photoService) GetMedia(ctx context.Context, userID, fortuneID string) (*model.MediaRecord, error) {
	if err := s.authorize(ctx, userID, fortuneID, false); err != nil {
		return nil, err
	}
	rec, err := s.media.FindByFortuneID(ctx, fortuneID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrMediaNotFound
		}
		return nil, stepErr("lookup", err)
	}
	return rec, nil
}

func (s *photoService) DeletePhoto(ctx context.Context, userID, fortuneID string) error {
	if err := s.authorize(ctx, userID, fortuneID, false); err != nil {
		return err
	}
	rec, err := s.media.FindByFortuneID(ctx, fortuneID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrMediaNotFound
		}
		return stepErr("lookup", err)
	}
	// Object first: a dangling record is visible and retryable, an orphan object is not.
	if err := s.store.Delete(ctx, rec.Bucket, rec.Path); err != nil {
		return stepErr("delete_object", err)
	}
	if err := s.media.Delete(ctx, fortuneID); err != nil {
		return stepErr("delete_record", err)
	}
	s.urls.ClearFor(rec.Bucket, rec.Path)
	s.log.Info("photo_deleted", map[string]any{"fortune_id": fortuneID, "path": rec.Path})
	return nil
}

// authorize checks authentication, id shape and ownership, and the
// entitlement when requireEntitlement is set.
func (s *photoService) authorize(ctx context.Context, userID, fortuneID string, requireEntitlement bool) error {
	if userID == "" {
		return ErrUnauthenticated
	}
	if _, err := uuid.Parse(fortuneID); err != nil {
		return ErrInvalidFortuneID
	}
	f, err := s.fortunes.FindByID(ctx, fortuneID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrFortuneNotFound
		}
		return stepErr("ownership", err)
	}
	if f.UserID != userID {
		return ErrNotOwner
	}
	if !requireEntitlement {
		return nil
	}

	ent, err := s.entitlements.FindByUser(ctx, userID)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			return stepErr("entitlement", err)
		}
		ent = &model.Entitlement{UserID: userID}
	}
	if !ent.Active(s.now()) {
		return ErrNoEntitlement
	}
	return nil
}
