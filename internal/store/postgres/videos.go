// Package postgres implements the pipeline's relational store on
// pgxpool, grounded on the advisory-lock-and-row-update idiom in
// content_acquirer.go and the doc-struct mapping convention of the
// teacher's mongo repository (here, row-struct instead of bson doc).
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"pixav/internal/domain"
	"pixav/internal/domain/errs"
)

// VideoStore persists domain.Video rows.
type VideoStore struct {
	pool *pgxpool.Pool
}

func NewVideoStore(pool *pgxpool.Pool) *VideoStore {
	return &VideoStore{pool: pool}
}

type videoRow struct {
	ID        string
	Title     string
	MagnetURI string
	InfoHash  string
	LocalPath *string
	ShareURL  *string
	CDNURL    *string
	Status    string
	Metadata  []byte
	Tags      []string
	CreatedAt time.Time
	UpdatedAt time.Time
}

func fromVideoRow(r videoRow) domain.Video {
	v := domain.Video{
		ID:        domain.VideoID(r.ID),
		Title:     r.Title,
		MagnetURI: r.MagnetURI,
		InfoHash:  domain.InfoHash(r.InfoHash),
		Status:    domain.VideoStatus(r.Status),
		Tags:      r.Tags,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
	if r.LocalPath != nil {
		v.LocalPath = *r.LocalPath
	}
	if r.ShareURL != nil {
		v.ShareURL = *r.ShareURL
	}
	if r.CDNURL != nil {
		v.CDNURL = *r.CDNURL
	}
	if len(r.Metadata) > 0 {
		v.Metadata = json.RawMessage(r.Metadata)
	}
	return v
}

func scanVideo(row pgx.Row) (domain.Video, error) {
	var r videoRow
	err := row.Scan(&r.ID, &r.Title, &r.MagnetURI, &r.InfoHash, &r.LocalPath, &r.ShareURL,
		&r.CDNURL, &r.Status, &r.Metadata, &r.Tags, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Video{}, errs.ErrNotFound
	}
	if err != nil {
		return domain.Video{}, errs.WrapStore("scan video", err)
	}
	return fromVideoRow(r), nil
}

const videoColumns = `id, title, magnet_uri, info_hash, local_path, share_url, cdn_url, status, metadata, tags, created_at, updated_at`

func (s *VideoStore) FindByID(ctx context.Context, id domain.VideoID) (domain.Video, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+videoColumns+` FROM videos WHERE id = $1`, string(id))
	return scanVideo(row)
}

func (s *VideoStore) FindByMagnet(ctx context.Context, magnetURI string) (domain.Video, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+videoColumns+` FROM videos WHERE magnet_uri = $1`, magnetURI)
	return scanVideo(row)
}

func (s *VideoStore) Insert(ctx context.Context, v domain.Video) (domain.Video, error) {
	meta := v.Metadata
	if meta == nil {
		meta = json.RawMessage(`{}`)
	}
	row := s.pool.QueryRow(ctx, `
		INSERT INTO videos (id, title, magnet_uri, info_hash, status, metadata, tags, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now(), now())
		RETURNING `+videoColumns,
		string(v.ID), v.Title, v.MagnetURI, string(v.InfoHash), string(v.Status), []byte(meta), domain.NormalizeTags(v.Tags))
	video, err := scanVideo(row)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.Video{}, errs.ErrAlreadyExists
		}
		return domain.Video{}, err
	}
	return video, nil
}

func (s *VideoStore) UpdateStatus(ctx context.Context, id domain.VideoID, status domain.VideoStatus) error {
	_, err := s.pool.Exec(ctx, `UPDATE videos SET status = $2, updated_at = now() WHERE id = $1`, string(id), string(status))
	if err != nil {
		return errs.WrapStore("update video status", err)
	}
	return nil
}

func (s *VideoStore) UpdateLocalPath(ctx context.Context, id domain.VideoID, localPath string) error {
	_, err := s.pool.Exec(ctx, `UPDATE videos SET local_path = $2, updated_at = now() WHERE id = $1`, string(id), localPath)
	if err != nil {
		return errs.WrapStore("update video local_path", err)
	}
	return nil
}

func (s *VideoStore) UpdateMetadata(ctx context.Context, id domain.VideoID, metadata []byte) error {
	if len(metadata) == 0 {
		return nil
	}
	_, err := s.pool.Exec(ctx, `UPDATE videos SET metadata = $2, updated_at = now() WHERE id = $1`, string(id), metadata)
	if err != nil {
		return errs.WrapStore("update video metadata", err)
	}
	return nil
}

func (s *VideoStore) UpdateShareURL(ctx context.Context, id domain.VideoID, shareURL string) error {
	_, err := s.pool.Exec(ctx, `UPDATE videos SET share_url = $2, status = $3, updated_at = now() WHERE id = $1`,
		string(id), shareURL, string(domain.VideoAvailable))
	if err != nil {
		return errs.WrapStore("update video share_url", err)
	}
	return nil
}

func (s *VideoStore) UpdateCDNURL(ctx context.Context, id domain.VideoID, cdnURL string, status domain.VideoStatus) error {
	_, err := s.pool.Exec(ctx, `UPDATE videos SET cdn_url = $2, status = $3, updated_at = now() WHERE id = $1`,
		string(id), cdnURL, string(status))
	if err != nil {
		return errs.WrapStore("update video cdn_url", err)
	}
	return nil
}

func (s *VideoStore) CountByStatus(ctx context.Context, status domain.VideoStatus) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `SELECT count(*) FROM videos WHERE status = $1`, string(status)).Scan(&n)
	if err != nil {
		return 0, errs.WrapStore("count videos by status", err)
	}
	return n, nil
}

// ExpireStale marks available videos whose share URL has aged past
// olderThan as expired, mirroring the original's cleanup_expired_videos.
func (s *VideoStore) ExpireStale(ctx context.Context, olderThan time.Duration) (int, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE videos SET status = $1, updated_at = now()
		WHERE status = $2 AND share_url IS NOT NULL AND updated_at < now() - $3::interval`,
		string(domain.VideoExpired), string(domain.VideoAvailable), olderThan.String())
	if err != nil {
		return 0, errs.WrapStore("expire stale videos", err)
	}
	return int(tag.RowsAffected()), nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
