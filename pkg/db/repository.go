package db

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const repoLogPrefix = "db:repository"

// Repository provides database access for the connector tables.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new Repository with the given connection pool.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// =========================================================================
// SERVICE URIS
// =========================================================================

const serviceURIColumns = `id, subject_id, service_key, uri, priority, version, created, modified`

// ListServiceURIs returns the rows of one subject and service key ordered by priority.
func (r *Repository) ListServiceURIs(ctx context.Context, subjectID, serviceKey string) ([]ServiceURI, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+serviceURIColumns+`
		 FROM service_uris
		 WHERE subject_id = $1 AND service_key = $2
		 ORDER BY priority, created`, subjectID, serviceKey)
	if err != nil {
		return nil, fmt.Errorf("%s - list service uris: %w", repoLogPrefix, err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (ServiceURI, error) {
		var s ServiceURI
		err := row.Scan(&s.ID, &s.SubjectID, &s.ServiceKey, &s.URI, &s.Priority, &s.Version, &s.Created, &s.Modified)
		return s, err
	})
}

// UpsertServiceURIParams holds parameters for UpsertServiceURI.
type UpsertServiceURIParams struct {
	SubjectID  string
	ServiceKey string
	URI        string
	Priority   int
	Version    string
}

// UpsertServiceURI inserts a candidate or updates its priority and version.
func (r *Repository) UpsertServiceURI(ctx context.Context, p UpsertServiceURIParams) (*ServiceURI, error) {
	slog.Debug(fmt.Sprintf("%s - UpsertServiceURI subject=%q key=%s uri=%s", repoLogPrefix, p.SubjectID, p.ServiceKey, p.URI))

	var s ServiceURI
	err := r.pool.QueryRow(ctx,
		`INSERT INTO service_uris (subject_id, service_key, uri, priority, version)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (subject_id, service_key, uri) DO UPDATE SET
		   priority = EXCLUDED.priority,
		   version = EXCLUDED.version,
		   modified = NOW()
		 RETURNING `+serviceURIColumns,
		p.SubjectID, p.ServiceKey, p.URI, p.Priority, p.Version,
	).Scan(&s.ID, &s.SubjectID, &s.ServiceKey, &s.URI, &s.Priority, &s.Version, &s.Created, &s.Modified)
	if err != nil {
		return nil, fmt.Errorf("%s - upsert service uri: %w", repoLogPrefix, err)
	}
	return &s, nil
}

// DeleteServiceURI removes one candidate. It reports whether a row was deleted.
func (r *Repository) DeleteServiceURI(ctx context.Context, subjectID, serviceKey, uri string) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM service_uris WHERE subject_id = $1 AND service_key = $2 AND uri = $3`,
		subjectID, serviceKey, uri)
	if err != nil {
		return false, fmt.Errorf("%s - delete service uri: %w", repoLogPrefix, err)
	}
	return tag.RowsAffected() > 0, nil
}

// =========================================================================
// SESSIONS
// =========================================================================

// GetSession returns the session or nil when it does not exist.
func (r *Repository) GetSession(ctx context.Context, sessionID string) (*Session, error) {
	var s Session
	err := r.pool.QueryRow(ctx,
		`SELECT session_id, user_id, threat_level, expires_at, created FROM sessions WHERE session_id = $1`,
		sessionID).Scan(&s.SessionID, &s.UserID, &s.ThreatLevel, &s.ExpiresAt, &s.Created)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%s - get session: %w", repoLogPrefix, err)
	}
	return &s, nil
}

// UpsertSession stores a session grant.
func (r *Repository) UpsertSession(ctx context.Context, s Session) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO sessions (session_id, user_id, threat_level, expires_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (session_id) DO UPDATE SET
		   user_id = EXCLUDED.user_id,
		   threat_level = EXCLUDED.threat_level,
		   expires_at = EXCLUDED.expires_at`,
		s.SessionID, s.UserID, s.ThreatLevel, s.ExpiresAt)
	if err != nil {
		return fmt.Errorf("%s - upsert session: %w", repoLogPrefix, err)
	}
	return nil
}

// DeleteSession revokes a session.
func (r *Repository) DeleteSession(ctx context.Context, sessionID string) error {
	if _, err := r.pool.Exec(ctx, `DELETE FROM sessions WHERE session_id = $1`, sessionID); err != nil {
		return fmt.Errorf("%s - delete session: %w", repoLogPrefix, err)
	}
	return nil
}

// =========================================================================
// AVATARS
// =========================================================================

// avatarColumn maps a caller supplied field name onto a column of avatars.
func avatarColumn(field string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(field)) {
	case "principalid", "principal_id":
		return "principal_id", nil
	case "name":
		return "name", nil
	case "value":
		return "value", nil
	}
	return "", fmt.Errorf("%s - unknown avatar field %q", repoLogPrefix, field)
}

func avatarFilter(field, val string) (string, interface{}, error) {
	col, err := avatarColumn(field)
	if err != nil {
		return "", nil, err
	}
	if col == "principal_id" {
		id, err := uuid.Parse(val)
		if err != nil {
			return "", nil, fmt.Errorf("%s - invalid principal id %q: %w", repoLogPrefix, val, err)
		}
		return col, id, nil
	}
	return col, val, nil
}

// GetAvatarRows returns the rows whose field equals val.
func (r *Repository) GetAvatarRows(ctx context.Context, field, val string) ([]AvatarRow, error) {
	col, arg, err := avatarFilter(field, val)
	if err != nil {
		return nil, err
	}
	rows, err := r.pool.Query(ctx,
		`SELECT principal_id, name, value FROM avatars WHERE `+col+` = $1 ORDER BY name`, arg)
	if err != nil {
		return nil, fmt.Errorf("%s - get avatar: %w", repoLogPrefix, err)
	}
	return pgx.CollectRows(rows, pgx.RowToStructByPos[AvatarRow])
}

// ReplaceAvatar deletes every row of principal and inserts data in one transaction.
func (r *Repository) ReplaceAvatar(ctx context.Context, principal uuid.UUID, data map[string]string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%s - begin tx: %w", repoLogPrefix, err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM avatars WHERE principal_id = $1`, principal); err != nil {
		return fmt.Errorf("%s - clear avatar: %w", repoLogPrefix, err)
	}
	for name, value := range data {
		if len(name) > 32 {
			name = name[:32]
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO avatars (principal_id, name, value) VALUES ($1, $2, $3)
			 ON CONFLICT (principal_id, name) DO UPDATE SET value = EXCLUDED.value`,
			principal, name, value); err != nil {
			return fmt.Errorf("%s - insert avatar %s: %w", repoLogPrefix, name, err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("%s - commit: %w", repoLogPrefix, err)
	}
	return nil
}

// DeleteAvatar removes the rows whose field equals val and returns how many were removed.
func (r *Repository) DeleteAvatar(ctx context.Context, field, val string) (int64, error) {
	col, arg, err := avatarFilter(field, val)
	if err != nil {
		return 0, err
	}
	tag, err := r.pool.Exec(ctx, `DELETE FROM avatars WHERE `+col+` = $1`, arg)
	if err != nil {
		return 0, fmt.Errorf("%s - delete avatar: %w", repoLogPrefix, err)
	}
	return tag.RowsAffected(), nil
}

// =========================================================================
// USER INFOS
// =========================================================================

const userInfoColumns = `user_id, current_region_id, current_position, home_region_id, is_online, last_login, last_logout, info`

func scanUserInfo(row pgx.Row) (UserInfoRow, error) {
	var u UserInfoRow
	err := row.Scan(&u.UserID, &u.CurrentRegionID, &u.CurrentPosition, &u.HomeRegionID,
		&u.IsOnline, &u.LastLogin, &u.LastLogout, &u.Info)
	return u, err
}

// GetUserInfo returns the row of userID or nil when unknown.
func (r *Repository) GetUserInfo(ctx context.Context, userID string) (*UserInfoRow, error) {
	u, err := scanUserInfo(r.pool.QueryRow(ctx,
		`SELECT `+userInfoColumns+` FROM user_infos WHERE user_id = $1`, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%s - get user info: %w", repoLogPrefix, err)
	}
	return &u, nil
}

// GetUserInfos returns the known rows among userIDs, in no particular order.
func (r *Repository) GetUserInfos(ctx context.Context, userIDs []string) ([]UserInfoRow, error) {
	if len(userIDs) == 0 {
		return nil, nil
	}
	rows, err := r.pool.Query(ctx,
		`SELECT `+userInfoColumns+` FROM user_infos WHERE user_id = ANY($1)`, userIDs)
	if err != nil {
		return nil, fmt.Errorf("%s - get user infos: %w", repoLogPrefix, err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (UserInfoRow, error) {
		return scanUserInfo(row)
	})
}

// UpsertUserInfo stores a user info row.
func (r *Repository) UpsertUserInfo(ctx context.Context, u UserInfoRow) error {
	pos := u.CurrentPosition
	if len(pos) == 0 {
		pos = []float64{0, 0, 0}
	}
	info := u.Info
	if info == nil {
		info = map[string]string{}
	}
	_, err := r.pool.Exec(ctx,
		`INSERT INTO user_infos (`+userInfoColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (user_id) DO UPDATE SET
		   current_region_id = EXCLUDED.current_region_id,
		   current_position = EXCLUDED.current_position,
		   home_region_id = EXCLUDED.home_region_id,
		   is_online = EXCLUDED.is_online,
		   last_login = EXCLUDED.last_login,
		   last_logout = EXCLUDED.last_logout,
		   info = EXCLUDED.info`,
		u.UserID, u.CurrentRegionID, pos, u.HomeRegionID, u.IsOnline, u.LastLogin, u.LastLogout, info)
	if err != nil {
		return fmt.Errorf("%s - upsert user info: %w", repoLogPrefix, err)
	}
	return nil
}
