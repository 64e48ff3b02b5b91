package postgres

import (
	"context"
	"encoding/json"
	"time"

	"github.com/aussiebroadwan/authgate/internal/authgate/domain"
)

type auditRepo struct {
	db dbtx
}

func (r *auditRepo) Append(ctx context.Context, e domain.AuditEvent) error {
	details, err := encodeDetails(e.Details)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO audit_events
		   (id, realm, action, actor_id, actor_email, ip_address, user_agent, details, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8::jsonb, $9)`,
		e.ID,
		string(e.Realm),
		string(e.Action),
		e.ActorID,
		e.ActorEmail,
		e.IPAddress,
		e.UserAgent,
		details,
		e.CreatedAt.UTC(),
	)
	return mapUniqueViolation(err)
}

func (r *auditRepo) ListRecent(ctx context.Context, limit int) ([]domain.AuditEvent, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, realm, action, actor_id, actor_email, ip_address, user_agent, details::text, created_at
		   FROM audit_events
		  ORDER BY created_at DESC, id DESC
		  LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.AuditEvent
	for rows.Next() {
		var (
			e              domain.AuditEvent
			realm, action  string
			encodedDetails string
		)
		if err := rows.Scan(
			&e.ID, &realm, &action, &e.ActorID, &e.ActorEmail,
			&e.IPAddress, &e.UserAgent, &encodedDetails, &e.CreatedAt,
		); err != nil {
			return nil, err
		}
		e.Realm = domain.Realm(realm)
		e.Action = domain.AuditAction(action)
		e.CreatedAt = e.CreatedAt.UTC()
		if err := json.Unmarshal([]byte(encodedDetails), &e.Details); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *auditRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM audit_events WHERE created_at < $1`, cutoff.UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func encodeDetails(d map[string]string) (string, error) {
	if len(d) == 0 {
		return "{}", nil
	}
	b, err := json.Marshal(d)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
