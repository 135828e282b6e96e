package core

import (
	"context"
	"fmt"
	"net/netip"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

// Query limits.
const (
	// DefaultAuditLimit is used when a query does not set Limit.
	DefaultAuditLimit = 100

	// ViewAuditLimit caps the admin audit log view.
	ViewAuditLimit = 500

	// ExportLimit caps a single export so a runaway filter cannot stream the
	// whole table.
	ExportLimit = 100000
)

const auditColumns = `id, event_type, details, actor_id, ip_address, user_agent, created_at`

// AuditService handles audit log operations on the audit_log table.
// It implements AuditSink for the ingestor.
type AuditService struct {
	db DBTX
}

// NewAuditService creates a new audit service.
func NewAuditService(db DBTX) *AuditService {
	return &AuditService{db: db}
}

// Log appends an audit event. Missing IP address and user agent are taken
// from ctx (see ContextWithIPAddress).
func (a *AuditService) Log(ctx context.Context, params AuditLogParams) (*AuditEvent, error) {
	if params.IPAddress == "" {
		params.IPAddress = GetIPAddressFromContext(ctx)
	}
	if params.UserAgent == "" {
		params.UserAgent = GetUserAgentFromContext(ctx)
	}

	id := uuid.New()
	event := &AuditEvent{
		ID:        id.String(),
		EventType: params.EventType,
		Details:   params.Details,
		ActorID:   params.ActorID,
		UserAgent: params.UserAgent,
	}

	ip := ToNetIPAddr(params.IPAddress)
	if ip != nil {
		event.IPAddress = ip.String()
	}

	var createdAt pgtype.Timestamptz
	err := a.db.QueryRow(ctx,
		`INSERT INTO audit_log (id, event_type, details, actor_id, ip_address, user_agent)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at`,
		pgtype.UUID{Bytes: id, Valid: true},
		params.EventType,
		params.Details,
		ToPgInt8(params.ActorID),
		ip,
		ToPgText(params.UserAgent),
	).Scan(&createdAt)
	if err != nil {
		return nil, fmt.Errorf("insert audit event %s: %w", params.EventType, err)
	}

	event.CreatedAt = createdAt.Time
	return event, nil
}

// AuditLogResult contains one page of audit events.
type AuditLogResult struct {
	Events     []AuditEvent
	TotalCount int64
	Limit      int
	Offset     int
}

// Query returns audit events matching q, newest first, with the total count.
func (a *AuditService) Query(ctx context.Context, q AuditQuery) (*AuditLogResult, error) {
	if q.Limit <= 0 {
		q.Limit = DefaultAuditLimit
	}

	wb, err := buildAuditWhere(q)
	if err != nil {
		return nil, err
	}
	whereClause, args := wb.build()

	var totalCount int64
	if err := a.db.QueryRow(ctx, "SELECT COUNT(*) FROM audit_log"+whereClause, args...).Scan(&totalCount); err != nil {
		return nil, fmt.Errorf("count audit log: %w", err)
	}

	query := fmt.Sprintf("SELECT %s FROM audit_log%s ORDER BY created_at DESC LIMIT $%d OFFSET $%d",
		auditColumns, whereClause, wb.nextArg(), wb.nextArg()+1)
	args = append(args, q.Limit, q.Offset)

	rows, err := a.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit log: %w", err)
	}
	defer rows.Close()

	events := make([]AuditEvent, 0)
	for rows.Next() {
		e, err := scanAuditEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read audit log: %w", err)
	}

	return &AuditLogResult{
		Events:     events,
		TotalCount: totalCount,
		Limit:      q.Limit,
		Offset:     q.Offset,
	}, nil
}

// Recent returns the newest events whose type starts with prefix.
func (a *AuditService) Recent(ctx context.Context, prefix string, limit int) ([]AuditEvent, error) {
	result, err := a.Query(ctx, AuditQuery{EventPrefix: prefix, Limit: limit})
	if err != nil {
		return nil, err
	}
	return result.Events, nil
}

// Stream calls fn for each event matching q, newest first, without holding
// the whole result in memory. Limit defaults to ExportLimit.
func (a *AuditService) Stream(ctx context.Context, q AuditQuery, fn func(AuditEvent) error) error {
	if q.Limit <= 0 || q.Limit > ExportLimit {
		q.Limit = ExportLimit
	}

	wb, err := buildAuditWhere(q)
	if err != nil {
		return err
	}
	whereClause, args := wb.build()

	query := fmt.Sprintf("SELECT %s FROM audit_log%s ORDER BY created_at DESC LIMIT $%d",
		auditColumns, whereClause, wb.nextArg())
	args = append(args, q.Limit)

	rows, err := a.db.Query(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("query audit log: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		e, err := scanAuditEvent(rows)
		if err != nil {
			return err
		}
		if err := fn(*e); err != nil {
			return err
		}
	}
	return rows.Err()
}

// ----------------------------------------------------------------------------
// Archive Methods
// ----------------------------------------------------------------------------

// ArchiveOldEntries moves events older than retentionDays to audit_log_archive
// in batches of batchSize. Returns the number of events moved.
func (a *AuditService) ArchiveOldEntries(ctx context.Context, retentionDays, batchSize int) (int64, error) {
	var total int64
	for {
		tag, err := a.db.Exec(ctx, `
			WITH moved AS (
				DELETE FROM audit_log
				WHERE id IN (
					SELECT id FROM audit_log
					WHERE created_at < now() - make_interval(days => $1)
					ORDER BY created_at
					LIMIT $2
				)
				RETURNING `+auditColumns+`
			)
			INSERT INTO audit_log_archive (`+auditColumns+`)
			SELECT `+auditColumns+` FROM moved`,
			retentionDays, batchSize)
		if err != nil {
			return total, fmt.Errorf("archive audit log: %w", err)
		}

		n := tag.RowsAffected()
		total += n
		if n < int64(batchSize) {
			return total, nil
		}
		if err := ctx.Err(); err != nil {
			return total, err
		}
	}
}

// PurgeOldArchives permanently deletes archived events older than retentionYears.
func (a *AuditService) PurgeOldArchives(ctx context.Context, retentionYears int) (int64, error) {
	tag, err := a.db.Exec(ctx,
		`DELETE FROM audit_log_archive WHERE created_at < now() - make_interval(years => $1)`,
		retentionYears)
	if err != nil {
		return 0, fmt.Errorf("purge audit archive: %w", err)
	}
	return tag.RowsAffected(), nil
}

// scanAuditEvent scans a single audit_log row selected with auditColumns.
func scanAuditEvent(row pgx.Row) (*AuditEvent, error) {
	var (
		id        pgtype.UUID
		eventType string
		details   string
		actorID   pgtype.Int8
		ipAddress *netip.Addr
		userAgent pgtype.Text
		createdAt pgtype.Timestamptz
	)

	if err := row.Scan(&id, &eventType, &details, &actorID, &ipAddress, &userAgent, &createdAt); err != nil {
		return nil, fmt.Errorf("scan audit event: %w", err)
	}

	e := &AuditEvent{
		ID:        PgUUIDToString(id),
		EventType: eventType,
		Details:   details,
		CreatedAt: createdAt.Time,
	}
	if actorID.Valid {
		e.ActorID = actorID.Int64
	}
	if ipAddress != nil {
		e.IPAddress = ipAddress.String()
	}
	if userAgent.Valid {
		e.UserAgent = userAgent.String
	}
	return e, nil
}
