package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/iliyamo/cds-extensions/internal/model"
)

// ConsentRepo is the consent store: consents with their attributes,
// authorization resources and account mappings.
type ConsentRepo struct{ DB *sql.DB }

func NewConsentRepo(db *sql.DB) *ConsentRepo { return &ConsentRepo{DB: db} }

const consentColumns = "consent_id, client_id, receipt, consent_type, current_status, expires_at, created_at, updated_at"

func scanConsent(row interface{ Scan(...any) error }) (model.Consent, error) {
	var (
		c       model.Consent
		expires sql.NullTime
	)
	err := row.Scan(&c.ConsentID, &c.ClientID, &c.Receipt, &c.ConsentType, &c.Status, &expires, &c.CreatedAt, &c.UpdatedAt)
	if expires.Valid {
		c.ExpiresAt = expires.Time
	}
	return c, err
}

// Get fetches a consent by id or returns ErrNotFound.
func (r *ConsentRepo) Get(ctx context.Context, consentID string) (model.Consent, error) {
	c, err := scanConsent(r.DB.QueryRowContext(ctx,
		"SELECT "+consentColumns+" FROM consents WHERE consent_id=? LIMIT 1", consentID))
	if errors.Is(err, sql.ErrNoRows) {
		return c, ErrNotFound
	}
	return c, err
}

// GetDetailed loads a consent with attributes, authorizations and mappings.
func (r *ConsentRepo) GetDetailed(ctx context.Context, consentID string) (model.DetailedConsent, error) {
	c, err := r.Get(ctx, consentID)
	if err != nil {
		return model.DetailedConsent{}, err
	}
	d := model.DetailedConsent{Consent: c, Attributes: map[string]string{}}

	attrRows, err := r.DB.QueryContext(ctx,
		"SELECT att_key, att_value FROM consent_attributes WHERE consent_id=?", consentID)
	if err != nil {
		return d, err
	}
	for attrRows.Next() {
		var k, v string
		if err := attrRows.Scan(&k, &v); err != nil {
			attrRows.Close()
			return d, err
		}
		d.Attributes[k] = v
	}
	attrRows.Close()
	if err := attrRows.Err(); err != nil {
		return d, err
	}

	authRows, err := r.DB.QueryContext(ctx,
		"SELECT auth_id, consent_id, user_id, auth_type, auth_status FROM authorization_resources WHERE consent_id=?",
		consentID)
	if err != nil {
		return d, err
	}
	for authRows.Next() {
		var a model.AuthorizationResource
		if err := authRows.Scan(&a.AuthID, &a.ConsentID, &a.UserID, &a.AuthType, &a.AuthStatus); err != nil {
			authRows.Close()
			return d, err
		}
		d.Authorizations = append(d.Authorizations, a)
	}
	authRows.Close()
	if err := authRows.Err(); err != nil {
		return d, err
	}

	mapRows, err := r.DB.QueryContext(ctx,
		"SELECT m.mapping_id, m.auth_id, m.account_id, m.permission, m.mapping_status FROM consent_mappings m "+
			"JOIN authorization_resources a ON a.auth_id = m.auth_id WHERE a.consent_id=?",
		consentID)
	if err != nil {
		return d, err
	}
	defer mapRows.Close()
	for mapRows.Next() {
		var m model.ConsentMapping
		if err := mapRows.Scan(&m.MappingID, &m.AuthID, &m.AccountID, &m.Permission, &m.MappingStatus); err != nil {
			return d, err
		}
		d.Mappings = append(d.Mappings, m)
	}
	return d, mapRows.Err()
}

// Authorize records a consent authorization in one transaction: one
// authorization resource per grant with its account mappings, the consent
// attributes and the status change to authorized.  When amend is set the
// mappings of earlier authorizations are deactivated first.  A consent that
// is no longer awaiting authorization or authorized yields ErrConflict.  The
// created authorizations are returned with their generated ids.
func (r *ConsentRepo) Authorize(ctx context.Context, consentID string, grants []model.AuthorizationGrant,
	attrs map[string]string, amend bool) ([]model.AuthorizationResource, error) {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	// The guarded update runs first so the consent row stays locked until
	// commit and a concurrent revocation cannot be overwritten.
	res, err := tx.ExecContext(ctx,
		"UPDATE consents SET current_status=? WHERE consent_id=? AND current_status IN (?,?)",
		model.ConsentStatusAuthorized, consentID,
		model.ConsentStatusAwaitingAuthorization, model.ConsentStatusAuthorized)
	if err != nil {
		return nil, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrConflict
	}

	if amend {
		if _, err := tx.ExecContext(ctx,
			"UPDATE consent_mappings m JOIN authorization_resources a ON a.auth_id = m.auth_id "+
				"SET m.mapping_status=? WHERE a.consent_id=?",
			model.MappingStatusInactive, consentID); err != nil {
			return nil, fmt.Errorf("deactivate previous mappings: %w", err)
		}
	}

	created := make([]model.AuthorizationResource, 0, len(grants))
	for _, g := range grants {
		auth := g.Authorization
		auth.AuthID = uuid.NewString()
		auth.ConsentID = consentID
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO authorization_resources (auth_id, consent_id, user_id, auth_type, auth_status) VALUES (?,?,?,?,?)",
			auth.AuthID, consentID, auth.UserID, auth.AuthType, auth.AuthStatus); err != nil {
			return nil, fmt.Errorf("insert authorization for %s: %w", auth.UserID, err)
		}
		for _, m := range g.Mappings {
			if _, err := tx.ExecContext(ctx,
				"INSERT INTO consent_mappings (mapping_id, auth_id, account_id, permission, mapping_status) VALUES (?,?,?,?,?)",
				uuid.NewString(), auth.AuthID, m.AccountID, m.Permission, m.MappingStatus); err != nil {
				return nil, fmt.Errorf("insert mapping for %s: %w", m.AccountID, err)
			}
		}
		created = append(created, auth)
	}
	for k, v := range attrs {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO consent_attributes (consent_id, att_key, att_value) VALUES (?,?,?) "+
				"ON DUPLICATE KEY UPDATE att_value=VALUES(att_value)",
			consentID, k, v); err != nil {
			return nil, fmt.Errorf("insert attribute %s: %w", k, err)
		}
	}
	return created, tx.Commit()
}

// UpdateStatus moves a consent to status.  Revoked, expired and rejected
// consents are terminal and yield ErrConflict.
func (r *ConsentRepo) UpdateStatus(ctx context.Context, consentID, status string) error {
	res, err := r.DB.ExecContext(ctx,
		"UPDATE consents SET current_status=? WHERE consent_id=? AND current_status NOT IN (?,?,?)",
		status, consentID, model.ConsentStatusRevoked, model.ConsentStatusExpired, model.ConsentStatusRejected)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}
	if _, err := r.Get(ctx, consentID); err != nil {
		return err
	}
	return ErrConflict
}

// DeactivateMappings deactivates the active mappings of accountID held under
// userID's authorizations and returns the affected consent ids.
func (r *ConsentRepo) DeactivateMappings(ctx context.Context, userID, accountID string) ([]string, error) {
	rows, err := r.DB.QueryContext(ctx,
		"SELECT DISTINCT a.consent_id FROM consent_mappings m JOIN authorization_resources a ON a.auth_id = m.auth_id "+
			"WHERE a.user_id=? AND m.account_id=? AND m.mapping_status=?",
		userID, accountID, model.MappingStatusActive)
	if err != nil {
		return nil, err
	}
	var consentIDs []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		consentIDs = append(consentIDs, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(consentIDs) == 0 {
		return nil, nil
	}
	_, err = r.DB.ExecContext(ctx,
		"UPDATE consent_mappings m JOIN authorization_resources a ON a.auth_id = m.auth_id "+
			"SET m.mapping_status=? WHERE a.user_id=? AND m.account_id=? AND m.mapping_status=?",
		model.MappingStatusInactive, userID, accountID, model.MappingStatusActive)
	return consentIDs, err
}

// ListActiveByClients returns authorized consents of the given clients.
func (r *ConsentRepo) ListActiveByClients(ctx context.Context, clientIDs []string) ([]model.Consent, error) {
	if len(clientIDs) == 0 {
		return nil, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(clientIDs)), ",")
	args := make([]any, 0, len(clientIDs)+1)
	args = append(args, model.ConsentStatusAuthorized)
	for _, id := range clientIDs {
		args = append(args, id)
	}
	rows, err := r.DB.QueryContext(ctx,
		"SELECT "+consentColumns+" FROM consents WHERE current_status=? AND client_id IN ("+placeholders+")",
		args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Consent
	for rows.Next() {
		c, err := scanConsent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// FindByArrangement resolves a CDR arrangement id to its current consent.
// Amended consents carry the original arrangement id as an attribute.
func (r *ConsentRepo) FindByArrangement(ctx context.Context, arrangementID string) (model.Consent, error) {
	c, err := scanConsent(r.DB.QueryRowContext(ctx,
		"SELECT "+consentColumns+" FROM consents WHERE consent_id=? OR consent_id IN "+
			"(SELECT consent_id FROM consent_attributes WHERE att_key=? AND att_value=?) "+
			"ORDER BY updated_at DESC LIMIT 1",
		arrangementID, model.AttrCDRArrangementID, arrangementID))
	if errors.Is(err, sql.ErrNoRows) {
		return c, ErrNotFound
	}
	return c, err
}
