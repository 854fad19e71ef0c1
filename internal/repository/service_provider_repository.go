package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/iliyamo/cds-extensions/internal/model"
)

// ServiceProviderRepo reads the data recipient clients registered locally
// through DCR.
type ServiceProviderRepo struct{ DB *sql.DB }

func NewServiceProviderRepo(db *sql.DB) *ServiceProviderRepo { return &ServiceProviderRepo{DB: db} }

// List returns every registered service provider.
func (r *ServiceProviderRepo) List(ctx context.Context) ([]model.ServiceProvider, error) {
	rows, err := r.DB.QueryContext(ctx,
		"SELECT client_id, software_id, legal_entity_id, recipient_base_uri FROM service_providers")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.ServiceProvider
	for rows.Next() {
		var sp model.ServiceProvider
		if err := rows.Scan(&sp.ClientID, &sp.SoftwareID, &sp.LegalEntityID, &sp.RecipientBaseURI); err != nil {
			return nil, err
		}
		out = append(out, sp)
	}
	return out, rows.Err()
}

// GetByClientID fetches one service provider or ErrNotFound.
func (r *ServiceProviderRepo) GetByClientID(ctx context.Context, clientID string) (model.ServiceProvider, error) {
	var sp model.ServiceProvider
	err := r.DB.QueryRowContext(ctx,
		"SELECT client_id, software_id, legal_entity_id, recipient_base_uri FROM service_providers WHERE client_id=? LIMIT 1",
		clientID).Scan(&sp.ClientID, &sp.SoftwareID, &sp.LegalEntityID, &sp.RecipientBaseURI)
	if errors.Is(err, sql.ErrNoRows) {
		return sp, ErrNotFound
	}
	return sp, err
}
