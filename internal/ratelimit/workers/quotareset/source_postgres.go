package quotareset

import (
	"context"
	"database/sql"
	"fmt"

	id "filegate/pkg/domain"
)

// PostgresTenantSource reads active tenants from the tenants table, which is
// maintained by the upstream control plane.
type PostgresTenantSource struct {
	db *sql.DB
}

func NewPostgresTenantSource(db *sql.DB) *PostgresTenantSource {
	return &PostgresTenantSource{db: db}
}

func (s *PostgresTenantSource) ActiveTenants(ctx context.Context) ([]id.TenantID, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM tenants WHERE active ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list active tenants: %w", err)
	}
	defer rows.Close()

	var tenants []id.TenantID
	for rows.Next() {
		var tenant string
		if err := rows.Scan(&tenant); err != nil {
			return nil, fmt.Errorf("scan tenant id: %w", err)
		}
		tenants = append(tenants, id.TenantID(tenant))
	}
	return tenants, rows.Err()
}

// StaticTenantSource serves a fixed tenant list. Used in tests and local
// runs without a control-plane database.
type StaticTenantSource []id.TenantID

func (s StaticTenantSource) ActiveTenants(context.Context) ([]id.TenantID, error) {
	return append([]id.TenantID{}, s...), nil
}
