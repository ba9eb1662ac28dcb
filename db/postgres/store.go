// Package postgres reads the persisted inventory the refresh produced:
// record counts per entity type, the relationships of the EMS root and
// the flavor catalog.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"inventory-verify/decision/flavor"
	"inventory-verify/decision/reconcile"
	"inventory-verify/pkg/entity"
)

// ErrRootNotFound is returned when the EMS id does not exist.
var ErrRootNotFound = errors.New("ext_management_system not found")

// source locates the records of one entity type.
type source struct {
	table string
	where string
}

// sources maps every entity type to its table. VMs and templates share
// the vms table; key pairs live among the authentications.
var sources = map[entity.Type]source{
	entity.AuthPrivateKey:              {table: "authentications", where: "type LIKE '%AuthKeyPair'"},
	entity.AvailabilityZone:            {table: "availability_zones"},
	entity.CloudNetwork:                {table: "cloud_networks"},
	entity.CloudSubnet:                 {table: "cloud_subnets"},
	entity.CloudVolume:                 {table: "cloud_volumes"},
	entity.CloudVolumeBackup:           {table: "cloud_volume_backups"},
	entity.CloudVolumeSnapshot:         {table: "cloud_volume_snapshots"},
	entity.CustomAttribute:             {table: "custom_attributes"},
	entity.Disk:                        {table: "disks"},
	entity.ExtManagementSystem:         {table: "ext_management_systems"},
	entity.FirewallRule:                {table: "firewall_rules"},
	entity.Flavor:                      {table: "flavors"},
	entity.FloatingIP:                  {table: "floating_ips"},
	entity.GuestDevice:                 {table: "guest_devices"},
	entity.Hardware:                    {table: "hardwares"},
	entity.MiqTemplate:                 {table: "vms", where: "template = true"},
	entity.Network:                     {table: "networks"},
	entity.NetworkPort:                 {table: "network_ports"},
	entity.NetworkRouter:               {table: "network_routers"},
	entity.OperatingSystem:             {table: "operating_systems"},
	entity.OrchestrationStack:          {table: "orchestration_stacks"},
	entity.OrchestrationStackOutput:    {table: "orchestration_stack_outputs"},
	entity.OrchestrationStackParameter: {table: "orchestration_stack_parameters"},
	entity.OrchestrationStackResource:  {table: "orchestration_stack_resources"},
	entity.OrchestrationTemplate:       {table: "orchestration_templates"},
	entity.SecurityGroup:               {table: "security_groups"},
	entity.Snapshot:                    {table: "snapshots"},
	entity.SystemService:               {table: "system_services"},
	entity.VM:                          {table: "vms", where: "template = false"},
	entity.VMOrTemplate:                {table: "vms"},
}

func (s source) count(extra string) string {
	var conds []string
	if s.where != "" {
		conds = append(conds, s.where)
	}
	if extra != "" {
		conds = append(conds, extra)
	}
	query := "SELECT COUNT(*) FROM " + s.table
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	return query
}

// Store reads the inventory database.
type Store struct {
	db *sql.DB
}

var _ reconcile.Counter = (*Store)(nil)

// Open connects with a lib/pq DSN and verifies the connection.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	return &Store{db: db}, nil
}

// New wraps an open handle.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Close closes the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Count returns the number of persisted records of typ.
func (s *Store) Count(ctx context.Context, typ entity.Type) (int, error) {
	src, ok := sources[typ]
	if !ok {
		return 0, fmt.Errorf("no table for entity type %q", typ)
	}
	var n int
	if err := s.db.QueryRowContext(ctx, src.count("")).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", src.table, err)
	}
	return n, nil
}

// Root resolves the EMS family of emsID: the manager itself and every
// child manager attached through parent_ems_id.
func (s *Store) Root(ctx context.Context, emsID int64) (*Root, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id FROM ext_management_systems WHERE id = $1 OR parent_ems_id = $1 ORDER BY id", emsID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve ems %d: %w", emsID, err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan ems id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("ems %d: %w", emsID, ErrRootNotFound)
	}
	return &Root{db: s.db, ids: ids}, nil
}

// FlavorTable loads the persisted flavor catalog.
func (s *Store) FlavorTable(ctx context.Context) (flavor.Table, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT name, COALESCE(ephemeral_disk_count, 0) FROM flavors ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("failed to query flavors: %w", err)
	}
	defer rows.Close()

	table := flavor.Table{}
	for rows.Next() {
		var name string
		var disks int
		if err := rows.Scan(&name, &disks); err != nil {
			return nil, fmt.Errorf("failed to scan flavor: %w", err)
		}
		table[name] = disks
	}
	return table, rows.Err()
}

// Root answers relationship counts for one EMS family.
type Root struct {
	db  *sql.DB
	ids []int64
}

var (
	_ reconcile.RelatedCounter  = (*Root)(nil)
	_ reconcile.AttributeReader = (*Root)(nil)
)

// rootColumns are the ext_management_systems columns Attributes may read.
var rootColumns = map[string]bool{
	"api_version":     true,
	"uid_ems":         true,
	"name":            true,
	"provider_region": true,
}

// ManagerIDs returns the ids of the family, parent first.
func (r *Root) ManagerIDs() []int64 {
	return append([]int64(nil), r.ids...)
}

// RelatedCount counts the records of typ owned by the EMS family.
func (r *Root) RelatedCount(ctx context.Context, typ entity.Type) (int, error) {
	if !typ.Related() {
		return 0, fmt.Errorf("entity type %q is not related to the ems", typ)
	}
	src := sources[typ]
	var n int
	if err := r.db.QueryRowContext(ctx, src.count("ems_id = ANY($1)"), pq.Array(r.ids)).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count related %s: %w", src.table, err)
	}
	return n, nil
}

// Attributes reads columns of the parent manager record. NULL columns map
// to nil.
func (r *Root) Attributes(ctx context.Context, names []string) (map[string]*string, error) {
	if len(names) == 0 {
		return map[string]*string{}, nil
	}
	for _, name := range names {
		if !rootColumns[name] {
			return nil, fmt.Errorf("unknown ems attribute %q", name)
		}
	}

	values := make([]sql.NullString, len(names))
	dest := make([]interface{}, len(names))
	for i := range values {
		dest[i] = &values[i]
	}
	query := "SELECT " + strings.Join(names, ", ") + " FROM ext_management_systems WHERE id = $1"
	if err := r.db.QueryRowContext(ctx, query, r.ids[0]).Scan(dest...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("ems %d: %w", r.ids[0], ErrRootNotFound)
		}
		return nil, fmt.Errorf("failed to read ems attributes: %w", err)
	}

	out := make(map[string]*string, len(names))
	for i, name := range names {
		if values[i].Valid {
			v := values[i].String
			out[name] = &v
		} else {
			out[name] = nil
		}
	}
	return out, nil
}
