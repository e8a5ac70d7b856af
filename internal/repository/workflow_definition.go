package repository

import (
	"database/sql"
	"strings"

	"github.com/recordflow/recordflow/pkg/recordflow/core"
	"github.com/recordflow/recordflow/pkg/recordflow/domain"
)

// WorkflowDefinitionRepository stores versioned workflow graphs. The
// definition column holds the authored JSON verbatim; it is parsed and
// validated on the way in and on the way out.
type WorkflowDefinitionRepository struct {
	db    *sql.DB
	clock core.Clock
}

func NewWorkflowDefinitionRepository(db *sql.DB, clock core.Clock) *WorkflowDefinitionRepository {
	return &WorkflowDefinitionRepository{db: db, clock: clock}
}

const definitionColumns = ` id, name, slug, version, definition, created, updated `

// Save inserts a new definition version. Versions are immutable once an
// execution references them, so saves never update the definition column of
// an existing version.
func (r *WorkflowDefinitionRepository) Save(def *domain.WorkflowDefinition) (int64, error) {
	now := r.clock.Now()
	def.Created = now
	def.Updated = now

	vals := []interface{}{def.Name, def.Slug, def.Version, def.Definition,
		formatDateInDatabase(def.Created), formatDateInDatabase(def.Updated)}
	pps := make([]string, 0, len(vals))
	for i := range vals {
		pps = append(pps, placeholder(i+1))
	}
	base := `INSERT INTO workflow_definition (name, slug, version, definition, created, updated)
		VALUES (` + strings.Join(pps, ", ") + `)`
	var err error
	if supportsReturning() {
		err = r.db.QueryRow(base+" RETURNING id", vals...).Scan(&def.ID)
	} else {
		res, e := r.db.Exec(base, vals...)
		if e != nil {
			err = e
		} else {
			id, e2 := res.LastInsertId()
			if e2 != nil {
				err = e2
			} else {
				def.ID = id
			}
		}
	}
	return def.ID, err
}

// FindBySlug returns the latest version for a slug.
func (r *WorkflowDefinitionRepository) FindBySlug(slug string) (*domain.WorkflowDefinition, error) {
	query := `
		SELECT ` + definitionColumns + `
		FROM workflow_definition
		WHERE slug = ` + placeholder(1) + `
		ORDER BY version DESC
		LIMIT 1
	`
	return r.scanOne(r.db.QueryRow(query, slug))
}

func (r *WorkflowDefinitionRepository) FindBySlugAndVersion(slug string, version int) (*domain.WorkflowDefinition, error) {
	query := `
		SELECT ` + definitionColumns + `
		FROM workflow_definition
		WHERE slug = ` + placeholder(1) + ` AND version = ` + placeholder(2) + `
	`
	return r.scanOne(r.db.QueryRow(query, slug, version))
}

// LatestVersion returns 0 when the slug has never been stored.
func (r *WorkflowDefinitionRepository) LatestVersion(slug string) (int, error) {
	query := `SELECT COALESCE(MAX(version), 0) FROM workflow_definition WHERE slug = ` + placeholder(1)
	var v int
	if err := r.db.QueryRow(query, slug).Scan(&v); err != nil {
		return 0, err
	}
	return v, nil
}

func (r *WorkflowDefinitionRepository) FindAll() (*[]domain.WorkflowDefinition, error) {
	query := `
		SELECT ` + definitionColumns + `
		FROM workflow_definition
		ORDER BY slug ASC, version DESC
	`
	rows, err := r.db.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var defs []domain.WorkflowDefinition
	for rows.Next() {
		var d domain.WorkflowDefinition
		if err := rows.Scan(&d.ID, &d.Name, &d.Slug, &d.Version, &d.Definition, &d.Created, &d.Updated); err != nil {
			return nil, err
		}
		defs = append(defs, d)
	}
	return &defs, rows.Err()
}

func (r *WorkflowDefinitionRepository) scanOne(row *sql.Row) (*domain.WorkflowDefinition, error) {
	var d domain.WorkflowDefinition
	err := row.Scan(&d.ID, &d.Name, &d.Slug, &d.Version, &d.Definition, &d.Created, &d.Updated)
	if err != nil {
		return nil, err
	}
	return &d, nil
}
