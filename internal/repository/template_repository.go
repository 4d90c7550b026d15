package repository

import (
	"database/sql"

	"github.com/lib/pq"

	"github.com/zapvia/wadispatch-backend/internal/model"
)

type TemplateRepositoryInterface interface {
	GetByID(id int) (*model.MessageTemplate, error)
	GetByIDs(ids []int) ([]model.MessageTemplate, error)
}

type TemplateRepository struct {
	DB *sql.DB
}

func (r *TemplateRepository) GetByID(id int) (*model.MessageTemplate, error) {
	query := `SELECT id, name, body, created_at FROM message_templates WHERE id=$1`
	var t model.MessageTemplate
	err := r.DB.QueryRow(query, id).Scan(&t.ID, &t.Name, &t.Body, &t.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &t, nil
}

// GetByIDs fetches templates preserving the order of ids, which is the
// round-robin order of the campaign.
func (r *TemplateRepository) GetByIDs(ids []int) ([]model.MessageTemplate, error) {
	if len(ids) == 0 {
		return []model.MessageTemplate{}, nil
	}

	query := `SELECT id, name, body, created_at FROM message_templates WHERE id = ANY($1)`
	rows, err := r.DB.Query(query, pq.Array(toInt64(ids)))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	byID := map[int]model.MessageTemplate{}
	for rows.Next() {
		var t model.MessageTemplate
		if err := rows.Scan(&t.ID, &t.Name, &t.Body, &t.CreatedAt); err != nil {
			return nil, err
		}
		byID[t.ID] = t
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	templates := []model.MessageTemplate{}
	for _, id := range ids {
		if t, ok := byID[id]; ok {
			templates = append(templates, t)
		}
	}
	return templates, nil
}

var _ TemplateRepositoryInterface = (*TemplateRepository)(nil)
