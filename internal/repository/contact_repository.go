package repository

import (
	"database/sql"

	"github.com/zapvia/wadispatch-backend/internal/model"
)

// ContactRepositoryInterface defines methods used by planning and dispatch
type ContactRepositoryInterface interface {
	GetByID(id int) (*model.Contact, error)
	ListByListID(listID int) ([]model.Contact, error)
	CountByListID(listID int) (int, error)
}

// ContactRepository is the concrete implementation
type ContactRepository struct {
	DB *sql.DB
}

// GetByID fetches a contact by ID
func (r *ContactRepository) GetByID(id int) (*model.Contact, error) {
	query := `
        SELECT id, list_id, phone, first_name, last_name, company
        FROM contacts
        WHERE id = $1
    `
	row := r.DB.QueryRow(query, id)

	var c model.Contact
	if err := row.Scan(&c.ID, &c.ListID, &c.Phone, &c.FirstName, &c.LastName, &c.Company); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // not found
		}
		return nil, err
	}
	return &c, nil
}

// ListByListID fetches the contacts of a list in stable id order. This is
// the order the planner walks when random_order is off.
func (r *ContactRepository) ListByListID(listID int) ([]model.Contact, error) {
	query := `
        SELECT id, list_id, phone, first_name, last_name, company
        FROM contacts
        WHERE list_id = $1
        ORDER BY id
    `
	rows, err := r.DB.Query(query, listID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	contacts := []model.Contact{}
	for rows.Next() {
		var c model.Contact
		if err := rows.Scan(&c.ID, &c.ListID, &c.Phone, &c.FirstName, &c.LastName, &c.Company); err != nil {
			return nil, err
		}
		contacts = append(contacts, c)
	}
	return contacts, rows.Err()
}

func (r *ContactRepository) CountByListID(listID int) (int, error) {
	var count int
	err := r.DB.QueryRow(`SELECT COUNT(*) FROM contacts WHERE list_id=$1`, listID).Scan(&count)
	return count, err
}

var _ ContactRepositoryInterface = (*ContactRepository)(nil)
