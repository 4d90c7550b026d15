// internal/model/contact.go
package model

type Contact struct {
	ID        int    `db:"id" json:"id"`
	ListID    int    `db:"list_id" json:"list_id"`
	Phone     string `db:"phone" json:"phone"`
	FirstName string `db:"first_name" json:"first_name"`
	LastName  string `db:"last_name" json:"last_name"`
	Company   string `db:"company" json:"company"`
}
