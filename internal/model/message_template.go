// internal/model/message_template.go
package model

import "time"

// MessageTemplate is the raw message body with {placeholder} markers.
type MessageTemplate struct {
	ID        int       `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Body      string    `db:"body" json:"body"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
