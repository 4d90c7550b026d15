package repository

import (
	"database/sql"
	"time"

	"github.com/zapvia/wadispatch-backend/internal/model"
)

type DispatchItemRepositoryInterface interface {
	// CreateBatch persists one campaign's whole timetable atomically.
	CreateBatch(items []*model.DispatchItem) error

	// NextPending returns the earliest pending item in timetable order,
	// or nil when the campaign has nothing left to send.
	NextPending(campaignID int) (*model.DispatchItem, error)

	// MarkSent and MarkFailed move a pending item to its terminal status.
	// They are no-ops on items that already left pending, so a retried
	// persistence call cannot flip an outcome.
	MarkSent(itemID int, sentAt time.Time) error
	MarkFailed(itemID int, errorMessage string) error

	// MarkPendingCancelled fails every remaining pending item of a
	// cancelled campaign and returns how many were affected.
	MarkPendingCancelled(campaignID int) (int, error)

	Stats(campaignID int) (map[string]int, error)
	LastPendingScheduledAt(campaignID int) (*time.Time, error)
	ListByCampaign(campaignID int) ([]*model.DispatchItem, error)
}

type DispatchItemRepository struct {
	DB *sql.DB
}

const dispatchItemColumns = `id, campaign_id, contact_id, phone, template_id,
       scheduled_at, status, sent_at, error_message, created_at, updated_at`

func (r *DispatchItemRepository) CreateBatch(items []*model.DispatchItem) error {
	if len(items) == 0 {
		return nil
	}

	tx, err := r.DB.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
        INSERT INTO dispatch_items
        (campaign_id, contact_id, phone, template_id, scheduled_at, status, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())
        RETURNING id
    `)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, item := range items {
		if item.Status == "" {
			item.Status = model.DispatchItemStatusPending
		}
		err := stmt.QueryRow(
			item.CampaignID, item.ContactID, item.Phone, item.TemplateID,
			item.ScheduledAt, item.Status,
		).Scan(&item.ID)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (r *DispatchItemRepository) NextPending(campaignID int) (*model.DispatchItem, error) {
	query := `
        SELECT ` + dispatchItemColumns + `
        FROM dispatch_items
        WHERE campaign_id=$1 AND status=$2
        ORDER BY scheduled_at, id
        LIMIT 1
    `
	item, err := scanDispatchItem(r.DB.QueryRow(query, campaignID, model.DispatchItemStatusPending))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return item, nil
}

func (r *DispatchItemRepository) MarkSent(itemID int, sentAt time.Time) error {
	query := `
        UPDATE dispatch_items
        SET status=$1, sent_at=$2, updated_at=NOW()
        WHERE id=$3 AND status=$4
    `
	_, err := r.DB.Exec(query, model.DispatchItemStatusSent, sentAt, itemID, model.DispatchItemStatusPending)
	return err
}

func (r *DispatchItemRepository) MarkFailed(itemID int, errorMessage string) error {
	query := `
        UPDATE dispatch_items
        SET status=$1, error_message=$2, updated_at=NOW()
        WHERE id=$3 AND status=$4
    `
	_, err := r.DB.Exec(query, model.DispatchItemStatusFailed, errorMessage, itemID, model.DispatchItemStatusPending)
	return err
}

func (r *DispatchItemRepository) MarkPendingCancelled(campaignID int) (int, error) {
	query := `
        UPDATE dispatch_items
        SET status=$1, error_message=$2, updated_at=NOW()
        WHERE campaign_id=$3 AND status=$4
    `
	res, err := r.DB.Exec(query, model.DispatchItemStatusFailed, model.FailReasonCancelled,
		campaignID, model.DispatchItemStatusPending)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (r *DispatchItemRepository) Stats(campaignID int) (map[string]int, error) {
	query := `SELECT status, COUNT(*) FROM dispatch_items WHERE campaign_id=$1 GROUP BY status`
	rows, err := r.DB.Query(query, campaignID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stats := map[string]int{"pending": 0, "sent": 0, "failed": 0}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[status] = count
	}
	return stats, rows.Err()
}

// LastPendingScheduledAt is the scheduled instant of the final pending
// item, used as the estimated completion time. Nil when nothing is pending.
func (r *DispatchItemRepository) LastPendingScheduledAt(campaignID int) (*time.Time, error) {
	query := `
        SELECT scheduled_at FROM dispatch_items
        WHERE campaign_id=$1 AND status=$2
        ORDER BY scheduled_at DESC, id DESC
        LIMIT 1
    `
	var t time.Time
	err := r.DB.QueryRow(query, campaignID, model.DispatchItemStatusPending).Scan(&t)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &t, nil
}

func (r *DispatchItemRepository) ListByCampaign(campaignID int) ([]*model.DispatchItem, error) {
	query := `
        SELECT ` + dispatchItemColumns + `
        FROM dispatch_items
        WHERE campaign_id=$1
        ORDER BY scheduled_at, id
    `
	rows, err := r.DB.Query(query, campaignID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := []*model.DispatchItem{}
	for rows.Next() {
		item, err := scanDispatchItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func scanDispatchItem(row rowScanner) (*model.DispatchItem, error) {
	var item model.DispatchItem
	var errMsg sql.NullString
	err := row.Scan(
		&item.ID, &item.CampaignID, &item.ContactID, &item.Phone, &item.TemplateID,
		&item.ScheduledAt, &item.Status, &item.SentAt, &errMsg,
		&item.CreatedAt, &item.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	item.ErrorMessage = errMsg.String
	return &item, nil
}

var _ DispatchItemRepositoryInterface = (*DispatchItemRepository)(nil)
