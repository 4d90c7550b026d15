package repository

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	appErrors "github.com/zapvia/wadispatch-backend/internal/errors"
	"github.com/zapvia/wadispatch-backend/internal/model"
)

type CampaignRepositoryInterface interface {
	Create(c *model.Campaign) error
	GetByID(id int) (*model.Campaign, error)
	ListCampaigns(offset, limit int, connectionID string, status model.CampaignStatus) ([]*model.Campaign, int, error)
	ListByStatus(status model.CampaignStatus) ([]*model.Campaign, error)

	// TransitionStatus flips status from -> to atomically and reports
	// whether the row actually moved. A false result means the campaign
	// was not in the expected state.
	TransitionStatus(campaignID int, from, to model.CampaignStatus) (bool, error)

	IncrementCounters(campaignID int, sentDelta, failedDelta int) error
	MarkPlanned(campaignID, plannedCount int) error
}

type CampaignRepository struct {
	DB *sql.DB
}

const campaignColumns = `id, name, connection_id, list_id, template_ids,
       start_date, end_date, start_time, end_time,
       min_delay_seconds, max_delay_seconds, pause_after_messages, pause_duration_minutes,
       random_order, random_messages, status, sent_count, failed_count,
       planned_count, planned_at, created_at, updated_at`

func (r *CampaignRepository) Create(c *model.Campaign) error {
	c.CreatedAt = time.Now()
	if c.Status == "" {
		c.Status = model.CampaignStatusPending
	}
	query := `
        INSERT INTO campaigns
        (name, connection_id, list_id, template_ids,
         start_date, end_date, start_time, end_time,
         min_delay_seconds, max_delay_seconds, pause_after_messages, pause_duration_minutes,
         random_order, random_messages, status, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
        RETURNING id
    `
	return r.DB.QueryRow(query,
		c.Name, c.ConnectionID, c.ListID, pq.Array(toInt64(c.TemplateIDs)),
		c.Schedule.StartDate, c.Schedule.EndDate, c.Schedule.StartTime, c.Schedule.EndTime,
		c.Throttle.MinDelaySeconds, c.Throttle.MaxDelaySeconds,
		c.Throttle.PauseAfterMessages, c.Throttle.PauseDurationMinutes,
		c.RandomOrder, c.RandomMessages, c.Status, c.CreatedAt,
	).Scan(&c.ID)
}

func (r *CampaignRepository) GetByID(id int) (*model.Campaign, error) {
	query := `SELECT ` + campaignColumns + ` FROM campaigns WHERE id=$1`
	c, err := scanCampaign(r.DB.QueryRow(query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.NewCampaignNotFound(id)
		}
		return nil, err
	}
	return c, nil
}

func (r *CampaignRepository) ListCampaigns(offset, limit int, connectionID string, status model.CampaignStatus) ([]*model.Campaign, int, error) {
	campaigns := []*model.Campaign{}
	query := `SELECT ` + campaignColumns + ` FROM campaigns WHERE 1=1`
	args := []interface{}{}
	argPos := 1

	if connectionID != "" {
		query += fmt.Sprintf(" AND connection_id=$%d", argPos)
		args = append(args, connectionID)
		argPos++
	}
	if status != "" {
		query += fmt.Sprintf(" AND status=$%d", argPos)
		args = append(args, status)
		argPos++
	}

	query += fmt.Sprintf(" ORDER BY id DESC LIMIT $%d OFFSET $%d", argPos, argPos+1)
	args = append(args, limit, offset)

	rows, err := r.DB.Query(query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, 0, err
		}
		campaigns = append(campaigns, c)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	countQuery := `SELECT COUNT(*) FROM campaigns WHERE 1=1`
	countArgs := []interface{}{}
	argPos = 1
	if connectionID != "" {
		countQuery += fmt.Sprintf(" AND connection_id=$%d", argPos)
		countArgs = append(countArgs, connectionID)
		argPos++
	}
	if status != "" {
		countQuery += fmt.Sprintf(" AND status=$%d", argPos)
		countArgs = append(countArgs, status)
	}

	var total int
	if err := r.DB.QueryRow(countQuery, countArgs...).Scan(&total); err != nil {
		return nil, 0, err
	}

	return campaigns, total, nil
}

func (r *CampaignRepository) ListByStatus(status model.CampaignStatus) ([]*model.Campaign, error) {
	query := `SELECT ` + campaignColumns + ` FROM campaigns WHERE status=$1 ORDER BY id`
	rows, err := r.DB.Query(query, status)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	campaigns := []*model.Campaign{}
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, err
		}
		campaigns = append(campaigns, c)
	}
	return campaigns, rows.Err()
}

func (r *CampaignRepository) TransitionStatus(campaignID int, from, to model.CampaignStatus) (bool, error) {
	query := `UPDATE campaigns SET status=$1, updated_at=NOW() WHERE id=$2 AND status=$3`
	res, err := r.DB.Exec(query, to, campaignID, from)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// IncrementCounters bumps the monotone sent/failed counters. Deltas are
// only ever zero or positive; counters never decrease.
func (r *CampaignRepository) IncrementCounters(campaignID int, sentDelta, failedDelta int) error {
	query := `
        UPDATE campaigns
        SET sent_count = sent_count + $1, failed_count = failed_count + $2, updated_at=NOW()
        WHERE id=$3
    `
	_, err := r.DB.Exec(query, sentDelta, failedDelta, campaignID)
	return err
}

func (r *CampaignRepository) MarkPlanned(campaignID, plannedCount int) error {
	query := `UPDATE campaigns SET planned_count=$1, planned_at=NOW(), updated_at=NOW() WHERE id=$2`
	_, err := r.DB.Exec(query, plannedCount, campaignID)
	return err
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanCampaign(row rowScanner) (*model.Campaign, error) {
	var c model.Campaign
	var templateIDs []int64
	err := row.Scan(
		&c.ID, &c.Name, &c.ConnectionID, &c.ListID, pq.Array(&templateIDs),
		&c.Schedule.StartDate, &c.Schedule.EndDate, &c.Schedule.StartTime, &c.Schedule.EndTime,
		&c.Throttle.MinDelaySeconds, &c.Throttle.MaxDelaySeconds,
		&c.Throttle.PauseAfterMessages, &c.Throttle.PauseDurationMinutes,
		&c.RandomOrder, &c.RandomMessages, &c.Status, &c.SentCount, &c.FailedCount,
		&c.PlannedCount, &c.PlannedAt, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	c.TemplateIDs = fromInt64(templateIDs)
	return &c, nil
}

func toInt64(ids []int) []int64 {
	out := make([]int64, len(ids))
	for i, id := range ids {
		out[i] = int64(id)
	}
	return out
}

func fromInt64(ids []int64) []int {
	out := make([]int, len(ids))
	for i, id := range ids {
		out[i] = int(id)
	}
	return out
}

var _ CampaignRepositoryInterface = (*CampaignRepository)(nil)
