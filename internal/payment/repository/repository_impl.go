package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	paymentdomain "github.com/smallbiznis/paygo/internal/payment/domain"
	"github.com/smallbiznis/paygo/pkg/db"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() paymentdomain.Repository {
	return &repo{}
}

func (r *repo) InsertPayment(ctx context.Context, gdb *gorm.DB, payment *paymentdomain.Payment) error {
	return gdb.WithContext(ctx).Create(payment).Error
}

func (r *repo) FindPaymentByID(ctx context.Context, gdb *gorm.DB, id snowflake.ID) (*paymentdomain.Payment, error) {
	var payment paymentdomain.Payment
	err := gdb.WithContext(ctx).First(&payment, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &payment, nil
}

func (r *repo) FindPaymentByExternalRef(ctx context.Context, gdb *gorm.DB, externalRef string) (*paymentdomain.Payment, error) {
	var payment paymentdomain.Payment
	err := gdb.WithContext(ctx).First(&payment, "external_ref = ?", externalRef).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &payment, nil
}

func (r *repo) ListPayments(
	ctx context.Context,
	gdb *gorm.DB,
	accountID snowflake.ID,
	afterID *snowflake.ID,
	limit int,
) ([]paymentdomain.Payment, error) {
	q := gdb.WithContext(ctx).Where("account_id = ?", accountID)
	if afterID != nil {
		q = q.Where("id < ?", *afterID)
	}

	var payments []paymentdomain.Payment
	err := q.Order("id DESC").Limit(limit + 1).Find(&payments).Error
	if err != nil {
		return nil, err
	}
	return payments, nil
}

func (r *repo) InsertEvent(ctx context.Context, gdb *gorm.DB, event *paymentdomain.EventRecord) (bool, error) {
	err := gdb.WithContext(ctx).Create(event).Error
	if err != nil {
		if db.IsDuplicateKeyErr(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (r *repo) FindEvent(ctx context.Context, gdb *gorm.DB, provider, providerEventID string) (*paymentdomain.EventRecord, error) {
	var event paymentdomain.EventRecord
	err := gdb.WithContext(ctx).
		First(&event, "provider = ? AND provider_event_id = ?", provider, providerEventID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &event, nil
}

func (r *repo) MarkEventProcessed(ctx context.Context, gdb *gorm.DB, id snowflake.ID, at time.Time) error {
	return gdb.WithContext(ctx).Exec(
		`UPDATE payment_events SET processed_at = ? WHERE id = ? AND processed_at IS NULL`,
		at, id,
	).Error
}

func (r *repo) TransitionStatus(
	ctx context.Context,
	gdb *gorm.DB,
	id snowflake.ID,
	from []paymentdomain.PaymentStatus,
	to paymentdomain.PaymentStatus,
	reason *string,
	now time.Time,
) (bool, error) {
	updates := map[string]any{
		"status":     to,
		"updated_at": now,
	}
	if reason != nil {
		updates["failure_reason"] = *reason
	}
	if to == paymentdomain.PaymentStatusCompleted {
		updates["completed_at"] = now
	}

	res := gdb.WithContext(ctx).Model(&paymentdomain.Payment{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
