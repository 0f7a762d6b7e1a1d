// Package setting stores singleton key/value settings, the canteen price being the main one.
package setting

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/greesoft/canteen/core"
)

const AmountName = "amount"

var (
	ErrNotFound      = core.NewNotFoundError("setting not found")
	ErrAmountNotSet  = core.NewNotFoundError("Amount not set")
	ErrAmountExists  = core.NewConflictError("Amount already set, update it instead")
	errInvalidAmount = errors.New("invalid amount setting")
)

type Setting struct {
	ID        int       `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	Value     string    `json:"value" db:"value"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Amount is the canteen price as exposed by the API.
type Amount struct {
	Value     decimal.Decimal `json:"value"`
	UpdatedAt time.Time       `json:"updated_at"`
}

type SetAmount struct {
	Value decimal.Decimal `json:"value" validate:"posamount"`
}

func (sa *SetAmount) Validate(validate *validator.Validate) error {
	sa.Value = sa.Value.Round(2)
	return validate.Struct(sa)
}

type (
	Repository interface {
		GetSetting(ctx context.Context, name string) (Setting, error)
		CreateSetting(ctx context.Context, s Setting) (Setting, error)
		// SaveSetting creates or replaces the value of the named setting.
		SaveSetting(ctx context.Context, s Setting) (Setting, error)
	}

	Service struct {
		repo Repository
	}
)

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func toAmount(s Setting) (Amount, error) {
	val, err := decimal.NewFromString(s.Value)
	if err != nil {
		return Amount{}, errors.Wrap(errInvalidAmount, err.Error())
	}
	return Amount{Value: val, UpdatedAt: s.UpdatedAt}, nil
}

// GetAmount returns ErrAmountNotSet when the price was never configured.
func (svc *Service) GetAmount(ctx context.Context) (Amount, error) {
	s, err := svc.repo.GetSetting(ctx, AmountName)
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			return Amount{}, ErrAmountNotSet
		}
		return Amount{}, errors.Wrap(err, "getting amount setting")
	}
	return toAmount(s)
}

// Price returns the canteen price, zero when unset.
func (svc *Service) Price(ctx context.Context) (decimal.Decimal, error) {
	amt, err := svc.GetAmount(ctx)
	if err != nil {
		if errors.Cause(err) == ErrAmountNotSet {
			return decimal.Zero, nil
		}
		return decimal.Zero, err
	}
	return amt.Value, nil
}

// CreateAmount expects a validated SetAmount. It fails with ErrAmountExists when the price is set.
func (svc *Service) CreateAmount(ctx context.Context, sa SetAmount) (Amount, error) {
	if _, err := svc.repo.GetSetting(ctx, AmountName); err == nil {
		return Amount{}, ErrAmountExists
	} else if errors.Cause(err) != ErrNotFound {
		return Amount{}, errors.Wrap(err, "getting amount setting")
	}
	now := core.NowFunc().UTC()
	s, err := svc.repo.CreateSetting(ctx, Setting{Name: AmountName, Value: sa.Value.StringFixed(2), CreatedAt: now, UpdatedAt: now})
	if err != nil {
		return Amount{}, errors.Wrap(err, "creating amount setting")
	}
	return toAmount(s)
}

// UpdateAmount expects a validated SetAmount. It creates the price when missing.
func (svc *Service) UpdateAmount(ctx context.Context, sa SetAmount) (Amount, error) {
	now := core.NowFunc().UTC()
	s, err := svc.repo.SaveSetting(ctx, Setting{Name: AmountName, Value: sa.Value.StringFixed(2), CreatedAt: now, UpdatedAt: now})
	if err != nil {
		return Amount{}, errors.Wrap(err, "saving amount setting")
	}
	return toAmount(s)
}
