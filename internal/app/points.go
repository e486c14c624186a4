/**
 * @description
 * Loyalty points settlement: converting a points balance into a transfer
 * bonus, and converting a completed transfer's source amount into points
 * earned. Both directions normalize through a single reference currency via
 * the external FX lookup.
 *
 * @notes
 * - The discount is policy-restricted to an explicit allow-list of currency
 *   pairs; anything outside it quotes as not-allowed rather than zero.
 * - Settlement has two deliberately different branches: when the transfer
 *   spent points, the balance is SET to the newly earned value; otherwise the
 *   earned value is ADDED to the prior balance. Spending points on a transfer
 *   resets the balance at settlement.
 */

package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/adamsend/transfer-service/internal/domain"
	"github.com/adamsend/transfer-service/internal/store"
)

var ErrDiscountPairNotAllowed = errors.New("points discount is not available for this currency pair")

// pointsPerUnit is the number of points worth one unit of the reference
// currency.
var pointsPerUnit = decimal.NewFromInt(50)

// FXConverter normalizes an amount from one currency into another. A lookup
// failure aborts the calling operation; there is no silent 1:1 fallback.
type FXConverter interface {
	Convert(ctx context.Context, amount decimal.Decimal, fromCurrency, toCurrency string) (decimal.Decimal, error)
}

// PointsSettlement is the pure computation component for the loyalty
// balance. It holds no state beyond configuration.
type PointsSettlement struct {
	fx                FXConverter
	referenceCurrency string
	allowedPairs      map[string]bool
}

// NewPointsSettlement builds the settlement component. allowedPairs entries
// are "FROM:TO" currency pairs eligible for the discount bonus.
func NewPointsSettlement(fx FXConverter, referenceCurrency string, allowedPairs []string) *PointsSettlement {
	ref := strings.ToUpper(strings.TrimSpace(referenceCurrency))
	if ref == "" {
		ref = "USD"
	}
	pairs := make(map[string]bool, len(allowedPairs))
	for _, pair := range allowedPairs {
		normalized := strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(pair), " ", ""))
		if normalized != "" {
			pairs[normalized] = true
		}
	}
	return &PointsSettlement{
		fx:                fx,
		referenceCurrency: ref,
		allowedPairs:      pairs,
	}
}

func pairKey(from, to string) string {
	return strings.ToUpper(strings.TrimSpace(from)) + ":" + strings.ToUpper(strings.TrimSpace(to))
}

// QuoteDiscount converts a points balance into a bonus amount in the
// transfer's destination currency. The quote is balance / 50 in the
// reference currency, normalized into targetCurrency when they differ.
func (p *PointsSettlement) QuoteDiscount(ctx context.Context, pointsBalance int64, fromCurrency, targetCurrency string) (decimal.Decimal, error) {
	if pointsBalance <= 0 {
		return decimal.Zero, nil
	}
	if !p.allowedPairs[pairKey(fromCurrency, targetCurrency)] {
		return decimal.Zero, ErrDiscountPairNotAllowed
	}

	bonus := decimal.NewFromInt(pointsBalance).Div(pointsPerUnit)

	target := strings.ToUpper(strings.TrimSpace(targetCurrency))
	if target != p.referenceCurrency {
		converted, err := p.fx.Convert(ctx, bonus, p.referenceCurrency, target)
		if err != nil {
			return decimal.Zero, fmt.Errorf("%w: %v", ErrRateUnavailable, err)
		}
		bonus = converted
	}

	return bonus.Round(2), nil
}

// RewardFor computes the points earned by a settled transfer: the total
// (discount-inclusive) source amount when present, else the raw source
// amount, normalized into the reference currency and rounded to a whole
// point count.
func (p *PointsSettlement) RewardFor(ctx context.Context, transfer *domain.Transfer) (int64, error) {
	amount := transfer.TotalFromAmount
	if amount.LessThanOrEqual(decimal.Zero) {
		amount = transfer.FromAmount
	}

	source := strings.ToUpper(strings.TrimSpace(transfer.FromCurrency))
	if source != p.referenceCurrency {
		converted, err := p.fx.Convert(ctx, amount, source, p.referenceCurrency)
		if err != nil {
			return 0, fmt.Errorf("%w: %v", ErrRateUnavailable, err)
		}
		amount = converted
	}

	return amount.Round(0).IntPart(), nil
}

// CreditReward applies the earned points to the user's balance. A transfer
// that spent points resets the balance to the earned value; one that did not
// adds to it.
func (p *PointsSettlement) CreditReward(ctx context.Context, repo store.Repository, transfer *domain.Transfer, earned int64) error {
	if transfer.PointsSpent > 0 {
		return repo.SetPointsBalance(ctx, transfer.UserID, earned)
	}
	if earned == 0 {
		return nil
	}
	_, err := repo.AddPointsBalance(ctx, transfer.UserID, earned)
	return err
}
