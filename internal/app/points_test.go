package app

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/adamsend/transfer-service/internal/domain"
	"github.com/adamsend/transfer-service/internal/store"
)

// fxStub converts by a fixed multiplier per "FROM:TO" pair.
type fxStub struct {
	multipliers map[string]string
	err         error
	calls       int
}

func (f *fxStub) Convert(ctx context.Context, amount decimal.Decimal, fromCurrency, toCurrency string) (decimal.Decimal, error) {
	f.calls++
	if f.err != nil {
		return decimal.Zero, f.err
	}
	multiplier, ok := f.multipliers[fromCurrency+":"+toCurrency]
	if !ok {
		return decimal.Zero, fmt.Errorf("no rate for %s:%s", fromCurrency, toCurrency)
	}
	rate, err := decimal.NewFromString(multiplier)
	if err != nil {
		return decimal.Zero, err
	}
	return amount.Mul(rate), nil
}

func TestQuoteDiscount(t *testing.T) {
	tests := []struct {
		name         string
		balance      int64
		fromCurrency string
		toCurrency   string
		want         string
		wantErr      error
	}{
		{
			name:         "zero balance quotes zero",
			balance:      0,
			fromCurrency: "RUB",
			toCurrency:   "NGN",
			want:         "0",
		},
		{
			name:         "balance of 500 is worth 10 usd converted to ngn",
			balance:      500,
			fromCurrency: "RUB",
			toCurrency:   "NGN",
			want:         "15000",
		},
		{
			name:         "fractional quote rounds to two decimal places",
			balance:      55,
			fromCurrency: "RUB",
			toCurrency:   "USD",
			want:         "1.1",
		},
		{
			name:         "pair outside the allow-list is refused",
			balance:      500,
			fromCurrency: "EUR",
			toCurrency:   "NGN",
			wantErr:      ErrDiscountPairNotAllowed,
		},
	}

	fx := &fxStub{multipliers: map[string]string{"USD:NGN": "1500"}}
	settlement := NewPointsSettlement(fx, "USD", []string{"RUB:NGN", "RUB:USD"})

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := settlement.QuoteDiscount(context.Background(), tt.balance, tt.fromCurrency, tt.toCurrency)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected error %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("QuoteDiscount returned error: %v", err)
			}
			want, _ := decimal.NewFromString(tt.want)
			if !got.Equal(want) {
				t.Fatalf("expected bonus=%s, got %s", want, got)
			}
		})
	}
}

func TestQuoteDiscount_SkipsConversionForReferenceCurrency(t *testing.T) {
	fx := &fxStub{multipliers: map[string]string{}}
	settlement := NewPointsSettlement(fx, "USD", []string{"RUB:USD"})

	got, err := settlement.QuoteDiscount(context.Background(), 100, "RUB", "USD")
	if err != nil {
		t.Fatalf("QuoteDiscount returned error: %v", err)
	}
	if fx.calls != 0 {
		t.Fatalf("expected no fx lookups for the reference currency, got %d", fx.calls)
	}
	if want := decimal.NewFromInt(2); !got.Equal(want) {
		t.Fatalf("expected bonus=%s, got %s", want, got)
	}
}

func TestRewardFor(t *testing.T) {
	fx := &fxStub{multipliers: map[string]string{"RUB:USD": "0.011"}}
	settlement := NewPointsSettlement(fx, "USD", nil)

	tests := []struct {
		name     string
		transfer domain.Transfer
		want     int64
	}{
		{
			name: "reference currency amount rounds to whole points",
			transfer: domain.Transfer{
				FromCurrency:    "USD",
				FromAmount:      decimal.RequireFromString("250.49"),
				TotalFromAmount: decimal.RequireFromString("250.49"),
			},
			want: 250,
		},
		{
			name: "source currency is normalized before counting",
			transfer: domain.Transfer{
				FromCurrency:    "RUB",
				FromAmount:      decimal.NewFromInt(10000),
				TotalFromAmount: decimal.NewFromInt(10000),
			},
			want: 110,
		},
		{
			name: "falls back to raw amount when total is unset",
			transfer: domain.Transfer{
				FromCurrency: "USD",
				FromAmount:   decimal.NewFromInt(75),
			},
			want: 75,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := settlement.RewardFor(context.Background(), &tt.transfer)
			if err != nil {
				t.Fatalf("RewardFor returned error: %v", err)
			}
			if got != tt.want {
				t.Fatalf("expected %d points, got %d", tt.want, got)
			}
		})
	}
}

func TestRewardFor_PropagatesConversionFailure(t *testing.T) {
	fx := &fxStub{err: errors.New("catalog down")}
	settlement := NewPointsSettlement(fx, "USD", nil)

	_, err := settlement.RewardFor(context.Background(), &domain.Transfer{
		FromCurrency: "RUB",
		FromAmount:   decimal.NewFromInt(100),
	})
	if !errors.Is(err, ErrRateUnavailable) {
		t.Fatalf("expected ErrRateUnavailable, got %v", err)
	}
}

type pointsRepoStub struct {
	store.Repository

	setCalled  bool
	setBalance int64
	addCalled  bool
	addDelta   int64
}

func (s *pointsRepoStub) SetPointsBalance(ctx context.Context, userID uuid.UUID, points int64) error {
	s.setCalled = true
	s.setBalance = points
	return nil
}

func (s *pointsRepoStub) AddPointsBalance(ctx context.Context, userID uuid.UUID, delta int64) (int64, error) {
	s.addCalled = true
	s.addDelta = delta
	return delta, nil
}

func TestCreditReward_ResetsBalanceWhenPointsWereSpent(t *testing.T) {
	repo := &pointsRepoStub{}
	settlement := NewPointsSettlement(&fxStub{}, "USD", nil)

	transfer := &domain.Transfer{UserID: uuid.New(), PointsSpent: 500}
	if err := settlement.CreditReward(context.Background(), repo, transfer, 120); err != nil {
		t.Fatalf("CreditReward returned error: %v", err)
	}
	if !repo.setCalled || repo.setBalance != 120 {
		t.Fatalf("expected balance reset to 120, got set=%t balance=%d", repo.setCalled, repo.setBalance)
	}
	if repo.addCalled {
		t.Fatal("did not expect an additive credit when points were spent")
	}
}

func TestCreditReward_AddsToBalanceWhenNoPointsWereSpent(t *testing.T) {
	repo := &pointsRepoStub{}
	settlement := NewPointsSettlement(&fxStub{}, "USD", nil)

	transfer := &domain.Transfer{UserID: uuid.New()}
	if err := settlement.CreditReward(context.Background(), repo, transfer, 120); err != nil {
		t.Fatalf("CreditReward returned error: %v", err)
	}
	if !repo.addCalled || repo.addDelta != 120 {
		t.Fatalf("expected additive credit of 120, got add=%t delta=%d", repo.addCalled, repo.addDelta)
	}
	if repo.setCalled {
		t.Fatal("did not expect a balance reset without spent points")
	}
}

func TestCreditReward_SkipsZeroEarnedWithoutSpentPoints(t *testing.T) {
	repo := &pointsRepoStub{}
	settlement := NewPointsSettlement(&fxStub{}, "USD", nil)

	if err := settlement.CreditReward(context.Background(), repo, &domain.Transfer{UserID: uuid.New()}, 0); err != nil {
		t.Fatalf("CreditReward returned error: %v", err)
	}
	if repo.setCalled || repo.addCalled {
		t.Fatal("expected no balance writes for a zero reward")
	}
}
