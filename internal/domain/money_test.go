package domain

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMoney(t *testing.T) {
	cases := []struct {
		in   string
		want Money
	}{
		{"100.00", 10000},
		{"0.01", 1},
		{"12", 1200},
		{"12.5", 1250},
		{"-3.10", -310},
	}
	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			got, err := ParseMoney(tc.in)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestParseMoneyRejectsSubCentPrecision(t *testing.T) {
	_, err := ParseMoney("0.001")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidInput))
}

func TestParseMoneyRejectsGarbage(t *testing.T) {
	_, err := ParseMoney("ten dollars")
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestMoneyJSON(t *testing.T) {
	var body struct {
		Amount Money `json:"amount"`
	}

	require.NoError(t, json.Unmarshal([]byte(`{"amount":"100.00"}`), &body))
	assert.Equal(t, Money(10000), body.Amount)

	require.NoError(t, json.Unmarshal([]byte(`{"amount":0.1}`), &body))
	assert.Equal(t, Money(10), body.Amount)

	out, err := json.Marshal(body)
	require.NoError(t, err)
	assert.JSONEq(t, `{"amount":"0.10"}`, string(out))
}

func TestMoneyRepeatedCentsAreExact(t *testing.T) {
	var total Money
	for i := 0; i < 10000; i++ {
		total += Money(1)
	}
	assert.Equal(t, "100.00", total.String())
	assert.Equal(t, Dollars(100), total)
}

func TestErrorKindsSurviveWrapping(t *testing.T) {
	err := SideEffectFailed(Unavailable(errors.New("database is locked")))

	kind, ok := KindOf(err)
	require.True(t, ok)
	assert.Equal(t, KindBusinessRule, kind)
	assert.True(t, errors.Is(err, ErrSideEffectFailed))
	assert.True(t, IsRetryable(err))
	assert.False(t, IsRetryable(ErrInsufficientFunds))
}

func TestParseAccountTypeSynonyms(t *testing.T) {
	for in, want := range map[string]AccountType{
		"CHECKING":     AccountChecking,
		"card":         AccountCredit,
		"Money Market": AccountMoneyMarket,
		"money-market": AccountMoneyMarket,
		"cd":           AccountCD,
	} {
		got, err := ParseAccountType(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseAccountType("brokerage")
	assert.ErrorIs(t, err, ErrInvalidAccountType)
}

func TestParseTransactionFilter(t *testing.T) {
	f, err := ParseTransactionFilter("withdraw", "amount", "asc")
	require.NoError(t, err)
	require.NotNil(t, f.Type)
	assert.Equal(t, TransactionWithdrawal, *f.Type)
	assert.Equal(t, SortByAmount, f.SortBy)
	assert.True(t, f.Ascending)

	_, err = ParseTransactionFilter("", "balance; DROP TABLE", "")
	assert.ErrorIs(t, err, ErrInvalidInput)
}
