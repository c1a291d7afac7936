package domain

import (
	"math"
	"testing"
)

func TestDiscountApply(t *testing.T) {
	tests := []struct {
		name string
		code DiscountCode
		base int64
		want int64
	}{
		{"twenty percent", DiscountCode{DiscountValue: 20, IsPercentage: true}, 25, 20},
		{"full percentage", DiscountCode{DiscountValue: 100, IsPercentage: true}, 25, 0},
		{"percentage rounds down", DiscountCode{DiscountValue: 30, IsPercentage: true}, 25, 17},
		{"fixed", DiscountCode{DiscountValue: 5}, 25, 20},
		{"fixed floors at zero", DiscountCode{DiscountValue: 30}, 25, 0},
		{"half of max price", DiscountCode{DiscountValue: 50, IsPercentage: true}, math.MaxInt64, 4611686018427387903},
		{"one percent off max price", DiscountCode{DiscountValue: 1, IsPercentage: true}, math.MaxInt64, 9131138316486228048},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.code.Apply(tc.base); got != tc.want {
				t.Fatalf("Apply(%d) = %d, want %d", tc.base, got, tc.want)
			}
		})
	}
}

func TestDiscountAppliesTo(t *testing.T) {
	c := DiscountCode{AppliesToDeposit: true}
	if !c.AppliesTo(PaymentDeposit) {
		t.Fatal("expected code to apply to deposits")
	}
	if c.AppliesTo(PaymentBalance) {
		t.Fatal("expected code not to apply to balances")
	}
}

func TestHashDiscountCodeNormalizes(t *testing.T) {
	if HashDiscountCode(" save20 ") != HashDiscountCode("SAVE20") {
		t.Fatal("codes differing only by case and whitespace must hash equally")
	}
	if HashDiscountCode("SAVE20") == HashDiscountCode("SAVE21") {
		t.Fatal("distinct codes must hash differently")
	}
}
