package feed

import (
	"math/big"
	"testing"

	"github.com/phoenix-explorer/livefeed/pkg/types"
)

func TestParseNumeric(t *testing.T) {
	cases := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"0", "0", false},
		{"123456789012345678901234567890", "123456789012345678901234567890", false},
		{"42.000", "42", false},
		{" 7 ", "7", false},
		{"1.5", "", true},
		{"abc", "", true},
		{"", "", true},
	}
	for _, c := range cases {
		n, err := parseNumeric(c.in)
		if c.wantErr {
			if err == nil {
				t.Errorf("%q: want error, got %v", c.in, n)
			}
			continue
		}
		if err != nil {
			t.Errorf("%q: %v", c.in, err)
			continue
		}
		if n.String() != c.want {
			t.Errorf("%q: got %s, want %s", c.in, n, c.want)
		}
	}
}

func TestAddressUpdates(t *testing.T) {
	const (
		alice = "0xAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"
		bob   = "0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"
		carol = "0xcccccccccccccccccccccccccccccccccccccccc"
	)
	b := LedgerBlock{
		Block: types.BlockUpdate{Hash: "0xb1", Number: big.NewInt(9)},
		Transactions: []types.TransactionUpdate{
			{Hash: "0xt1", From: alice, To: bob},
			{Hash: "0xt2", From: bob, To: carol},
			{Hash: "0xt3", From: alice, To: ""},
		},
	}
	balances := map[string]*big.Int{
		"0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa": big.NewInt(1),
		bob: big.NewInt(2),
		// carol has no stored balance yet
	}

	got := addressUpdates(b, balances)
	if len(got) != 2 {
		t.Fatalf("updates: got %d, want 2 (%+v)", len(got), got)
	}
	if got[0].Address != "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa" || got[0].TransactionHash != "0xt3" {
		t.Errorf("alice: got %+v", got[0])
	}
	if got[1].Address != bob || got[1].TransactionHash != "0xt2" || got[1].Balance.Int64() != 2 {
		t.Errorf("bob: got %+v", got[1])
	}
	if got[0].BlockNumber.Int64() != 9 {
		t.Errorf("block number: got %v", got[0].BlockNumber)
	}
}
