package liquidation

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
)

func TestLiquidateAssets_AllSellsAccepted(t *testing.T) {
	ex := newMockExchange(map[string]string{
		"BTC": "0.5",
		"ETH": "10",
		"XRP": "1000",
	})
	svc := NewService(ex, Options{}, nil)

	results := svc.LiquidateAssets(context.Background(), map[string]decimal.Decimal{
		"BTC": dec("0.3"),
		"ETH": dec("5"),
		"XRP": dec("1000"),
	}, "USDT")

	expected := map[string]string{"BTC": "0.3", "ETH": "5", "XRP": "1000"}
	if len(results) != len(expected) {
		t.Fatalf("unexpected result count: got %d want %d", len(results), len(expected))
	}
	for asset, want := range expected {
		outcome, ok := results[asset]
		if !ok {
			t.Fatalf("missing result for %s", asset)
		}
		if outcome.Err != nil {
			t.Fatalf("unexpected error for %s: %v", asset, outcome.Err)
		}
		if !outcome.Amount.Equal(dec(want)) {
			t.Errorf("%s: got %s want %s", asset, outcome.Amount, want)
		}
	}
}

func TestLiquidateAssets_SkipsTargetAsset(t *testing.T) {
	ex := newMockExchange(map[string]string{"USDT": "100", "BTC": "1"})
	svc := NewService(ex, Options{}, nil)

	results := svc.LiquidateAssets(context.Background(), map[string]decimal.Decimal{
		"USDT": dec("50"),
		"BTC":  dec("0.1"),
	}, "USDT")

	if _, ok := results["USDT"]; ok {
		t.Fatalf("target asset must not appear in results")
	}
	if len(results) != 1 {
		t.Fatalf("expected only BTC in results, got %v", results.Assets())
	}
	if ex.balanceCalls("USDT") != 0 || ex.sellCalls("USDT") != 0 {
		t.Fatalf("target asset must not reach the exchange")
	}
}

func TestLiquidateAssets_TargetMatchIsExact(t *testing.T) {
	ex := newMockExchange(map[string]string{"usdt": "5"})
	svc := NewService(ex, Options{}, nil)

	results := svc.LiquidateAssets(context.Background(), map[string]decimal.Decimal{
		"usdt": dec("5"),
	}, "USDT")

	outcome, ok := results["usdt"]
	if !ok {
		t.Fatalf("asset differing only in case must be liquidated")
	}
	if !outcome.Amount.Equal(dec("5")) {
		t.Fatalf("unexpected amount: %s", outcome.Amount)
	}
}

func TestLiquidateAssets_ZeroRequestSkipsSell(t *testing.T) {
	ex := newMockExchange(map[string]string{"ETH": "3"})
	svc := NewService(ex, Options{}, nil)

	results := svc.LiquidateAssets(context.Background(), map[string]decimal.Decimal{
		"ETH": decimal.Zero,
	}, "USDT")

	outcome := results["ETH"]
	if !outcome.OK() || !outcome.Amount.IsZero() {
		t.Fatalf("expected zero success, got %+v", outcome)
	}
	if ex.sellCalls("ETH") != 0 {
		t.Fatalf("no sell order expected for zero request")
	}
}

func TestLiquidateAssets_ZeroBalanceSkipsSell(t *testing.T) {
	ex := newMockExchange(map[string]string{"SOL": "0"})
	svc := NewService(ex, Options{}, nil)

	results := svc.LiquidateAssets(context.Background(), map[string]decimal.Decimal{
		"SOL": dec("12"),
	}, "USDT")

	outcome := results["SOL"]
	if !outcome.OK() || !outcome.Amount.IsZero() {
		t.Fatalf("expected zero success, got %+v", outcome)
	}
	if ex.sellCalls("SOL") != 0 {
		t.Fatalf("no sell order expected for empty balance")
	}
}

func TestLiquidateAssets_NegativeRequestSkipsSell(t *testing.T) {
	ex := newMockExchange(map[string]string{"ADA": "7"})
	svc := NewService(ex, Options{}, nil)

	results := svc.LiquidateAssets(context.Background(), map[string]decimal.Decimal{
		"ADA": dec("-1"),
	}, "USDT")

	outcome := results["ADA"]
	if !outcome.OK() || !outcome.Amount.IsZero() {
		t.Fatalf("expected zero success, got %+v", outcome)
	}
	if ex.sellCalls("ADA") != 0 {
		t.Fatalf("no sell order expected for negative request")
	}
}

func TestLiquidateAssets_ClampsToBalance(t *testing.T) {
	ex := newMockExchange(map[string]string{"DOT": "4"})
	svc := NewService(ex, Options{}, nil)

	results := svc.LiquidateAssets(context.Background(), map[string]decimal.Decimal{
		"DOT": dec("10"),
	}, "USDT")

	outcome := results["DOT"]
	if outcome.Err != nil {
		t.Fatalf("clamping must not produce an error: %v", outcome.Err)
	}
	if !outcome.Amount.Equal(dec("4")) {
		t.Fatalf("expected clamped amount 4, got %s", outcome.Amount)
	}
	sold := ex.soldAmounts("DOT")
	if len(sold) != 1 || !sold[0].Equal(dec("4")) {
		t.Fatalf("expected a single sell of 4, got %v", sold)
	}
}

func TestLiquidateAssets_ExactDecimalClamp(t *testing.T) {
	ex := newMockExchange(map[string]string{"BTC": "0.30000000000000000001"})
	svc := NewService(ex, Options{}, nil)

	results := svc.LiquidateAssets(context.Background(), map[string]decimal.Decimal{
		"BTC": dec("0.3"),
	}, "USDT")

	if got := results["BTC"].Amount; !got.Equal(dec("0.3")) {
		t.Fatalf("expected exact 0.3, got %s", got)
	}
}

func TestLiquidateAssets_RejectedSellIsZeroSuccess(t *testing.T) {
	ex := newMockExchange(map[string]string{"DOGE": "100"})
	ex.rejected["DOGE"] = true
	svc := NewService(ex, Options{}, nil)

	results := svc.LiquidateAssets(context.Background(), map[string]decimal.Decimal{
		"DOGE": dec("50"),
	}, "USDT")

	outcome := results["DOGE"]
	if outcome.Err != nil {
		t.Fatalf("rejected sell must not be an error: %v", outcome.Err)
	}
	if !outcome.Amount.IsZero() {
		t.Fatalf("expected zero amount, got %s", outcome.Amount)
	}
	if ex.sellCalls("DOGE") != 1 {
		t.Fatalf("expected exactly one sell attempt")
	}
}

func TestLiquidateAssets_BalanceFailureIsolated(t *testing.T) {
	ex := newMockExchange(map[string]string{"BTC": "1", "ETH": "2"})
	svc := NewService(ex, Options{}, nil)

	results := svc.LiquidateAssets(context.Background(), map[string]decimal.Decimal{
		"BTC": dec("0.5"),
		"FOO": dec("3"),
		"ETH": dec("2"),
	}, "USDT")

	foo := results["FOO"]
	if foo.Err == nil {
		t.Fatalf("expected failure for FOO")
	}
	if !errors.Is(foo.Err, ErrExchange) {
		t.Fatalf("expected exchange error kind, got %v", foo.Err)
	}
	if foo.Err.Error() != "exchange error: Asset not found: FOO" {
		t.Fatalf("unexpected error message: %q", foo.Err.Error())
	}
	if ex.sellCalls("FOO") != 0 {
		t.Fatalf("no sell expected after balance failure")
	}

	if got := results["BTC"]; !got.OK() || !got.Amount.Equal(dec("0.5")) {
		t.Errorf("BTC should resolve normally, got %+v", got)
	}
	if got := results["ETH"]; !got.OK() || !got.Amount.Equal(dec("2")) {
		t.Errorf("ETH should resolve normally, got %+v", got)
	}
}

func TestLiquidateAssets_PropagatesExactErrors(t *testing.T) {
	balanceErr := ExchangeError("balance endpoint down")
	sellErr := InsufficientBalance("LINK")

	ex := newMockExchange(map[string]string{"LINK": "9"})
	ex.balanceErrs["UNI"] = balanceErr
	ex.sellErrs["LINK"] = sellErr
	svc := NewService(ex, Options{}, nil)

	results := svc.LiquidateAssets(context.Background(), map[string]decimal.Decimal{
		"UNI":  dec("1"),
		"LINK": dec("3"),
	}, "USDT")

	if results["UNI"].Err != balanceErr {
		t.Errorf("expected balance error to be returned unchanged, got %v", results["UNI"].Err)
	}
	if results["LINK"].Err != sellErr {
		t.Errorf("expected sell error to be returned unchanged, got %v", results["LINK"].Err)
	}
	if !results["LINK"].Amount.IsZero() {
		t.Errorf("failed sell must not report an amount")
	}
}

func TestLiquidateAssets_SequentialAndConcurrentAgree(t *testing.T) {
	balances := map[string]string{"A": "1", "B": "2", "C": "3", "D": "0", "E": "5"}
	requests := map[string]decimal.Decimal{
		"A": dec("0.5"), "B": dec("5"), "C": dec("3"), "D": dec("1"), "E": dec("2"), "F": dec("1"),
	}

	for _, concurrency := range []int{0, 1, 2, 16} {
		ex := newMockExchange(balances)
		svc := NewService(ex, Options{Concurrency: concurrency}, nil)
		results := svc.LiquidateAssets(context.Background(), requests, "E")

		if len(results) != 5 {
			t.Fatalf("concurrency=%d: unexpected result count %d", concurrency, len(results))
		}
		want := map[string]string{"A": "0.5", "B": "2", "C": "3", "D": "0"}
		for asset, amount := range want {
			if got := results[asset]; !got.OK() || !got.Amount.Equal(dec(amount)) {
				t.Errorf("concurrency=%d: %s got %+v want %s", concurrency, asset, got, amount)
			}
		}
		if results["F"].OK() {
			t.Errorf("concurrency=%d: F should fail", concurrency)
		}
		for asset := range requests {
			if ex.balanceCalls(asset) > 1 || ex.sellCalls(asset) > 1 {
				t.Errorf("concurrency=%d: exchange called more than once for %s", concurrency, asset)
			}
		}
	}
}

func TestLiquidateAssets_EmptyRequest(t *testing.T) {
	svc := NewService(newMockExchange(nil), Options{}, nil)
	results := svc.LiquidateAssets(context.Background(), nil, "USDT")
	if len(results) != 0 {
		t.Fatalf("expected empty results, got %d", len(results))
	}
}

func TestResults_FailedAndAssets(t *testing.T) {
	results := Results{
		"ETH": {Amount: dec("1")},
		"BTC": {Amount: decimal.Zero, Err: ExchangeError("down")},
	}

	assets := results.Assets()
	if len(assets) != 2 || assets[0] != "BTC" || assets[1] != "ETH" {
		t.Fatalf("unexpected asset order: %v", assets)
	}
	failed := results.Failed()
	if len(failed) != 1 || failed["BTC"] == nil {
		t.Fatalf("unexpected failed set: %v", failed)
	}
}

type mockExchange struct {
	mu          sync.Mutex
	balances    map[string]decimal.Decimal
	rejected    map[string]bool
	balanceErrs map[string]error
	sellErrs    map[string]error
	balanceLog  map[string]int
	sells       map[string][]decimal.Decimal
}

func newMockExchange(balances map[string]string) *mockExchange {
	m := &mockExchange{
		balances:    make(map[string]decimal.Decimal, len(balances)),
		rejected:    make(map[string]bool),
		balanceErrs: make(map[string]error),
		sellErrs:    make(map[string]error),
		balanceLog:  make(map[string]int),
		sells:       make(map[string][]decimal.Decimal),
	}
	for asset, amount := range balances {
		m.balances[asset] = decimal.RequireFromString(amount)
	}
	return m
}

func (m *mockExchange) GetBalance(_ context.Context, asset string) (decimal.Decimal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.balanceLog[asset]++
	if err, ok := m.balanceErrs[asset]; ok {
		return decimal.Zero, err
	}
	balance, ok := m.balances[asset]
	if !ok {
		return decimal.Zero, ExchangeErrorf("Asset not found: %s", asset)
	}
	return balance, nil
}

func (m *mockExchange) PlaceMarketSellOrder(_ context.Context, asset string, amount decimal.Decimal) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.sells[asset] = append(m.sells[asset], amount)
	if err, ok := m.sellErrs[asset]; ok {
		return false, err
	}
	return !m.rejected[asset], nil
}

func (m *mockExchange) balanceCalls(asset string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.balanceLog[asset]
}

func (m *mockExchange) sellCalls(asset string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sells[asset])
}

func (m *mockExchange) soldAmounts(asset string) []decimal.Decimal {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]decimal.Decimal(nil), m.sells[asset]...)
}

func dec(value string) decimal.Decimal {
	return decimal.RequireFromString(value)
}
