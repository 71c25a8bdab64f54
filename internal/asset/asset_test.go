package asset

import "testing"

func TestRegistryNormalizes(t *testing.T) {
	r := NewRegistry([]string{" btc ", "ETH", "eth", "", "usdt"})

	want := []string{"BTC", "ETH", "USDT"}
	got := r.Symbols()
	if len(got) != len(want) {
		t.Fatalf("expected %d symbols, got %v", len(want), got)
	}
	for i, sym := range want {
		if got[i] != sym {
			t.Fatalf("expected %s at %d, got %s", sym, i, got[i])
		}
	}

	if !r.Contains("BTC") {
		t.Fatal("expected BTC supported")
	}
	if r.Contains("btc") {
		t.Fatal("lookup is by canonical upper-case symbol")
	}
	if r.Contains("XYZ") {
		t.Fatal("unexpected symbol supported")
	}
}

func TestDefaultRegistry(t *testing.T) {
	r := Default()
	if r.Len() != len(DefaultSymbols) {
		t.Fatalf("expected %d default assets, got %d", len(DefaultSymbols), r.Len())
	}
	for _, sym := range DefaultSymbols {
		if !r.Contains(sym) {
			t.Fatalf("default registry missing %s", sym)
		}
	}
}

func TestSymbolsReturnsCopy(t *testing.T) {
	r := Default()
	syms := r.Symbols()
	syms[0] = "HACK"
	if r.Symbols()[0] == "HACK" {
		t.Fatal("Symbols exposed internal slice")
	}
}
