package models

import (
	"encoding/json"
	"fmt"
)

// Currency is one of a fixed set of resource kinds.
type Currency int

const (
	Coins Currency = iota
	Keks
	Keys
	Fragments

	numCurrencies
)

var currencyNames = [numCurrencies]string{
	Coins:     "coins",
	Keks:      "keks",
	Keys:      "keys",
	Fragments: "fragments",
}

var currencyTitles = [numCurrencies]string{
	Coins:     "Coins",
	Keks:      "Keks",
	Keys:      "Keys",
	Fragments: "Fragments",
}

// AllCurrencies lists every currency in declaration order.
func AllCurrencies() []Currency {
	out := make([]Currency, 0, numCurrencies)
	for c := Currency(0); c < numCurrencies; c++ {
		out = append(out, c)
	}
	return out
}

// Valid reports whether c is a declared currency.
func (c Currency) Valid() bool {
	return c >= 0 && c < numCurrencies
}

func (c Currency) String() string {
	if !c.Valid() {
		return fmt.Sprintf("Currency(%d)", int(c))
	}
	return currencyNames[c]
}

// DisplayName is the item name shown to players, e.g. "Currency:Coins".
func (c Currency) DisplayName() string {
	if !c.Valid() {
		return c.String()
	}
	return "Currency:" + currencyTitles[c]
}

// ParseCurrency resolves a wire name such as "coins".
func ParseCurrency(s string) (Currency, error) {
	for c, name := range currencyNames {
		if name == s {
			return Currency(c), nil
		}
	}
	return 0, fmt.Errorf("unknown currency %q", s)
}

func (c Currency) MarshalText() ([]byte, error) {
	if !c.Valid() {
		return nil, fmt.Errorf("unknown currency %d", int(c))
	}
	return []byte(currencyNames[c]), nil
}

func (c *Currency) UnmarshalText(text []byte) error {
	parsed, err := ParseCurrency(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// CurrencyMap holds one balance per currency. It is a value type so copying a
// Player copies its balances.
type CurrencyMap [numCurrencies]int64

func (m CurrencyMap) MarshalJSON() ([]byte, error) {
	out := make(map[string]int64, numCurrencies)
	for c, v := range m {
		out[currencyNames[c]] = v
	}
	return json.Marshal(out)
}

// UnmarshalJSON accepts a partial map; missing currencies are zero.
func (m *CurrencyMap) UnmarshalJSON(data []byte) error {
	var raw map[string]int64
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	var out CurrencyMap
	for name, v := range raw {
		c, err := ParseCurrency(name)
		if err != nil {
			return err
		}
		if v < 0 {
			return fmt.Errorf("negative balance for %s", name)
		}
		out[c] = v
	}
	*m = out
	return nil
}
