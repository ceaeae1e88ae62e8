package balance

import "fmt"

// Account is the (data, minutes, texts) triple for one account, either
// its remaining usage or its plan allotment.
type Account struct {
	Data    Quantity
	Minutes Quantity
	Texts   Quantity
}

// ParseAccount parses the three scraped balance strings in display order.
func ParseAccount(data, minutes, texts string) (Account, error) {
	var (
		a   Account
		err error
	)
	if a.Data, err = Parse(data); err != nil {
		return Account{}, fmt.Errorf("data: %w", err)
	}
	if a.Minutes, err = Parse(minutes); err != nil {
		return Account{}, fmt.Errorf("minutes: %w", err)
	}
	if a.Texts, err = Parse(texts); err != nil {
		return Account{}, fmt.Errorf("texts: %w", err)
	}
	return a, nil
}

// Add combines two balances field by field
func (a Account) Add(other Account) (Account, error) {
	data, err := a.Data.Add(other.Data)
	if err != nil {
		return Account{}, fmt.Errorf("data: %w", err)
	}
	minutes, err := a.Minutes.Add(other.Minutes)
	if err != nil {
		return Account{}, fmt.Errorf("minutes: %w", err)
	}
	texts, err := a.Texts.Add(other.Texts)
	if err != nil {
		return Account{}, fmt.Errorf("texts: %w", err)
	}
	return Account{Data: data, Minutes: minutes, Texts: texts}, nil
}

// Equal reports field-wise equality
func (a Account) Equal(other Account) bool {
	return a.Data.Equal(other.Data) && a.Minutes.Equal(other.Minutes) && a.Texts.Equal(other.Texts)
}

// String renders "<data>, <minutes>, <texts>"
func (a Account) String() string {
	return a.Data.String() + ", " + a.Minutes.String() + ", " + a.Texts.String()
}

// MarshalText lets an Account appear as its display string in JSON and logs.
func (a Account) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}
