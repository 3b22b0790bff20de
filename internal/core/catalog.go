package core

import (
	"sort"
	"strings"
)

// FundName identifies a designated purpose for collected money.
// The set is open: unknown names are carried and summed like known ones.
type FundName string

const (
	FundOffering     FundName = "offering"
	FundTithe        FundName = "tithe"
	FundTransport    FundName = "transport"
	FundProject      FundName = "project"
	FundShiloh       FundName = "shiloh"
	FundThanksgiving FundName = "thanksgiving"
	FundNeedy        FundName = "needy"
)

// NotesThreshold splits report rows: values above it are notes, the rest coins.
const NotesThreshold int64 = 500

type (
	DenominationSpec struct {
		Value int64  `yaml:"value" json:"value"`
		Label string `yaml:"label" json:"label"`
	}

	FundSpec struct {
		Name  FundName `yaml:"name" json:"name"`
		Label string   `yaml:"label" json:"label"`
	}

	// Catalog is the configured set of denominations and funds a branch
	// counts with.
	Catalog struct {
		Currency      string             `yaml:"currency" json:"currency"`
		Denominations []DenominationSpec `yaml:"denominations" json:"denominations"`
		Funds         []FundSpec         `yaml:"funds" json:"funds"`
	}
)

// DefaultCatalog mirrors the counting sheet used by the branches: naira
// notes from 10 000 down to 1 and the seven standard funds.
func DefaultCatalog() Catalog {
	return Catalog{
		Currency: "₦",
		Denominations: []DenominationSpec{
			{Value: 10000, Label: "10 000"},
			{Value: 5000, Label: "5 000"},
			{Value: 2000, Label: "2 000"},
			{Value: 1000, Label: "1 000"},
			{Value: 500, Label: "500"},
			{Value: 100, Label: "100"},
			{Value: 50, Label: "50"},
			{Value: 25, Label: "25"},
			{Value: 10, Label: "10"},
			{Value: 5, Label: "5"},
			{Value: 2, Label: "2"},
			{Value: 1, Label: "1"},
		},
		Funds: []FundSpec{
			{Name: FundOffering, Label: "Offering"},
			{Name: FundTithe, Label: "Tithe"},
			{Name: FundTransport, Label: "Transport"},
			{Name: FundProject, Label: "Project"},
			{Name: FundShiloh, Label: "Shiloh"},
			{Name: FundThanksgiving, Label: "Thanksgiving"},
			{Name: FundNeedy, Label: "Needy"},
		},
	}
}

// Validate checks the catalog for positive, unique denominations and
// non-empty, unique fund names.
func (c Catalog) Validate() error {
	if len(c.Denominations) == 0 {
		return NewValidationError("denominations", "catalog needs at least one denomination")
	}
	seen := make(map[int64]struct{}, len(c.Denominations))
	for _, d := range c.Denominations {
		if err := checkValue(d.Value); err != nil {
			return err
		}
		if _, dup := seen[d.Value]; dup {
			return &ValidationError{Field: "denominations", Reason: "duplicate value", Err: ErrDuplicateValue}
		}
		seen[d.Value] = struct{}{}
	}
	funds := make(map[FundName]struct{}, len(c.Funds))
	for _, f := range c.Funds {
		if strings.TrimSpace(string(f.Name)) == "" {
			return &ValidationError{Field: "funds", Reason: "empty fund name", Err: ErrEmptyFund}
		}
		if _, dup := funds[f.Name]; dup {
			return NewValidationError("funds", "duplicate fund "+string(f.Name))
		}
		funds[f.Name] = struct{}{}
	}
	return nil
}

// NewLedger returns a ledger pre-populated with every catalog denomination
// at zero counts.
func (c Catalog) NewLedger() *Ledger {
	l := &Ledger{}
	for _, d := range c.Denominations {
		// Validate has already rejected duplicates and non-positive values.
		_ = l.AddDenomination(d.Value)
	}
	return l
}

// FundLabel returns the display label for a fund, falling back to the
// capitalised name for funds outside the catalog.
func (c Catalog) FundLabel(name FundName) string {
	for _, f := range c.Funds {
		if f.Name == name && f.Label != "" {
			return f.Label
		}
	}
	s := string(name)
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// DenominationLabel returns the label for a value, or its grouped digits.
func (c Catalog) DenominationLabel(value int64) string {
	for _, d := range c.Denominations {
		if d.Value == value && d.Label != "" {
			return d.Label
		}
	}
	return FormatAmount(value, "")
}

// FundOrder lists the catalog funds first, in catalog order, followed by
// any extra funds present in the given set sorted by name.
func (c Catalog) FundOrder(present map[FundName]int64) []FundName {
	out := make([]FundName, 0, len(c.Funds)+len(present))
	known := make(map[FundName]struct{}, len(c.Funds))
	for _, f := range c.Funds {
		out = append(out, f.Name)
		known[f.Name] = struct{}{}
	}
	var extra []FundName
	for name := range present {
		if _, ok := known[name]; !ok {
			extra = append(extra, name)
		}
	}
	sort.Slice(extra, func(i, j int) bool { return extra[i] < extra[j] })
	return append(out, extra...)
}
