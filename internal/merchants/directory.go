package merchants

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/samber/lo"
)

// Merchant is one configured storefront. Region assignment comes from this
// table only; merchant names are never parsed for market codes.
type Merchant struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Region  string `json:"region"`
	Country string `json:"country,omitempty"`
	// Parent is the multi-client account that reports on this merchant, if any.
	Parent string `json:"parent,omitempty"`
}

type Directory struct {
	merchants []Merchant
}

func NewDirectory(merchants []Merchant) Directory {
	return Directory{merchants: append([]Merchant(nil), merchants...)}
}

const europeMCA = "117117533"

func DefaultDirectory() Directory {
	return NewDirectory([]Merchant{
		{ID: "6000402", Name: "ECCO US", Region: "global", Country: "US"},
		{ID: "126580264", Name: "ECCO CA", Region: "global", Country: "CA"},
		{ID: "124463984", Name: "ECCO AU", Region: "global", Country: "AU"},
		{ID: "115079344", Name: "ECCO GB", Region: "europe", Country: "GB", Parent: europeMCA},
		{ID: "117076029", Name: "ECCO DE", Region: "europe", Country: "DE", Parent: europeMCA},
		{ID: "115432148", Name: "ECCO DK", Region: "europe", Country: "DK", Parent: europeMCA},
		{ID: "115975194", Name: "ECCO FR", Region: "europe", Country: "FR", Parent: europeMCA},
		{ID: "117088301", Name: "ECCO NL", Region: "europe", Country: "NL", Parent: europeMCA},
	})
}

// LoadDirectory reads a JSON array of merchants. An empty path yields DefaultDirectory.
func LoadDirectory(path string) (Directory, error) {
	if path == "" {
		return DefaultDirectory(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Directory{}, fmt.Errorf("read merchant directory: %w", err)
	}
	var merchants []Merchant
	if err := json.Unmarshal(data, &merchants); err != nil {
		return Directory{}, fmt.Errorf("parse merchant directory %s: %w", path, err)
	}
	for i, m := range merchants {
		if m.Name == "" || m.Region == "" {
			return Directory{}, fmt.Errorf("merchant directory entry %d needs a name and a region", i)
		}
	}
	return NewDirectory(merchants), nil
}

func (d Directory) ByID(id string) (Merchant, bool) {
	if id == "" {
		return Merchant{}, false
	}
	return lo.Find(d.merchants, func(m Merchant) bool { return m.ID == id })
}

func (d Directory) ByName(name string) (Merchant, bool) {
	return lo.Find(d.merchants, func(m Merchant) bool { return strings.EqualFold(m.Name, name) })
}

// Lookup matches by account id first, then by exact display name.
func (d Directory) Lookup(name, accountID string) (Merchant, bool) {
	if m, ok := d.ByID(accountID); ok {
		return m, true
	}
	if m, ok := d.ByID(name); ok {
		return m, true
	}
	return d.ByName(name)
}

// InRegion lists the configured merchants for region in table order.
func (d Directory) InRegion(region string) []Merchant {
	return lo.Filter(d.merchants, func(m Merchant, _ int) bool { return strings.EqualFold(m.Region, region) })
}

// Regions lists every region named in the table.
func (d Directory) Regions() []string {
	return lo.Uniq(lo.Map(d.merchants, func(m Merchant, _ int) string { return strings.ToLower(m.Region) }))
}

// Classify drops records the directory assigns to a different region. A
// record carrying an account id is placed by that id alone; merchants missing
// from the directory are kept. If nothing would survive, records are returned
// unfiltered.
func (d Directory) Classify(region string, records []Status) []Status {
	kept := lo.Filter(records, func(s Status, _ int) bool {
		m, ok := d.place(s)
		return !ok || strings.EqualFold(m.Region, region)
	})
	if len(kept) == 0 {
		return records
	}
	return kept
}

func (d Directory) place(s Status) (Merchant, bool) {
	if s.AccountID != "" {
		return d.ByID(s.AccountID)
	}
	return d.ByName(s.Name)
}
