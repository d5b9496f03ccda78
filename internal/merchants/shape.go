package merchants

import (
	"math"
	"strconv"
	"strings"

	"github.com/samber/lo"
	"github.com/tidwall/gjson"
)

const (
	shoppingDestination = "Shopping"
	onlineChannel       = "online"
)

// Shape flattens one upstream account status into a Status.
// It never fails: missing or malformed fields become zero values.
func Shape(name string, raw []byte) Status {
	return shape(name, "", gjson.ParseBytes(raw))
}

// ShapeForCountry is Shape, preferring the Shopping/online product reported for country.
func ShapeForCountry(name, country string, raw []byte) Status {
	return shape(name, country, gjson.ParseBytes(raw))
}

// ShapeResponse shapes a whole backend response. Both the direct map
// {"ECCO GB": {...status}} and the envelope {"ECCO EUROPE": {"data": [{name, data}]}}
// are accepted. Records keep document order.
func ShapeResponse(raw []byte, dir Directory) []Status {
	doc := gjson.ParseBytes(raw)
	out := []Status{}
	if !doc.IsObject() {
		return out
	}
	doc.ForEach(func(key, value gjson.Result) bool {
		if !value.IsObject() {
			return true
		}
		if entries := value.Get("data"); entries.IsArray() {
			for _, entry := range entries.Array() {
				out = append(out, shapeEnvelopeEntry(entry, dir))
			}
			return true
		}
		name := key.String()
		m, known := dir.Lookup(name, value.Get("accountId").String())
		if known {
			name = m.Name
		}
		out = append(out, shape(name, m.Country, value))
		return true
	})
	return out
}

func shapeEnvelopeEntry(entry gjson.Result, dir Directory) Status {
	name := entry.Get("name").String()
	payload := entry.Get("data")
	if !payload.IsObject() && entry.Get("products").Exists() {
		payload = entry
	}

	m, _ := dir.Lookup(name, payload.Get("accountId").String())
	if !payload.IsObject() {
		s := shape(name, m.Country, gjson.Result{})
		s.AccountID = m.ID
		if msg := entry.Get("error").String(); msg != "" {
			s.AccountIssues = append(s.AccountIssues, AccountIssue{
				Title:    "Status unavailable",
				Detail:   msg,
				Severity: "critical",
			})
		}
		return s
	}
	return shape(name, m.Country, payload)
}

func shape(name, country string, status gjson.Result) Status {
	s := Status{
		Name:          name,
		AccountID:     status.Get("accountId").String(),
		Country:       country,
		State:         Inactive,
		AccountIssues: []AccountIssue{},
		ItemIssues:    []ItemIssue{},
	}
	if status.Get("websiteClaimed").Bool() {
		s.State = Active
	}

	for _, issue := range status.Get("accountLevelIssues").Array() {
		s.AccountIssues = append(s.AccountIssues, AccountIssue{
			Title:         issue.Get("title").String(),
			Detail:        issue.Get("detail").String(),
			Severity:      issue.Get("severity").String(),
			Documentation: issue.Get("documentation").String(),
		})
	}

	product, ok := selectProduct(status.Get("products").Array(), country)
	if !ok {
		return s
	}
	if s.Country == "" {
		s.Country = product.Get("country").String()
	}

	stats := product.Get("statistics")
	s.Approved = count(stats.Get("active"))
	s.Disapproved = count(stats.Get("disapproved"))
	s.Pending = count(stats.Get("pending"))
	s.Expiring = count(stats.Get("expiring"))

	s.ItemIssues = lo.Map(product.Get("itemLevelIssues").Array(), func(issue gjson.Result, _ int) ItemIssue {
		affected := issue.Get("numItems")
		if !affected.Exists() {
			affected = issue.Get("count")
		}
		return ItemIssue{
			Code:          issue.Get("code").String(),
			Description:   issue.Get("description").String(),
			Detail:        issue.Get("detail").String(),
			Severity:      severity(issue),
			AffectedItems: count(affected),
			Documentation: issue.Get("documentation").String(),
		}
	})
	return s
}

// selectProduct returns the first Shopping/online product. When country is set,
// the first one reported for that country wins over earlier entries.
func selectProduct(products []gjson.Result, country string) (gjson.Result, bool) {
	candidates := lo.Filter(products, func(p gjson.Result, _ int) bool {
		return strings.EqualFold(p.Get("destination").String(), shoppingDestination) &&
			strings.EqualFold(p.Get("channel").String(), onlineChannel)
	})
	if country != "" {
		if p, ok := lo.Find(candidates, func(p gjson.Result) bool {
			return strings.EqualFold(p.Get("country").String(), country)
		}); ok {
			return p, true
		}
	}
	return lo.First(candidates)
}

func severity(issue gjson.Result) Severity {
	switch strings.ToLower(issue.Get("severity").String()) {
	case string(SeverityError):
		return SeverityError
	case string(SeverityWarning):
		return SeverityWarning
	}
	if strings.EqualFold(issue.Get("servability").String(), "disapproved") {
		return SeverityError
	}
	return SeverityWarning
}

// count reads a non-negative integer from a JSON number or numeric string.
func count(v gjson.Result) int {
	var n float64
	switch v.Type {
	case gjson.Number:
		n = v.Num
	case gjson.String:
		f, err := strconv.ParseFloat(strings.TrimSpace(v.Str), 64)
		if err != nil {
			return 0
		}
		n = f
	default:
		return 0
	}
	if math.IsNaN(n) || n <= 0 {
		return 0
	}
	if n > math.MaxInt32 {
		return math.MaxInt32
	}
	return int(n)
}
