package backend

import (
	"context"
	"embed"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"
)

//go:embed mockdata/*.json
var mockData embed.FS

// Mock serves canned ECCO responses. Global uses the enveloped shape and
// europe the direct map, so both shaper paths are exercised.
type Mock struct{}

func (Mock) Fetch(_ context.Context, region string) (json.RawMessage, error) {
	if strings.ContainsAny(region, "/.") {
		return nil, invalidRegion()
	}
	data, err := mockData.ReadFile("mockdata/" + region + ".json")
	if err != nil {
		return nil, invalidRegion()
	}
	return data, nil
}

func (Mock) FetchMerchant(_ context.Context, merchantID string) (json.RawMessage, error) {
	entries, err := mockData.ReadDir("mockdata")
	if err != nil {
		return nil, err
	}
	for _, entry := range entries {
		data, err := mockData.ReadFile("mockdata/" + entry.Name())
		if err != nil {
			return nil, err
		}
		if status, ok := findAccount(gjson.ParseBytes(data), merchantID); ok {
			out, err := json.Marshal(map[string]json.RawMessage{merchantID: json.RawMessage(status.Raw)})
			if err != nil {
				return nil, err
			}
			return out, nil
		}
	}
	return nil, &HTTPError{Endpoint: "merchant", StatusCode: http.StatusNotFound, Body: `{"error": "Status not found"}`}
}

func (Mock) Health(context.Context) error { return nil }

func findAccount(doc gjson.Result, id string) (gjson.Result, bool) {
	var found gjson.Result
	doc.ForEach(func(_, value gjson.Result) bool {
		if value.Get("accountId").String() == id {
			found = value
			return false
		}
		for _, entry := range value.Get("data").Array() {
			if entry.Get("data.accountId").String() == id {
				found = entry.Get("data")
				return false
			}
		}
		return true
	})
	return found, found.Exists()
}

func invalidRegion() error {
	return &HTTPError{Endpoint: "merchants", StatusCode: http.StatusBadRequest, Body: `{"error": "Invalid region"}`}
}
