package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestReportJSON_NothingToDo(t *testing.T) {
	data, err := json.Marshal(Report{Success: true})
	require.NoError(t, err)
	require.JSONEq(t, `{"success":true,"published":0,"results":[]}`, string(data))
}

func TestReportJSON_Failure(t *testing.T) {
	data, err := json.Marshal(Report{Success: false, Published: 3, Error: "boom", Details: "db down"})
	require.NoError(t, err)
	require.JSONEq(t, `{"success":false,"error":"boom","details":"db down"}`, string(data))
}

func TestReportJSON_PartialDelivery(t *testing.T) {
	r := Report{
		Success:   true,
		Published: 1,
		Results: []ItemResult{{
			ContentID:       "b",
			Title:           "Launch",
			PlatformResults: []PlatformResult{{Platform: PlatformTelegram, Success: true}},
			Errors:          []PlatformError{{Platform: PlatformInstagram, Error: "not implemented"}},
		}},
	}
	data, err := json.Marshal(r)
	require.NoError(t, err)
	require.JSONEq(t, `{
		"success": true,
		"published": 1,
		"results": [{
			"contentId": "b",
			"title": "Launch",
			"platformResults": [{"platform": "TELEGRAM", "success": true}],
			"errors": [{"platform": "INSTAGRAM", "error": "not implemented"}]
		}]
	}`, string(data))

	var decoded Report
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.Equal(t, r, decoded)
	require.True(t, decoded.HasFailures())
}
