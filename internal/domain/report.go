package domain

import "encoding/json"

// Report is the outcome of one reconciliation run.
type Report struct {
	Success   bool
	Published int
	Results   []ItemResult
	Message   string
	Error     string
	Details   string
}

type ItemResult struct {
	ContentID       string           `json:"contentId"`
	Title           string           `json:"title"`
	PlatformResults []PlatformResult `json:"platformResults,omitempty"`
	Errors          []PlatformError  `json:"errors,omitempty"`
	// Error is set when the item itself could not be processed.
	Error string `json:"error,omitempty"`
}

type PlatformResult struct {
	Platform Platform `json:"platform"`
	Success  bool     `json:"success"`
	Message  string   `json:"message,omitempty"`
}

type PlatformError struct {
	Platform Platform `json:"platform"`
	Error    string   `json:"error"`
}

// HasFailures reports whether the run failed or any item or platform failed.
func (r Report) HasFailures() bool {
	if !r.Success {
		return true
	}
	for _, res := range r.Results {
		if res.Error != "" || len(res.Errors) > 0 {
			return true
		}
	}
	return false
}

// MarshalJSON keeps the failure shape to {success, error, details} and
// always emits published/results on success.
func (r Report) MarshalJSON() ([]byte, error) {
	if !r.Success {
		return json.Marshal(struct {
			Success bool   `json:"success"`
			Error   string `json:"error"`
			Details string `json:"details,omitempty"`
		}{r.Success, r.Error, r.Details})
	}

	results := r.Results
	if results == nil {
		results = []ItemResult{}
	}
	return json.Marshal(struct {
		Success   bool         `json:"success"`
		Published int          `json:"published"`
		Results   []ItemResult `json:"results"`
		Message   string       `json:"message,omitempty"`
	}{r.Success, r.Published, results, r.Message})
}

func (r *Report) UnmarshalJSON(data []byte) error {
	var raw struct {
		Success   bool         `json:"success"`
		Published int          `json:"published"`
		Results   []ItemResult `json:"results"`
		Message   string       `json:"message"`
		Error     string       `json:"error"`
		Details   string       `json:"details"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*r = Report{
		Success:   raw.Success,
		Published: raw.Published,
		Results:   raw.Results,
		Message:   raw.Message,
		Error:     raw.Error,
		Details:   raw.Details,
	}
	return nil
}
