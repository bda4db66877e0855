package domain

import "github.com/kailas-cloud/toxfilter/internal/domain/severity"

// Warning is the indicator a composer surface renders next to the editable element.
type Warning struct {
	Severity severity.Level `json:"severity"`
	Label    string         `json:"label"`
	Detail   string         `json:"detail"`
}
