package eventlog

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/kailas-cloud/toxfilter/internal/domain/event"
)

// Export formats.
const (
	FormatJSON = "json"
	FormatCSV  = "csv"
)

var csvHeader = []string{"timestamp", "source", "word", "severity", "hate_score", "domain", "text"}

// Export writes events in the given format.
func Export(w io.Writer, format string, events []event.Event) error {
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if events == nil {
			events = []event.Event{}
		}
		return enc.Encode(events)
	case FormatCSV:
		cw := csv.NewWriter(w)
		if err := cw.Write(csvHeader); err != nil {
			return err
		}
		for _, e := range events {
			score := ""
			if e.Score != 0 {
				score = strconv.FormatFloat(e.Score, 'f', 4, 64)
			}
			row := []string{
				e.Timestamp.UTC().Format(time.RFC3339),
				string(e.Source),
				e.Word,
				string(e.Severity),
				score,
				e.Domain,
				e.Text,
			}
			if err := cw.Write(row); err != nil {
				return err
			}
		}
		cw.Flush()
		return cw.Error()
	default:
		return fmt.Errorf("unknown export format %q", format)
	}
}
