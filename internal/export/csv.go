// Package export renders tally datasets into downloadable tabular files.
package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/roach88/quorum/internal/platform"
)

// CSV implements platform.Exporter with RFC 4180 output.
type CSV struct{}

// NewCSV returns a CSV exporter.
func NewCSV() *CSV {
	return &CSV{}
}

func (c *CSV) ContentType() string {
	return "text/csv"
}

func (c *CSV) FileExt() string {
	return ".csv"
}

// Export writes a header row followed by the data rows.
func (c *CSV) Export(headers []string, rows [][]string) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write(headers); err != nil {
		return nil, fmt.Errorf("export csv: write header: %w", err)
	}
	for _, row := range rows {
		if err := w.Write(row); err != nil {
			return nil, fmt.Errorf("export csv: write row: %w", err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("export csv: flush: %w", err)
	}

	return buf.Bytes(), nil
}

var unsafeFilenameChars = regexp.MustCompile(`[^a-z0-9_]+`)

// Filename derives a download filename hint from a poll subject and the
// close time: "2006_01_02_15_04_<subject>". Subjects are lowercased and
// squeezed to filename-safe characters.
func Filename(subject string, at time.Time) string {
	slug := strings.ToLower(strings.TrimSpace(subject))
	slug = unsafeFilenameChars.ReplaceAllString(slug, "_")
	slug = strings.Trim(slug, "_")
	if slug == "" {
		slug = "results"
	}
	return at.UTC().Format("2006_01_02_15_04_") + slug
}

var _ platform.Exporter = (*CSV)(nil)
