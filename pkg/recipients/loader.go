// Package recipients loads the (name, email) list used to seed new threads.
package recipients

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"raid-mail-agent/pkg/mailtext"
)

type Recipient struct {
	Name  string
	Email string
}

// LoadFile reads a recipients CSV from disk
func LoadFile(path string) ([]Recipient, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open recipients file: %w", err)
	}
	defer f.Close()
	return Load(f)
}

// Load parses CSV rows of name,email. A header row is detected and skipped,
// column order follows the header when present. Rows without a valid address
// are skipped and duplicate addresses keep their first row. A row the CSV
// reader rejects, such as an unescaped display name in quotes, is split on
// commas instead. Quoted fields cannot span lines.
func Load(r io.Reader) ([]Recipient, error) {
	scanner := bufio.NewScanner(r)

	nameCol, emailCol := 0, 1
	seen := make(map[string]bool)
	first := true
	var out []Recipient

	for line := 1; scanner.Scan(); line++ {
		text := scanner.Text()
		if strings.TrimSpace(text) == "" {
			continue
		}
		record, err := parseRow(text)
		if err != nil {
			log.Printf("[Recipients] Line %d is not valid CSV (%v), splitting on commas", line, err)
			record = splitRow(text)
		}
		if first {
			first = false
			if isHeader(record) {
				nameCol, emailCol = headerColumns(record)
				continue
			}
		}
		if len(record) <= max(nameCol, emailCol) {
			continue
		}

		_, email := mailtext.ParseAddress(record[emailCol])
		if !strings.Contains(email, "@") || strings.ContainsAny(email, "\" <>,") || seen[email] {
			continue
		}
		seen[email] = true
		out = append(out, Recipient{Name: strings.TrimSpace(record[nameCol]), Email: email})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read recipients: %w", err)
	}
	return out, nil
}

func parseRow(text string) ([]string, error) {
	reader := csv.NewReader(strings.NewReader(text))
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	return reader.Read()
}

func splitRow(text string) []string {
	fields := strings.Split(text, ",")
	for i := range fields {
		fields[i] = strings.TrimSpace(fields[i])
	}
	return fields
}

func isHeader(record []string) bool {
	for _, field := range record {
		if strings.EqualFold(strings.TrimSpace(field), "email") {
			return true
		}
	}
	return false
}

func headerColumns(record []string) (nameCol, emailCol int) {
	nameCol, emailCol = 0, 1
	for i, field := range record {
		switch strings.ToLower(strings.TrimSpace(field)) {
		case "name", "full name", "full_name":
			nameCol = i
		case "email", "e-mail":
			emailCol = i
		}
	}
	return nameCol, emailCol
}
