// Package synclog keeps an append-only CSV audit trail of sync runs
// next to the config file. It is the only local record of past runs;
// losing it costs nothing because dedup state lives at the service.
package synclog

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Entry is one row in sync-log.csv: one account in one run.
type Entry struct {
	Timestamp     time.Time
	BankAccount   string
	BudgetAccount string
	Fetched       int
	Skipped       int
	Created       int
	Failed        int
}

// Header is the CSV header for sync-log.csv.
const Header = "timestamp,bank_account,budget_account,fetched,skipped,created,failed"

const (
	numFields = 7
	fileName  = "sync-log.csv"

	colTimestamp     = 0
	colBankAccount   = 1
	colBudgetAccount = 2
	colFetched       = 3
	colSkipped       = 4
	colCreated       = 5
	colFailed        = 6
)

// MarshalEntry converts an Entry to a CSV row.
func MarshalEntry(e Entry) []string {
	row := make([]string, numFields)
	row[colTimestamp] = e.Timestamp.Format(time.RFC3339)
	row[colBankAccount] = e.BankAccount
	row[colBudgetAccount] = e.BudgetAccount
	row[colFetched] = strconv.Itoa(e.Fetched)
	row[colSkipped] = strconv.Itoa(e.Skipped)
	row[colCreated] = strconv.Itoa(e.Created)
	row[colFailed] = strconv.Itoa(e.Failed)
	return row
}

// UnmarshalEntry converts a CSV row to an Entry.
func UnmarshalEntry(record []string) (Entry, error) {
	if len(record) != numFields {
		return Entry{}, fmt.Errorf("expected %d fields, got %d", numFields, len(record))
	}

	ts, err := time.Parse(time.RFC3339, record[colTimestamp])
	if err != nil {
		return Entry{}, fmt.Errorf("parsing timestamp %q: %w", record[colTimestamp], err)
	}

	counts := make([]int, 4)
	for i, col := range []int{colFetched, colSkipped, colCreated, colFailed} {
		n, err := strconv.Atoi(record[col])
		if err != nil {
			return Entry{}, fmt.Errorf("parsing count %q: %w", record[col], err)
		}
		counts[i] = n
	}

	return Entry{
		Timestamp:     ts,
		BankAccount:   record[colBankAccount],
		BudgetAccount: record[colBudgetAccount],
		Fetched:       counts[0],
		Skipped:       counts[1],
		Created:       counts[2],
		Failed:        counts[3],
	}, nil
}

// Append writes entries to <configDir>/sync-log.csv, creating the file
// and header if needed.
func Append(configDir string, entries []Entry) error {
	if err := os.MkdirAll(configDir, 0o700); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}

	path := filepath.Join(configDir, fileName)
	needsHeader := false
	if _, err := os.Stat(path); os.IsNotExist(err) {
		needsHeader = true
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("opening sync log: %w", err)
	}
	defer f.Close()

	cw := csv.NewWriter(f)
	defer cw.Flush()

	if needsHeader {
		if err := cw.Write(strings.Split(Header, ",")); err != nil {
			return fmt.Errorf("writing header: %w", err)
		}
	}

	for i, e := range entries {
		if err := cw.Write(MarshalEntry(e)); err != nil {
			return fmt.Errorf("writing entry %d: %w", i, err)
		}
	}

	return cw.Error()
}

// Read returns all entries from <configDir>/sync-log.csv.
// Returns nil if the file does not exist.
func Read(configDir string) ([]Entry, error) {
	path := filepath.Join(configDir, fileName)
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("opening sync log: %w", err)
	}
	defer f.Close()

	return readEntries(f)
}

func readEntries(r io.Reader) ([]Entry, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = numFields

	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading sync log CSV: %w", err)
	}

	if len(records) <= 1 {
		return nil, nil
	}

	var entries []Entry
	for i, rec := range records[1:] {
		e, err := UnmarshalEntry(rec)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+2, err)
		}
		entries = append(entries, e)
	}
	return entries, nil
}
