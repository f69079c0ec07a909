// Package render draws account and note listings as text tables.
package render

import (
	"io"
	"strconv"

	"github.com/olekukonko/tablewriter"
)

// AccountRow is one line of the account table.
type AccountRow struct {
	ID          string
	StorageMode string
	Nonce       uint64
	Balance     uint64
	Pending     uint64
}

// NoteRow is one (note, account, relevance) line of the consumable notes table.
type NoteRow struct {
	NoteID    string
	AccountID string
	Relevance string
}

func newTable(w io.Writer, header []string) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetHeader(header)
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	return table
}

// Accounts writes the account table.
func Accounts(w io.Writer, rows []AccountRow) {
	table := newTable(w, []string{"Account ID", "Storage Mode", "Nonce", "Amount", "Pending"})
	for _, r := range rows {
		table.Append([]string{
			r.ID,
			r.StorageMode,
			strconv.FormatUint(r.Nonce, 10),
			strconv.FormatUint(r.Balance, 10),
			strconv.FormatUint(r.Pending, 10),
		})
	}
	table.Render()
}

// Notes writes the consumable notes table.
func Notes(w io.Writer, rows []NoteRow) {
	table := newTable(w, []string{"Note ID", "Account ID", "Relevance"})
	for _, r := range rows {
		table.Append([]string{r.NoteID, r.AccountID, r.Relevance})
	}
	table.Render()
}
