package render

import (
	"bytes"
	"strings"
	"testing"
)

func TestAccounts(t *testing.T) {
	var buf bytes.Buffer
	Accounts(&buf, []AccountRow{{ID: "0xa0000000000a11ce", StorageMode: "private", Nonce: 2, Balance: 60, Pending: 5}})
	out := buf.String()
	for _, want := range []string{"Account ID", "Storage Mode", "0xa0000000000a11ce", "private", "60"} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q in:\n%s", want, out)
		}
	}
}

func TestNotesEmpty(t *testing.T) {
	var buf bytes.Buffer
	Notes(&buf, nil)
	if !strings.Contains(buf.String(), "Relevance") {
		t.Fatalf("header missing:\n%s", buf.String())
	}
}
