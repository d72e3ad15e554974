package domain

import (
	"testing"
	"unicode/utf8"
)

// Parsing arbitrary path params must never panic, and anything accepted must
// survive a round trip through String.
func FuzzParseComplaintID(f *testing.F) {
	f.Add("")
	f.Add("550e8400-e29b-41d4-a716-446655440000")
	f.Add("00000000-0000-0000-0000-000000000000")
	f.Add("C202503150001")
	f.Add(string([]byte{0x00, 0x01, 0x02}))
	f.Add("550e8400-e29b-41d4-a716-446655440000\x00suffix")

	f.Fuzz(func(t *testing.T, input string) {
		id, err := ParseComplaintID(input)
		if err != nil {
			return
		}
		if !utf8.ValidString(input) {
			t.Errorf("accepted non-UTF8 input %q", input)
		}
		if id.IsNil() {
			t.Error("accepted the nil complaint ID")
		}
		again, err := ParseComplaintID(id.String())
		if err != nil || again != id {
			t.Errorf("round trip of %q failed: %v", input, err)
		}
	})
}

func FuzzParseIDsAgree(f *testing.F) {
	f.Add("550e8400-e29b-41d4-a716-446655440000")
	f.Add("")
	f.Add("invalid")

	f.Fuzz(func(t *testing.T, input string) {
		_, errUser := ParseUserID(input)
		_, errDept := ParseDepartmentID(input)
		_, errComplaint := ParseComplaintID(input)
		_, errComment := ParseCommentID(input)

		accepted := errUser == nil
		for _, err := range []error{errDept, errComplaint, errComment} {
			if (err == nil) != accepted {
				t.Fatalf("ID parsers disagree on %q", input)
			}
		}
	})
}
