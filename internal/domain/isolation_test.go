package domain

import "testing"

func TestParseIsolationLevel(t *testing.T) {
	cases := []struct {
		in      string
		want    IsolationLevel
		wantErr bool
	}{
		{in: "", want: ReadCommitted},
		{in: "READ_COMMITTED", want: ReadCommitted},
		{in: "repeatable-read", want: RepeatableRead},
		{in: " Serializable ", want: Serializable},
		{in: "read uncommitted", want: ReadUncommitted},
		{in: "snapshot", wantErr: true},
	}
	for _, tc := range cases {
		got, err := ParseIsolationLevel(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Errorf("ParseIsolationLevel(%q): expected error", tc.in)
			}
			continue
		}
		if err != nil || got != tc.want {
			t.Errorf("ParseIsolationLevel(%q) = %q, %v; want %q", tc.in, got, err, tc.want)
		}
	}
}
