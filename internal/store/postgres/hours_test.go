package postgres

import "testing"

func TestBranchOpenOn(t *testing.T) {
	hours := `{"monday": "08:00-17:00", "saturday": "08:00-12:00"}`

	if !branchOpenOn(hours, "Monday") {
		t.Fatalf("expected open on Monday")
	}
	if !branchOpenOn(hours, "Saturday") {
		t.Fatalf("expected open on Saturday")
	}
	if branchOpenOn(hours, "Sunday") {
		t.Fatalf("expected closed on Sunday")
	}
}

func TestBranchOpenOnDefaults(t *testing.T) {
	if !branchOpenOn("", "Sunday") {
		t.Fatalf("missing hours should mean always open")
	}
	if !branchOpenOn("not json", "Monday") {
		t.Fatalf("unparseable hours should not close the branch")
	}
	if branchOpenOn(`{"monday": ""}`, "Monday") {
		t.Fatalf("empty window should mean closed")
	}
}
