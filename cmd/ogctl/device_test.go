package main

import (
	"testing"

	"github.com/newtron-network/ogctl/pkg/audit"
)

func TestCandidateSource(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		lines   []string
		wantErr bool
	}{
		{"file", "candidate.conf", nil, false},
		{"lines", "", []string{"ntp.server 1.1.1.1"}, false},
		{"neither", "", nil, true},
		{"both", "candidate.conf", []string{"a 1"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src, err := candidateSource(tt.file, tt.lines)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				return
			}
			if src.File != tt.file || len(src.Text) != len(tt.lines) {
				t.Errorf("source = %+v", src)
			}
		})
	}
}

func TestEventStatus(t *testing.T) {
	tests := []struct {
		event *audit.Event
		want  string
	}{
		{&audit.Event{Success: true, ExecuteMode: true}, green("ok")},
		{&audit.Event{Success: true, DryRun: true}, yellow("dry-run")},
		{&audit.Event{Success: true, Skipped: true, DryRun: true}, dim("skipped")},
		{&audit.Event{Success: false, DryRun: true}, red("failed")},
	}
	for _, tt := range tests {
		if got := eventStatus(tt.event); got != tt.want {
			t.Errorf("eventStatus(%+v) = %q, want %q", tt.event, got, tt.want)
		}
	}
}
