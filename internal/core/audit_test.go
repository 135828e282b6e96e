package core

import (
	"strings"
	"testing"
	"time"
)

func TestOutcomeEventType(t *testing.T) {
	tests := []struct {
		tag, status string
		want        string
	}{
		{"O", StatusSuccess, "bulk_load_o_success"},
		{"S", StatusFailed, "bulk_load_s_failed"},
		{"D", StatusSuccess, "bulk_load_d_success"},
		{"XYZ", StatusFailed, "bulk_load_xyz_failed"},
	}
	for _, tt := range tests {
		if got := OutcomeEventType(tt.tag, tt.status); got != tt.want {
			t.Errorf("OutcomeEventType(%q, %q) = %q, want %q", tt.tag, tt.status, got, tt.want)
		}
	}
}

func TestAuditCategory_Matches(t *testing.T) {
	bulk, ok := LookupAuditCategory("bulk_load")
	if !ok {
		t.Fatal("bulk_load category missing")
	}
	login, _ := LookupAuditCategory("login")

	tests := []struct {
		name      string
		cat       AuditCategory
		eventType string
		want      bool
	}{
		{name: "bulk exact", cat: bulk, eventType: EventBulkLoadCompleted, want: true},
		{name: "bulk per-line prefix", cat: bulk, eventType: "bulk_load_d_failed", want: true},
		{name: "bulk infix", cat: bulk, eventType: "driver_created_via_bulk_load", want: true},
		{name: "bulk case insensitive", cat: bulk, eventType: "BULK_LOAD_S_SUCCESS", want: true},
		{name: "bulk excludes login", cat: bulk, eventType: "LOGIN_EVENT", want: false},
		{name: "login exact", cat: login, eventType: "LOGIN SUCCESS", want: true},
		{name: "login no pattern match", cat: login, eventType: "bulk_load_o_success", want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.cat.Matches(tt.eventType); got != tt.want {
				t.Errorf("Matches(%q) = %v, want %v", tt.eventType, got, tt.want)
			}
		})
	}
}

func TestAuditCategories_Sorted(t *testing.T) {
	cats := AuditCategories()
	if len(cats) != 6 {
		t.Fatalf("len(AuditCategories()) = %d, want 6", len(cats))
	}
	for i := 1; i < len(cats); i++ {
		if cats[i-1].Key >= cats[i].Key {
			t.Errorf("categories not sorted: %q before %q", cats[i-1].Key, cats[i].Key)
		}
	}
}

func TestBuildAuditWhere(t *testing.T) {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		q         AuditQuery
		wantWhere string
		wantArgs  int
		wantErr   bool
	}{
		{
			name:      "no filters",
			q:         AuditQuery{},
			wantWhere: "",
			wantArgs:  0,
		},
		{
			name:      "plain category",
			q:         AuditQuery{Category: "invoices"},
			wantWhere: " WHERE event_type = ANY($1)",
			wantArgs:  1,
		},
		{
			name:      "bulk category includes patterns",
			q:         AuditQuery{Category: "bulk_load"},
			wantWhere: ` WHERE (event_type = ANY($1) OR event_type ILIKE 'bulk\_load%' OR event_type ILIKE '%\_bulk\_load%')`,
			wantArgs:  1,
		},
		{
			name:      "prefix and dates",
			q:         AuditQuery{EventPrefix: "bulk_load", Start: start, End: end},
			wantWhere: " WHERE event_type LIKE $1 AND created_at >= $2 AND created_at < $3",
			wantArgs:  3,
		},
		{
			name:    "unknown category rejected",
			q:       AuditQuery{Category: "everything"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wb, err := buildAuditWhere(tt.q)
			if tt.wantErr {
				if err == nil {
					t.Fatal("buildAuditWhere() error = nil, want error")
				}
				return
			}
			if err != nil {
				t.Fatalf("buildAuditWhere() error = %v", err)
			}
			where, args := wb.build()
			if where != tt.wantWhere {
				t.Errorf("where = %q, want %q", where, tt.wantWhere)
			}
			if len(args) != tt.wantArgs {
				t.Errorf("len(args) = %d, want %d", len(args), tt.wantArgs)
			}
			if wb.nextArg() != tt.wantArgs+1 {
				t.Errorf("nextArg() = %d, want %d", wb.nextArg(), tt.wantArgs+1)
			}
		})
	}
}

func TestBuildAuditWhere_EscapesPrefix(t *testing.T) {
	wb, err := buildAuditWhere(AuditQuery{EventPrefix: "bulk_load%"})
	if err != nil {
		t.Fatal(err)
	}
	_, args := wb.build()
	if got := args[0].(string); got != `bulk\_load\%%` {
		t.Errorf("prefix arg = %q, want escaped LIKE pattern", got)
	}
}

func TestParseAuditDate(t *testing.T) {
	want := time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		input   string
		want    time.Time
		wantErr bool
	}{
		{input: "03/14/2025", want: want},
		{input: "2025-03-14", want: want},
		{input: " 2025-03-14 ", want: want},
		{input: "", want: time.Time{}},
		{input: "14.03.2025", wantErr: true},
		{input: "2025-13-01", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseAuditDate(tt.input)
			if tt.wantErr {
				if err == nil || !strings.Contains(err.Error(), "MM/DD/YYYY or YYYY-MM-DD") {
					t.Errorf("ParseAuditDate(%q) error = %v, want format hint", tt.input, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseAuditDate(%q) error = %v", tt.input, err)
			}
			if !got.Equal(tt.want) {
				t.Errorf("ParseAuditDate(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}
