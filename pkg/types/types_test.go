package types

import "testing"

func TestStatusPending(t *testing.T) {
	tests := []struct {
		status Status
		want   bool
	}{
		{StatusNew, true},
		{StatusError, true},
		{StatusWarning, false},
		{StatusSuccess, false},
		{StatusFatal, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			if got := tt.status.Pending(); got != tt.want {
				t.Errorf("Pending() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEventTypeValid(t *testing.T) {
	tests := []struct {
		name string
		typ  EventType
		want bool
	}{
		{"delete", EventTypeDelete, true},
		{"insert", EventTypeInsert, true},
		{"update", EventTypeUpdate, true},
		{"zero", EventType(0), false},
		{"fractional", EventType(5.5), false},
		{"unknown", EventType(7), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.typ.Valid(); got != tt.want {
				t.Errorf("Valid() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEventUniqueID(t *testing.T) {
	tests := []struct {
		name     string
		tableKey string
		want     string
		wantErr  bool
	}{
		{
			name:     "plain",
			tableKey: "uniqueid=4711",
			want:     "4711",
		},
		{
			name:     "float suffix",
			tableKey: "uniqueid=4711.0",
			want:     "4711",
		},
		{
			name:     "spaces",
			tableKey: "uniqueid = 4711",
			want:     "4711",
		},
		{
			name:     "upper case key",
			tableKey: "UNIQUEID=4711",
			want:     "4711",
		},
		{
			name:     "wrong key",
			tableKey: "personnr=4711",
			wantErr:  true,
		},
		{
			name:     "no separator",
			tableKey: "uniqueid4711",
			wantErr:  true,
		},
		{
			name:     "non numeric",
			tableKey: "uniqueid=abc",
			wantErr:  true,
		},
		{
			name:     "empty",
			tableKey: "",
			wantErr:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev := &Event{TableKey: tt.tableKey}
			got, err := ev.UniqueID()
			if (err != nil) != tt.wantErr {
				t.Errorf("UniqueID() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if got != tt.want {
				t.Errorf("UniqueID() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestTenantString(t *testing.T) {
	if got := (Tenant{Database: "ph08", Label: "vienna"}).String(); got != "vienna" {
		t.Errorf("String() = %q, want %q", got, "vienna")
	}
	if got := (Tenant{Database: "ph08"}).String(); got != "ph08" {
		t.Errorf("String() = %q, want %q", got, "ph08")
	}
}
