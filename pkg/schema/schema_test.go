package schema

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleRow() map[string]any {
	return map[string]any{
		"uniqueid":             float64(4711),
		"username":             "jdoe",
		"given":                "Jane",
		"surname":              "Doe ",
		"password":             "hunter2",
		"email_employee":       nil,
		"email_student":        "jdoe@student.example.org",
		"functions":            "lecturer;tutor",
		"school_ids":           nil,
		"user_group":           "STAFF  ",
		"bpk":                  nil,
		"sap_persnr":           nil,
		"org_units":            nil,
		"birth_date":           time.Date(1987, 6, 5, 0, 0, 0, 0, time.UTC),
		"ident_nr":             float64(12),
		"matriculation_nr":     nil,
		"person_nr":            nil,
		"person_nr_obf":        nil,
		"st_person_nr":         nil,
		"st_person_nr_obf":     nil,
		"chipid_employee":      nil,
		"chipid_student":       nil,
		"chipid_further":       nil,
		"mirfareid_employee":   nil,
		"mirfareid_student":    nil,
		"mirfareid_further":    nil,
		"acct_status_employee": "A",
		"acct_status_student":  nil,
		"acct_status_further":  nil,
		"employee_active":      "J",
		"student_active":       nil,
		"further_active":       nil,
	}
}

func TestColumnsCoverEveryViewColumn(t *testing.T) {
	assert.Len(t, Columns, 32)

	seenCol := map[string]bool{}
	seenAttr := map[string]bool{}
	for _, col := range Columns {
		assert.False(t, seenCol[col.Name], "duplicate column %s", col.Name)
		assert.False(t, seenAttr[col.Attribute], "duplicate attribute %s", col.Attribute)
		assert.NotNil(t, col.Coerce, "column %s has no coercion", col.Name)
		seenCol[col.Name] = true
		seenAttr[col.Attribute] = true
	}

	// Identity and fan-out attributes must be part of the map.
	assert.True(t, seenAttr[AttrCN])
	assert.True(t, seenAttr[AttrUniqueID])
	for attr := range FanoutAttrs {
		assert.True(t, seenAttr[attr], "fan-out attribute %s unmapped", attr)
	}
	for _, attr := range AccountStatusAttrs {
		assert.True(t, seenAttr[attr], "account status attribute %s unmapped", attr)
	}

	// etlTimestamp is maintained by the reconciler, not mapped from a column.
	assert.False(t, seenAttr[AttrETLTimestamp])
}

func TestAttributes(t *testing.T) {
	attrs, err := Attributes(sampleRow())
	require.NoError(t, err)

	assert.True(t, attrs[AttrCN].Equal(NewString("jdoe")))
	assert.True(t, attrs[AttrUniqueID].Equal(NewString("4711")))
	assert.True(t, attrs[AttrSN].Equal(NewString("Doe")))
	assert.True(t, attrs[AttrGebDatum].Equal(NewString("1987-06-05 00:00:00.0")))
	assert.True(t, attrs[AttrFunctions].Equal(NewList([]string{"lecturer", "tutor"})))
	assert.True(t, attrs[AttrBenutzergruppe].Equal(NewString("STAFF")))
	assert.True(t, attrs[AttrIdentNr].Equal(NewString("12")))

	// Clear text stays clear here; the write path encrypts.
	assert.True(t, attrs[AttrPassword].Equal(NewString("hunter2")))

	// Null columns arrive as null values, not missing keys.
	v, ok := attrs[AttrEmailEmployee]
	assert.True(t, ok)
	assert.True(t, v.IsNull())
	assert.True(t, attrs[AttrSchulkennzahlen].IsNull())
}

func TestAttributesCoercionError(t *testing.T) {
	row := sampleRow()
	row["uniqueid"] = "not-a-number"

	_, err := Attributes(row)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "uniqueid")
}

func TestIdentity(t *testing.T) {
	attrs, err := Attributes(sampleRow())
	require.NoError(t, err)

	cn, uid, err := Identity(attrs)
	require.NoError(t, err)
	assert.Equal(t, "jdoe", cn)
	assert.Equal(t, "4711", uid)
}

func TestIdentityMissing(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(map[string]any)
	}{
		{
			name:   "username null",
			mutate: func(r map[string]any) { r["username"] = nil },
		},
		{
			name:   "username whitespace",
			mutate: func(r map[string]any) { r["username"] = "   " },
		},
		{
			name:   "uniqueid null",
			mutate: func(r map[string]any) { r["uniqueid"] = nil },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			row := sampleRow()
			tt.mutate(row)
			attrs, err := Attributes(row)
			require.NoError(t, err)

			_, _, err = Identity(attrs)
			assert.Error(t, err)
		})
	}
}
