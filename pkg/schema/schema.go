package schema

import (
	"fmt"
)

// Directory attribute names. The names are fixed by the existing directory
// schema and its consumers; they are wire format, not style.
const (
	AttrCN                 = "cn"
	AttrSN                 = "sn"
	AttrGivenName          = "givenName"
	AttrUniqueID           = "uniqueId"
	AttrAccStEmployee      = "accStEmployee"
	AttrAccStStudent       = "accStStudent"
	AttrAccStFurther       = "accStFurther"
	AttrEmployeeActive     = "employeeActive"
	AttrStudentActive      = "studentActive"
	AttrFurtherActive      = "furtherActive"
	AttrBenutzergruppe     = "benutzergruppe"
	AttrBPK                = "bpk"
	AttrChipIDEmployee     = "chipIDEmployee"
	AttrChipIDStudent      = "chipIDStudent"
	AttrChipIDFurther      = "chipIDFurther"
	AttrEmailEmployee      = "emailEmployee"
	AttrEmailStudent       = "emailStudent"
	AttrFunctions          = "functions"
	AttrGebDatum           = "gebDatum"
	AttrIdentNr            = "identNr"
	AttrMatrikelnummer     = "matrikelnummer"
	AttrMirfareIDEmployee  = "mirfareIDEmployee"
	AttrMirfareIDStudent   = "mirfareIDStudent"
	AttrMirfareIDFurther   = "mirfareIDFurther"
	AttrOrgEinheiten       = "orgEinheiten"
	AttrPassword           = "idnDistributionPassword"
	AttrPersonNr           = "personNr"
	AttrPersonNrOBF        = "personNrOBF"
	AttrSapPersnr          = "sapPersnr"
	AttrSchulkennzahlen    = "schulkennzahlen"
	AttrPersonNrStudent    = "personNrStudent"
	AttrPersonNrOBFStudent = "personNrOBFStudent"
	AttrETLTimestamp       = "etlTimestamp"
	AttrETDTimestamp       = "etdTimestamp"

	// AttrIDNDeleted is written by the downstream deletion pipeline, not
	// by the sync. mark-etd queries it.
	AttrIDNDeleted = "idnDeleted"
)

// ObjectClasses are set on every person entry the sync creates.
var ObjectClasses = []string{"inetOrgPerson", "phonlinePerson", "idnSyncstat"}

// FanoutAttrs are the attributes whose changes propagate to the shared
// tenant, keyed by directory attribute name.
var FanoutAttrs = map[string]bool{
	AttrGivenName:    true,
	AttrSN:           true,
	AttrEmailStudent: true,
	AttrPassword:     true,
}

// AccountStatusAttrs gate the shared-tenant delete: a shared entry is only
// removed alongside its tenant twin when all three are unset.
var AccountStatusAttrs = []string{AttrAccStEmployee, AttrAccStStudent, AttrAccStFurther}

// Column describes one column of the persons source view.
type Column struct {
	Name      string
	Attribute string
	Coerce    Coercion
}

// Columns is the static field map between the source view and the
// directory, one entry per view column.
var Columns = []Column{
	{"uniqueid", AttrUniqueID, Number},
	{"username", AttrCN, Trim},
	{"given", AttrGivenName, Trim},
	{"surname", AttrSN, Trim},
	{"password", AttrPassword, Raw},
	{"email_employee", AttrEmailEmployee, Trim},
	{"email_student", AttrEmailStudent, Trim},
	{"functions", AttrFunctions, Multi},
	{"school_ids", AttrSchulkennzahlen, Multi},
	{"user_group", AttrBenutzergruppe, RTrim},
	{"bpk", AttrBPK, RTrim},
	{"sap_persnr", AttrSapPersnr, RTrim},
	{"org_units", AttrOrgEinheiten, RTrim},
	{"birth_date", AttrGebDatum, Date},
	{"ident_nr", AttrIdentNr, Number},
	{"matriculation_nr", AttrMatrikelnummer, RTrim},
	{"person_nr", AttrPersonNr, Number},
	{"person_nr_obf", AttrPersonNrOBF, RTrim},
	{"st_person_nr", AttrPersonNrStudent, Number},
	{"st_person_nr_obf", AttrPersonNrOBFStudent, RTrim},
	{"chipid_employee", AttrChipIDEmployee, RTrim},
	{"chipid_student", AttrChipIDStudent, RTrim},
	{"chipid_further", AttrChipIDFurther, RTrim},
	{"mirfareid_employee", AttrMirfareIDEmployee, RTrim},
	{"mirfareid_student", AttrMirfareIDStudent, RTrim},
	{"mirfareid_further", AttrMirfareIDFurther, RTrim},
	{"acct_status_employee", AttrAccStEmployee, RTrim},
	{"acct_status_student", AttrAccStStudent, RTrim},
	{"acct_status_further", AttrAccStFurther, RTrim},
	{"employee_active", AttrEmployeeActive, RTrim},
	{"student_active", AttrStudentActive, RTrim},
	{"further_active", AttrFurtherActive, RTrim},
}

// Raw passes text through verbatim; only empty input becomes null. Used for
// the clear-text password, where surrounding whitespace is significant.
func Raw(raw any) (Value, error) {
	s, ok, err := text(raw)
	if err != nil || !ok {
		return Value{}, err
	}
	if s == "" {
		return Value{}, nil
	}
	return NewString(s), nil
}

// AttributeNames lists all mapped directory attributes in column order.
func AttributeNames() []string {
	names := make([]string, len(Columns))
	for i, col := range Columns {
		names[i] = col.Attribute
	}
	return names
}

// ColumnNames lists all source view columns in declaration order.
func ColumnNames() []string {
	names := make([]string, len(Columns))
	for i, col := range Columns {
		names[i] = col.Name
	}
	return names
}

// Attributes converts one source row, as scanned into a column-keyed map,
// into directory attribute values. Null columns are carried as null values
// so callers can distinguish "must be absent" from "not mapped". The
// password attribute holds the clear text here; encryption happens at write
// time so the stored IV can be reused for comparison.
func Attributes(row map[string]any) (map[string]Value, error) {
	out := make(map[string]Value, len(Columns))
	for _, col := range Columns {
		v, err := col.Coerce(row[col.Name])
		if err != nil {
			return nil, fmt.Errorf("column %s: %w", col.Name, err)
		}
		out[col.Attribute] = v
	}
	return out, nil
}

// Identity extracts the two identity attributes from converted attributes.
// Both must be present, else the row cannot be synced at all.
func Identity(attrs map[string]Value) (cn, uid string, err error) {
	cnVal, uidVal := attrs[AttrCN], attrs[AttrUniqueID]
	if cnVal.IsNull() || uidVal.IsNull() {
		return "", "", fmt.Errorf("row is missing username or uniqueid")
	}
	return cnVal.String(), uidVal.String(), nil
}
