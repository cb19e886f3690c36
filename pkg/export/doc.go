// Package export dumps tenant data as CSV and anonymizes the dumps.
//
// # Exports
//
// Three dumps cover the operational needs: the full event log, the
// event log since a cut-off together with the person rows those events
// reference, and the whole persons view. The view dump walks the
// uniqueid space in chunks so it works on views of any size. Files use
// a semicolon delimiter and carry a header row of database column
// names.
//
// # Anonymizer
//
// Exported person rows hold real names, logins, and government ids, so
// dumps that leave the school network pass through the Anonymizer
// first. It rewrites the identifying columns with random values of the
// same shape: names keep their length, emails keep their domain, birth
// dates keep their year, numeric ids stay in realistic ranges. Within
// one run the same original value of the same person always maps to the
// same replacement, so a person spread over several rows or files stays
// one consistent fake identity.
//
// Columns the Anonymizer does not know pass through untouched, which
// keeps the school assignments and account flags usable for test
// setups.
package export
