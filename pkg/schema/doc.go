/*
Package schema maps the persons source view onto directory attributes.

The mapping is a static table with one entry per view column: the column
name, the directory attribute it feeds, and the coercion that converts the
raw database value into wire form. The reconciler owns all schema decisions;
the directory gateway never interprets attribute names.

# Field Map

	source column          coercion   directory attribute
	─────────────          ────────   ───────────────────
	uniqueid               Number     uniqueId
	username               Trim       cn
	given                  Trim       givenName
	surname                Trim       sn
	password               Raw        idnDistributionPassword
	functions              Multi      functions
	school_ids             Multi      schulkennzahlen
	birth_date             Date       gebDatum
	ident_nr               Number     identNr
	... (32 columns total, see Columns)

# Coercions

All coercions are null-preserving: a NULL column yields the null Value.

  - Number: double precision ids become decimal strings without a
    fractional part ("4711.0" → "4711").
  - Date: timestamps become "YYYY-MM-DD HH:MM:SS.0". The trailing ".0"
    matches the strings already stored in the directory and is mandatory.
  - Multi: semicolon-delimited columns become lists; empty or
    whitespace-only input is null. The parts themselves stay verbatim.
  - Trim / RTrim: free-text columns are trimmed (fully, or right-only where
    leading whitespace is significant); trimming to empty yields null.
  - Raw: verbatim passthrough for the clear-text password.

# Values

Value is a three-state variant: null, scalar string, or list of strings.
Null stands for both "source column is NULL" and "attribute absent from the
directory entry"; the sync treats these as the same state, so a null source
value demands attribute removal and vice versa.

Comparison follows the directory's view of single-valued attributes: a
scalar equals a one-element list with the same content.

	schema.NewString("x").Equal(schema.NewList([]string{"x"}))  // true

# Password handling

Attributes() leaves the password in clear text. Encryption happens at write
time in the reconciler because comparing against a stored ciphertext
requires re-encrypting with the stored value's IV, and a genuine change
needs a fresh one.
*/
package schema
