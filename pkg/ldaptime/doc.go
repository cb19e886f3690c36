/*
Package ldaptime formats directory timestamps as LDAP generalized time.

Every write the reconciler performs stamps the entry's etlTimestamp with the
wall-clock time in this format, and the mark-etd maintenance command copies
such values into etdTimestamp. The format is fixed to second precision in
UTC with a literal Z suffix:

	20260825103000Z

Parse accepts the same layout and tolerates fractional seconds
("20260825103000.123Z"), which some directory servers emit on operational
attributes; the fraction is truncated.
*/
package ldaptime
