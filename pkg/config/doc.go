/*
Package config assembles the process configuration from the sources the
deployment already has.

Precedence, highest first:

 1. Environment variables, under the unprefixed names the deployment has
    always used (LDAP_BIND_DN, DATABASE_INSTANCES, SLEEPTIME, ...)
 2. An optional YAML file (--config)
 3. The secrets file (/etc/passwords by default), for password fields
    still empty after 1 and 2
 4. Built-in defaults

The tenant list is not configured directly. DATABASE_INSTANCES names the
databases ("db:label" pairs), READONLY_DATABASES and SHARED_DATABASE
classify them, and every tenant's directory subtree follows the fixed
template

	<LDAP_USER_OU>,ou=<db>,<LDAP_BASE_DN>

so adding a tenant is one list entry plus one password, never a new DN.

Validation runs go-playground tags over the struct plus the cross-field
rules (instances parse, every database has a password, fixed IV is 16
hex bytes). Load validates the full sync surface; LoadSource skips the
directory and cipher settings for commands that only read the databases,
such as the CSV export.
*/
package config
