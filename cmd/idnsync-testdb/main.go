package main

import (
	"encoding/csv"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
)

var (
	dsn     = flag.String("dsn", "", "Postgres DSN of the test database (required)")
	csvPath = flag.String("csv", "testdata/initial_data.csv", "Persons seed file; empty skips seeding")
	keep    = flag.Bool("keep", false, "Keep existing tables instead of dropping them first")
)

// Table definitions mirror what the sync reads in production, with the
// original column widths. persons_dirsync_v is a view over the real
// person tables there; for tests a plain table serves.
var tables = []struct {
	name string
	ddl  string
}{
	{"persons_dirsync_v", `create table persons_dirsync_v (
		uniqueid double precision,
		username varchar(4000),
		given varchar(4000),
		surname varchar(4000),
		password varchar(4000),
		email_employee varchar(4000),
		email_student varchar(4000),
		functions varchar(4000),
		school_ids varchar(4000),
		user_group varchar(4000),
		bpk varchar(84),
		sap_persnr varchar(4000),
		org_units varchar(4000),
		birth_date timestamp(0),
		ident_nr double precision,
		matriculation_nr varchar(4000),
		person_nr double precision,
		person_nr_obf varchar(4000),
		st_person_nr double precision,
		st_person_nr_obf varchar(4000),
		chipid_employee varchar(150),
		chipid_student varchar(150),
		chipid_further varchar(150),
		mirfareid_employee varchar(150),
		mirfareid_student varchar(150),
		mirfareid_further varchar(150),
		acct_status_employee varchar(4000),
		acct_status_student varchar(4000),
		acct_status_further varchar(4000),
		employee_active char(3),
		student_active char(3),
		further_active char(3),
		primary key (uniqueid))`},
	{"person_eventlog", `create table person_eventlog (
		record_id double precision,
		table_key varchar(144),
		status char(3),
		event_type double precision,
		event_time timestamp(0),
		perpetrator varchar(96),
		table_name varchar(96),
		column_name varchar(96),
		old_value varchar(240),
		new_value varchar(240),
		synch_id double precision,
		synch_online_flag char(3),
		transaction_flag char(3),
		read_time timestamp(0),
		error_message varchar(4000),
		attempt double precision,
		admin_notify_flag char(3),
		primary key (record_id))`},
}

// doubleColumns are the persons columns that must be bound as numbers.
var doubleColumns = map[string]bool{
	"uniqueid":     true,
	"ident_nr":     true,
	"person_nr":    true,
	"st_person_nr": true,
}

func main() {
	flag.Parse()

	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("idnsync test database seeder")

	if *dsn == "" {
		log.Fatal("-dsn is required")
	}

	db, err := sqlx.Connect("pgx", *dsn)
	if err != nil {
		log.Fatalf("Failed to connect: %v", err)
	}
	defer db.Close()

	if !*keep {
		for _, tbl := range tables {
			if _, err := db.Exec("drop table if exists " + tbl.name); err != nil {
				log.Fatalf("Failed to drop %s: %v", tbl.name, err)
			}
		}
		log.Println("✓ Old tables dropped")
	}

	for _, tbl := range tables {
		if _, err := db.Exec(tbl.ddl); err != nil {
			if *keep && strings.Contains(err.Error(), "already exists") {
				continue
			}
			log.Fatalf("Failed to create %s: %v", tbl.name, err)
		}
	}
	log.Println("✓ Tables created")

	if *csvPath != "" {
		n, err := seedPersons(db, *csvPath)
		if err != nil {
			log.Fatalf("Seeding failed: %v", err)
		}
		log.Printf("✓ Seeded %d persons from %s", n, *csvPath)
	}

	log.Println("✓ Test database ready")
}

func seedPersons(db *sqlx.DB, path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.Comma = ';'
	header, err := r.Read()
	if err != nil {
		return 0, fmt.Errorf("read header: %w", err)
	}

	count := 0
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return count, fmt.Errorf("row %d: %w", count+2, err)
		}

		query, args, err := insertPerson(header, rec)
		if err != nil {
			return count, fmt.Errorf("row %d: %w", count+2, err)
		}
		if query == "" {
			continue
		}
		if _, err := db.Exec(query, args...); err != nil {
			return count, fmt.Errorf("row %d: %w", count+2, err)
		}
		count++
	}
	return count, nil
}

// insertPerson builds an insert over the row's non-empty columns only,
// the way production rows look: absent values stay NULL.
func insertPerson(header, rec []string) (string, []any, error) {
	cols := make([]string, 0, len(header))
	places := make([]string, 0, len(header))
	args := make([]any, 0, len(header))

	for i, col := range header {
		if i >= len(rec) || rec[i] == "" {
			continue
		}
		cols = append(cols, col)
		n := len(args) + 1

		switch {
		case col == "birth_date":
			places = append(places, fmt.Sprintf("to_timestamp($%d, 'YYYY-MM-DD HH24:MI:SS')", n))
			args = append(args, rec[i])
		case doubleColumns[col]:
			v, err := strconv.ParseFloat(rec[i], 64)
			if err != nil {
				return "", nil, fmt.Errorf("column %s: %w", col, err)
			}
			places = append(places, fmt.Sprintf("$%d", n))
			args = append(args, v)
		default:
			places = append(places, fmt.Sprintf("$%d", n))
			args = append(args, rec[i])
		}
	}

	if len(cols) == 0 {
		return "", nil, nil
	}
	query := fmt.Sprintf("insert into persons_dirsync_v (%s) values (%s)",
		strings.Join(cols, ", "), strings.Join(places, ", "))
	return query, args, nil
}
