package export

import (
	"encoding/base64"
	"encoding/csv"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"strconv"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/edusync/idnsync/pkg/log"
)

// Charsets for generated names. Spaces are included because real given
// names contain them, and the replacements should look the same.
var (
	nameUpper     = []rune("ABCDEFGHIJKLMNOPQRSTUVWXYZÄÖÜ ")
	nameLower     = []rune("abcdefghijklmnopqrstuvwxyzäöüß ")
	passwordChars = []rune("abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ123456789")
)

// asciiFold maps the German letters onto ascii for generated usernames
// and email addresses.
var asciiFold = map[rune]rune{
	'ä': 'a', 'ö': 'o', 'ü': 'u', 'ß': 's',
	'Ä': 'A', 'Ö': 'O', 'Ü': 'U',
}

// numberColumns are replaced with a random number from a range shaped
// like the real values. The slice is ordered so a seeded run is
// reproducible.
var numberColumns = []struct {
	name   string
	lo, hi int64
}{
	{"sap_persnr", 1111111, 99999999},
	{"person_nr", 11111, 999999},
	{"st_person_nr", 11111, 999999},
	{"ident_nr", 11111, 999999},
	{"matriculation_nr", 11111111, 99999999},
}

// hexColumns are replaced with hex-encoded random bytes of the width
// the real identifiers have.
var hexColumns = []struct {
	name  string
	bytes int
}{
	{"person_nr_obf", 8},
	{"st_person_nr_obf", 8},
	{"mirfareid_employee", 4},
	{"mirfareid_student", 4},
	{"mirfareid_further", 4},
}

// Anonymizer rewrites exported person CSVs so they can be shared as
// test data. Replacements are consistent within one run: the same
// original value of the same person maps to the same replacement, so
// multi-row persons stay coherent across files.
type Anonymizer struct {
	rnd       *rand.Rand
	usercount int
	memory    map[string]map[string][2]string
	log       zerolog.Logger
}

// NewAnonymizer returns an Anonymizer with a time-seeded source.
func NewAnonymizer() *Anonymizer {
	return &Anonymizer{
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
		memory: make(map[string]map[string][2]string),
		log:    log.WithComponent("anonymize"),
	}
}

// Rewrite reads a person CSV from r and writes the anonymized version
// to w. The first record is the header; columns the Anonymizer does
// not know keep their values. A zero delimiter selects
// DefaultDelimiter.
func (a *Anonymizer) Rewrite(r io.Reader, w io.Writer, delim rune) error {
	if delim == 0 {
		delim = DefaultDelimiter
	}

	cr := csv.NewReader(r)
	cr.Comma = delim
	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading header: %w", err)
	}
	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[name] = i
	}

	cw := csv.NewWriter(w)
	cw.Comma = delim
	if err := cw.Write(header); err != nil {
		return err
	}

	rows := 0
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("row %d: %w", rows+2, err)
		}
		a.rewriteRecord(cols, rec)
		if err := cw.Write(rec); err != nil {
			return err
		}
		rows++
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return err
	}
	a.log.Info().Int("rows", rows).Msg("rows anonymized")
	return nil
}

func (a *Anonymizer) rewriteRecord(cols map[string]int, rec []string) {
	uid := field(cols, rec, "uniqueid")
	mem := a.memory[uid]
	if mem == nil {
		mem = make(map[string][2]string)
		a.memory[uid] = mem
	}

	for _, c := range []string{"given", "surname"} {
		a.replace(mem, cols, rec, c, func(orig string) string {
			return a.randName(utf8.RuneCountInString(orig))
		})
	}

	for _, c := range []string{"email_employee", "email_student"} {
		a.replace(mem, cols, rec, c, func(orig string) string {
			local, domain, ok := strings.Cut(orig, "@")
			if !ok {
				domain = "example.com"
			}
			return a.randASCII(utf8.RuneCountInString(local)) + "@" + domain
		})
	}

	// The username is rebuilt from the already replaced names, with a
	// counter so no two generated logins collide.
	a.replace(mem, cols, rec, "username", func(string) string {
		login := asciiLogin(field(cols, rec, "given")) + "." +
			asciiLogin(field(cols, rec, "surname")) + "." +
			strconv.Itoa(a.usercount)
		a.usercount++
		return login
	})

	a.replace(mem, cols, rec, "password", func(orig string) string {
		return a.randPassword(utf8.RuneCountInString(orig))
	})

	a.replace(mem, cols, rec, "bpk", func(string) string {
		return base64.StdEncoding.EncodeToString(a.randBytes(20))
	})

	// Birth dates keep the year; month and day are rolled fresh. Day
	// stops at 28 so the result is valid in any month.
	a.replace(mem, cols, rec, "birth_date", func(orig string) string {
		date, clock, hasClock := strings.Cut(orig, " ")
		year, _, ok := strings.Cut(date, "-")
		if !ok {
			return orig
		}
		out := fmt.Sprintf("%s-%02d-%02d", year, a.rnd.Intn(12)+1, a.rnd.Intn(28)+1)
		if hasClock {
			out += " " + clock
		}
		return out
	})

	for _, nc := range numberColumns {
		lo, hi := nc.lo, nc.hi
		a.replace(mem, cols, rec, nc.name, func(orig string) string {
			v := strconv.FormatInt(lo+a.rnd.Int63n(hi-lo+1), 10)
			if strings.HasPrefix(orig, "-") {
				v = "-" + v
			}
			return v
		})
	}

	for _, hc := range hexColumns {
		n := hc.bytes
		a.replace(mem, cols, rec, hc.name, func(string) string {
			return hex.EncodeToString(a.randBytes(n))
		})
	}
}

// replace swaps the named field for anon(original). When the same
// original value of this person was replaced before, the earlier
// replacement is reused instead of drawing a new one. Empty fields and
// absent columns stay untouched.
func (a *Anonymizer) replace(mem map[string][2]string, cols map[string]int, rec []string, col string, anon func(string) string) {
	i, ok := cols[col]
	if !ok || i >= len(rec) {
		return
	}
	orig := rec[i]
	if orig == "" {
		return
	}
	if prev, ok := mem[col]; ok && prev[0] == orig {
		rec[i] = prev[1]
		return
	}
	v := anon(orig)
	mem[col] = [2]string{orig, v}
	rec[i] = v
}

func field(cols map[string]int, rec []string, col string) string {
	if i, ok := cols[col]; ok && i < len(rec) {
		return rec[i]
	}
	return ""
}

// randName draws a name of n runes, uppercase first letter.
func (a *Anonymizer) randName(n int) string {
	if n <= 0 {
		return ""
	}
	runes := make([]rune, 0, n)
	runes = append(runes, nameUpper[a.rnd.Intn(len(nameUpper))])
	for i := 1; i < n; i++ {
		runes = append(runes, nameLower[a.rnd.Intn(len(nameLower))])
	}
	return string(runes)
}

func (a *Anonymizer) randASCII(n int) string {
	var b strings.Builder
	for _, r := range a.randName(n) {
		if m, ok := asciiFold[r]; ok {
			r = m
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (a *Anonymizer) randPassword(n int) string {
	runes := make([]rune, n)
	for i := range runes {
		runes[i] = passwordChars[a.rnd.Intn(len(passwordChars))]
	}
	return string(runes)
}

func (a *Anonymizer) randBytes(n int) []byte {
	b := make([]byte, n)
	a.rnd.Read(b)
	return b
}

// asciiLogin folds a name into the character set logins are made of:
// ascii letters, lowercased, spaces dropped.
func asciiLogin(name string) string {
	var b strings.Builder
	for _, r := range name {
		if r == ' ' {
			continue
		}
		if m, ok := asciiFold[r]; ok {
			r = m
		}
		b.WriteRune(unicode.ToLower(r))
	}
	return b.String()
}
