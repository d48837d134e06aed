// Package dumpfile defines the on-disk format of pool corruption dumps:
// appended records carrying the error message, the offending region
// offset, and a hex dump of the whole backing region. The format is
// versioned so external consumers can gate on compatibility.
package dumpfile

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	semver "github.com/Masterminds/semver/v3"
)

// FormatVersion is stamped into every record header.
const FormatVersion = "1.0.0"

// supportedConstraint gates the record versions this reader understands.
const supportedConstraint = "^1.0.0"

const (
	recordHeader  = "-- emballoc dump "
	recordTrailer = "-- end"
)

// Record is one appended dump entry.
type Record struct {
	Version    string   // format version of the writing pool
	Message    string   // the error message, single line
	Mark       int64    // offending region offset, -1 when not applicable
	RegionSize int64    // backing region size in bytes
	Dump       []string // raw hex dump lines; the marked line starts with '>'
}

// CheckVersion reports whether a record version is one this reader
// understands.
func CheckVersion(v string) error {
	sv, err := semver.NewVersion(v)
	if err != nil {
		return fmt.Errorf("dump format version %q: %w", v, err)
	}
	con, err := semver.NewConstraint(supportedConstraint)
	if err != nil {
		return err
	}
	if !con.Check(sv) {
		return fmt.Errorf("dump format version %s outside supported range %s", v, supportedConstraint)
	}
	return nil
}

// Append writes one record to the dump file, creating it if needed.
// Records are only ever appended; concurrent writers from distinct pools
// are serialized by the file system alone.
func Append(path string, message string, region []byte, mark int64) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	fmt.Fprintf(w, "%s%s\n", recordHeader, FormatVersion)
	fmt.Fprintf(w, "message: %s\n", strings.ReplaceAll(message, "\n", " "))
	fmt.Fprintf(w, "offset: %d\n", mark)
	fmt.Fprintf(w, "region: %d bytes\n", len(region))
	writeHex(w, region, mark)
	fmt.Fprintf(w, "%s\n", recordTrailer)
	return w.Flush()
}

// writeHex emits a 16-bytes-per-line hex dump. The line containing the
// marked offset is prefixed with '>'.
func writeHex(w io.Writer, region []byte, mark int64) {
	for base := 0; base < len(region); base += 16 {
		end := base + 16
		if end > len(region) {
			end = len(region)
		}
		line := region[base:end]

		prefix := " "
		if mark >= int64(base) && mark < int64(end) {
			prefix = ">"
		}

		var hexCols strings.Builder
		var ascii strings.Builder
		for i := 0; i < 16; i++ {
			if i == 8 {
				hexCols.WriteByte(' ')
			}
			if i < len(line) {
				fmt.Fprintf(&hexCols, "%02x ", line[i])
				if line[i] >= 0x20 && line[i] < 0x7f {
					ascii.WriteByte(line[i])
				} else {
					ascii.WriteByte('.')
				}
			} else {
				hexCols.WriteString("   ")
			}
		}
		fmt.Fprintf(w, "%s%08x  %s |%s|\n", prefix, base, hexCols.String(), ascii.String())
	}
}

// ReadAll parses every record in the dump file. Records with a version
// outside the supported range fail the read; a truncated trailing record
// (a writer mid-append) is dropped silently.
func ReadAll(path string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return parse(f)
}

func parse(r io.Reader) ([]Record, error) {
	var recs []Record
	var cur *Record

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := sc.Text()
		switch {
		case strings.HasPrefix(line, recordHeader):
			v := strings.TrimSpace(strings.TrimPrefix(line, recordHeader))
			if err := CheckVersion(v); err != nil {
				return nil, err
			}
			cur = &Record{Version: v, Mark: -1}
		case cur == nil:
			// Junk between records; skip.
		case line == recordTrailer:
			recs = append(recs, *cur)
			cur = nil
		case strings.HasPrefix(line, "message: "):
			cur.Message = strings.TrimPrefix(line, "message: ")
		case strings.HasPrefix(line, "offset: "):
			n, err := strconv.ParseInt(strings.TrimPrefix(line, "offset: "), 10, 64)
			if err == nil {
				cur.Mark = n
			}
		case strings.HasPrefix(line, "region: "):
			fields := strings.Fields(strings.TrimPrefix(line, "region: "))
			if len(fields) > 0 {
				n, err := strconv.ParseInt(fields[0], 10, 64)
				if err == nil {
					cur.RegionSize = n
				}
			}
		default:
			cur.Dump = append(cur.Dump, line)
		}
	}
	if err := sc.Err(); err != nil {
		return recs, err
	}
	return recs, nil
}
