package formatid

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/openctemio/sipguard/pkg/domain/format"
)

// Export columns read from the DROID CSV.
const (
	columnURI    = "URI"
	columnPUID   = "PUID"
	columnMethod = "METHOD"
)

// ParseExport reads a DROID CSV export. Columns are located by header name.
// Paths are made relative to sipPath; rows without a PUID mark the file as
// processed but unidentified.
func ParseExport(r io.Reader, sipPath string) (format.Result, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, errors.New("empty export")
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	columns := make(map[string]int, len(header))
	for i, name := range header {
		columns[strings.ToUpper(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")))] = i
	}
	idx := make(map[string]int, 3)
	for _, name := range []string{columnURI, columnPUID, columnMethod} {
		i, ok := columns[name]
		if !ok {
			return nil, fmt.Errorf("missing column %s", name)
		}
		idx[name] = i
	}

	prefix := sipPrefixPattern(sipPath)
	result := format.Result{}
	for line := 2; ; line++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row %d: %w", line, err)
		}
		uri := field(record, idx[columnURI])
		if uri == "" {
			continue
		}
		path := relativeURI(prefix, uri)
		puid := field(record, idx[columnPUID])
		if puid == "" {
			result.Touch(path)
			continue
		}
		result.Add(path, format.Identification{PUID: puid, Method: field(record, idx[columnMethod])})
	}
	return result, nil
}

func field(record []string, i int) string {
	if i >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[i])
}

func sipPrefixPattern(sipPath string) *regexp.Regexp {
	clean := strings.TrimLeft(filepath.ToSlash(filepath.Clean(sipPath)), "/")
	return regexp.MustCompile(`^(?:file:)?/*` + regexp.QuoteMeta(clean) + `/`)
}

func relativeURI(prefix *regexp.Regexp, uri string) string {
	if unescaped, err := url.PathUnescape(uri); err == nil {
		uri = unescaped
	}
	return prefix.ReplaceAllLiteralString(uri, "")
}
