package storage

import (
	"fmt"
	"path"
	"regexp"
	"time"
)

const extractRoot = "extracts"

var pathComponentPattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]{0,127}$`)

// ExtractArchiveName is the file name the publisher gives a monthly extract, e.g. 202401_NFs.zip.
func ExtractArchiveName(period time.Time) string {
	ts := period.UTC()
	return fmt.Sprintf("%04d%02d_NFs.zip", ts.Year(), ts.Month())
}

// BuildExtractKey places an extract file under its period partition.
func BuildExtractKey(period time.Time, fileName string) (string, error) {
	if err := validatePathComponent(fileName, "file name"); err != nil {
		return "", err
	}
	ts := period.UTC()
	return path.Join(
		extractRoot,
		fmt.Sprintf("period=%04d-%02d", ts.Year(), ts.Month()),
		fileName,
	), nil
}

// ExtractPrefix is the key prefix shared by every published extract.
func ExtractPrefix() string {
	return extractRoot + "/"
}

func validatePathComponent(value, field string) error {
	if !pathComponentPattern.MatchString(value) {
		return fmt.Errorf("invalid %s: %q", field, value)
	}
	return nil
}
