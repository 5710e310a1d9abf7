package db

import (
	_ "embed"
	"fmt"
	"regexp"
	"strings"
	"text/template"
)

//go:embed schema.sql
var schemaSource string

var schemaTemplate = template.Must(template.New("schema").Parse(schemaSource))

// DefaultTable is where rows go when no table is configured.
const DefaultTable = "mbta_performance"

var tableRegex = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ValidateTable rejects anything but a bare sql identifier, the table name is
// spliced into every query.
func ValidateTable(table string) error {
	if !tableRegex.MatchString(table) {
		return fmt.Errorf("invalid table name %q", table)
	}
	return nil
}

// Schema renders the DDL of the performance table.
func Schema(table string) (string, error) {
	err := ValidateTable(table)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	err = schemaTemplate.Execute(&b, struct{ Table string }{Table: table})
	if err != nil {
		return "", err
	}
	return b.String(), nil
}
