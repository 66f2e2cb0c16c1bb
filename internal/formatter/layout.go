package formatter

import (
	"fmt"
	"os"
	"path/filepath"
)

// Layout addresses every artifact of a run below one output directory:
//
//	<dir>/<db>/<db>_data_dictionary.xlsx
//	<dir>/<db>/<db>_overview.md
//	<dir>/<db>/<schema>_schema.<ext>
type Layout struct {
	OutputDir string
}

// NewLayout creates a layout rooted at outputDir.
func NewLayout(outputDir string) Layout {
	return Layout{OutputDir: outputDir}
}

// DatabaseDir is the directory holding one database's artifacts.
func (l Layout) DatabaseDir(database string) string {
	return filepath.Join(l.OutputDir, database)
}

// WorkbookPath is the data dictionary workbook of a database.
func (l Layout) WorkbookPath(database string) string {
	return filepath.Join(l.DatabaseDir(database), database+"_data_dictionary.xlsx")
}

// OverviewPath is the markdown overview of a database.
func (l Layout) OverviewPath(database string) string {
	return filepath.Join(l.DatabaseDir(database), database+"_overview.md")
}

// DiagramPath is the diagram of one schema in the given format (png, svg).
func (l Layout) DiagramPath(database, schemaName, format string) string {
	return filepath.Join(l.DatabaseDir(database), schemaName+"_schema."+format)
}

// EnsureDatabaseDir creates the database directory if it does not exist.
func (l Layout) EnsureDatabaseDir(database string) (string, error) {
	dir := l.DatabaseDir(database)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}
	return dir, nil
}

// Artifacts lists the regular files in a database directory, sorted by name.
func (l Layout) Artifacts(database string) ([]string, error) {
	entries, err := os.ReadDir(l.DatabaseDir(database))
	if err != nil {
		return nil, err
	}

	var files []string
	for _, e := range entries {
		if e.Type().IsRegular() {
			files = append(files, filepath.Join(l.DatabaseDir(database), e.Name()))
		}
	}
	return files, nil
}
