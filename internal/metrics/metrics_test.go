package metrics

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeResultsDB builds a minimal engine results database: run-period meter
// totals (joules) plus the tabular floor-area field.
func writeResultsDB(t *testing.T, path string, meters map[string]float64, area float64) {
	t.Helper()
	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	defer db.Close()

	_, err = db.Exec(`
		CREATE TABLE ReportMeterDataDictionary (
			ReportMeterDataDictionaryIndex INTEGER PRIMARY KEY,
			VariableName TEXT,
			ReportingFrequency TEXT
		);
		CREATE TABLE ReportMeterData (
			ReportMeterDataDictionaryIndex INTEGER,
			VariableValue REAL
		);
		CREATE TABLE TabularDataWithStrings (
			RowName TEXT,
			ColumnName TEXT,
			Value TEXT
		);`)
	require.NoError(t, err)

	i := 1
	for name, joules := range meters {
		_, err = db.Exec(`INSERT INTO ReportMeterDataDictionary VALUES (?, ?, 'Run Period')`, i, name)
		require.NoError(t, err)
		_, err = db.Exec(`INSERT INTO ReportMeterData VALUES (?, ?)`, i, joules)
		require.NoError(t, err)
		i++
	}
	if area > 0 {
		_, err = db.Exec(`INSERT INTO TabularDataWithStrings VALUES ('Net Conditioned Building Area', 'Area', ?)`, area)
		require.NoError(t, err)
	}
}

const summaryHTML = `<html><body>
<p>Annual Building Utility Performance Summary</p>
<table>
<tr><td>Total Site Energy</td><td>7200000</td></tr>
<tr><td>Net Conditioned Building Area</td><td>120</td></tr>
</table>
<table>
<tr><td>Heating</td><td>3600000</td></tr>
<tr><td>Cooling</td><td>3600000</td></tr>
</table>
</body></html>`

const summaryCSV = `Total Site Energy [J],10800000
Net Conditioned Building Area [m2],150
Heating [J],7200000
Cooling [J],3600000
Annual Peak,not a number
`

func TestUnitConversion_SQLSource(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "eplusout.sql")
	// 3,600,000 J must come out as exactly 1.0 kWh.
	writeResultsDB(t, dbPath, map[string]float64{"Electricity:Facility": 3600000}, 100)

	res := Extract(context.Background(), Artifacts{SQLPath: dbPath}, nil)
	assert.False(t, res.ExtractionFailed)
	assert.Equal(t, "sql", res.Source)
	assert.Equal(t, 1.0, res.TotalEnergyKWh)
	assert.Equal(t, 100.0, res.FloorAreaM2)
	assert.Equal(t, 1.0, res.EndUseKWh["Electricity:Facility"])
	assert.InDelta(t, 0.01, res.EUI(), 1e-12)
}

func TestExtract_PriorityOrder(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "eplusout.sql")
	htmlPath := filepath.Join(dir, "eplustbl.htm")
	writeResultsDB(t, dbPath, map[string]float64{"Electricity:Facility": 3600000}, 100)
	require.NoError(t, os.WriteFile(htmlPath, []byte(summaryHTML), 0644))

	res := Extract(context.Background(), Artifacts{SQLPath: dbPath, HTMLPath: htmlPath}, nil)
	assert.Equal(t, "sql", res.Source, "database outranks the markup report")
}

func TestExtract_FallsBackToSecondary(t *testing.T) {
	dir := t.TempDir()
	htmlPath := filepath.Join(dir, "eplustbl.htm")
	require.NoError(t, os.WriteFile(htmlPath, []byte(summaryHTML), 0644))

	// Primary artifact corrupt: not a SQLite file.
	dbPath := filepath.Join(dir, "eplusout.sql")
	require.NoError(t, os.WriteFile(dbPath, []byte("not a database"), 0644))

	res := Extract(context.Background(), Artifacts{SQLPath: dbPath, HTMLPath: htmlPath}, nil)
	assert.Equal(t, "html", res.Source)
	assert.False(t, res.ExtractionFailed)
	assert.Equal(t, 2.0, res.TotalEnergyKWh)
	assert.Equal(t, 120.0, res.FloorAreaM2)
	assert.Equal(t, 1.0, res.EndUseKWh["Heating"])
}

func TestExtract_CSVSource(t *testing.T) {
	dir := t.TempDir()
	csvPath := filepath.Join(dir, "eplustbl.csv")
	require.NoError(t, os.WriteFile(csvPath, []byte(summaryCSV), 0644))

	res := Extract(context.Background(), Artifacts{CSVPath: csvPath}, nil)
	assert.Equal(t, "csv", res.Source)
	assert.Equal(t, 3.0, res.TotalEnergyKWh)
	assert.Equal(t, 150.0, res.FloorAreaM2)
	assert.Equal(t, 2.0, res.EndUseKWh["Heating"])
	assert.Equal(t, 1.0, res.EndUseKWh["Cooling"])
}

func TestExtract_AllSourcesAbsent(t *testing.T) {
	res := Extract(context.Background(), Artifacts{
		SQLPath:  "/nonexistent/a.sql",
		HTMLPath: "/nonexistent/b.htm",
		CSVPath:  "/nonexistent/c.csv",
	}, nil)
	assert.True(t, res.ExtractionFailed)
	assert.Equal(t, "fallback", res.Source)
	assert.Zero(t, res.TotalEnergyKWh)
	assert.Zero(t, res.EUI())
}

func TestExtract_ImplausibleAreaRejected(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "eplusout.sql")
	csvPath := filepath.Join(dir, "eplustbl.csv")
	// 12 m2 is below the plausible floor; the database result must be
	// discarded and the delimited table used instead.
	writeResultsDB(t, dbPath, map[string]float64{"Electricity:Facility": 3600000}, 12)
	require.NoError(t, os.WriteFile(csvPath, []byte(summaryCSV), 0644))

	res := Extract(context.Background(), Artifacts{SQLPath: dbPath, CSVPath: csvPath}, nil)
	assert.Equal(t, "csv", res.Source)
	assert.Equal(t, 150.0, res.FloorAreaM2)
}

func TestEUI_ComputedOnceAtBoundary(t *testing.T) {
	r := Result{TotalEnergyKWh: 500, FloorAreaM2: 250}
	assert.Equal(t, 2.0, r.EUI())

	r = Result{TotalEnergyKWh: 500}
	assert.Zero(t, r.EUI())
}
