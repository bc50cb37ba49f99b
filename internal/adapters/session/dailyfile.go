package session

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/IPrometheusI/solar-daq/internal/domain"
)

// NotAvailable is the fixed token written for a missing column value.
// Cells are never left empty.
const NotAvailable = "N/A"

// Header is the fixed column schema of a daily file, in order.
var Header = buildHeader()

func buildHeader() []string {
	h := []string{
		"V0[V]", "V1[V]",
		"I0[A]", "I1[A]",
		"P0[W]", "P1[W]",
		"E0[Wh]", "E1[Wh]",
		"Irr[W/m2]",
	}
	for i := 0; i < domain.NumThermistors; i++ {
		h = append(h, fmt.Sprintf("T%d[°C]", i))
	}
	return append(h,
		"Rain[mm]",
		"Wind_Speed[m/s]",
		"Wind_Direction",
		"DHT_HUM[%]",
		"DHT_TEMP[°C]",
		"DateTime",
	)
}

// DailyFile is one calendar day's append-only record store. One row per
// accepted minute, created at window start, closed at window end.
type DailyFile struct {
	path string
	f    *os.File
}

// CreateDailyFile opens a fresh file named for the creation instant and
// writes the header row.
func CreateDailyFile(dir string, now time.Time) (*DailyFile, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("output dir: %w", err)
	}
	path := filepath.Join(dir, fmt.Sprintf("data_%s.csv", now.Format("20060102_150405")))

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("create daily file: %w", err)
	}
	if _, err := f.WriteString(strings.Join(Header, ",") + "\n"); err != nil {
		f.Close()
		return nil, fmt.Errorf("write header: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return nil, fmt.Errorf("sync header: %w", err)
	}
	return &DailyFile{path: path, f: f}, nil
}

// OpenDailyFile reopens an existing file for appending after validating its
// header line.
func OpenDailyFile(path string) (*DailyFile, error) {
	if err := ValidateHeader(path); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("reopen daily file: %w", err)
	}
	return &DailyFile{path: path, f: f}, nil
}

// ValidateHeader confirms the file starts with the expected schema line.
func ValidateHeader(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("validate daily file: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	if !scanner.Scan() {
		return fmt.Errorf("daily file %s is empty", path)
	}
	if got := strings.TrimSpace(scanner.Text()); got != strings.Join(Header, ",") {
		return fmt.Errorf("daily file %s has unexpected header", path)
	}
	return nil
}

// Append writes exactly one row for m and syncs it to disk.
func (d *DailyFile) Append(m domain.Measurement) error {
	row := FormatRow(m)
	if _, err := d.f.WriteString(strings.Join(row, ",") + "\n"); err != nil {
		return fmt.Errorf("append row: %w", err)
	}
	if err := d.f.Sync(); err != nil {
		return fmt.Errorf("sync row: %w", err)
	}
	return nil
}

func (d *DailyFile) Path() string { return d.path }

// Size returns the current on-disk size in bytes.
func (d *DailyFile) Size() int64 {
	info, err := d.f.Stat()
	if err != nil {
		return 0
	}
	return info.Size()
}

func (d *DailyFile) Close() error {
	if d.f == nil {
		return nil
	}
	err := d.f.Close()
	d.f = nil
	return err
}

// FormatRow renders a measurement into the fixed column order. Electrical
// quantities and irradiance fall back to zero per the substitution rules;
// every other missing value renders as the not-available token.
func FormatRow(m domain.Measurement) []string {
	row := make([]string, 0, len(Header))

	for _, field := range []func(domain.PanelPower) domain.Value{
		func(p domain.PanelPower) domain.Value { return p.Voltage },
		func(p domain.PanelPower) domain.Value { return p.Current },
		func(p domain.PanelPower) domain.Value { return p.Power },
		func(p domain.PanelPower) domain.Value { return p.EnergyWh },
	} {
		for _, panel := range m.Panels {
			row = append(row, formatFloat(field(panel).Or(0), 4))
		}
	}

	row = append(row, formatFloat(m.Irradiance.Or(0), 2))

	for _, t := range m.Thermistors {
		row = append(row, formatValue(t, 2))
	}

	row = append(row, formatFloat(m.RainMM, 2))
	row = append(row, formatValue(m.WindSpeed, 2))
	if composite := m.WindComposite(); composite != "" {
		row = append(row, composite)
	} else {
		row = append(row, NotAvailable)
	}
	row = append(row, formatValue(m.Humidity, 1))
	row = append(row, formatValue(m.AmbientTemp, 2))
	row = append(row, m.Taken.Format("2006-01-02 15:04:05"))

	return row
}

func formatValue(v domain.Value, prec int) string {
	f, ok := v.Float()
	if !ok {
		return NotAvailable
	}
	return formatFloat(f, prec)
}

func formatFloat(f float64, prec int) string {
	return strconv.FormatFloat(f, 'f', prec, 64)
}

// FindDailyFile scans dir for an existing same-day file and returns the most
// recently modified match. Used by recovery when the checkpoint is rejected.
func FindDailyFile(dir string, now time.Time) (string, bool) {
	pattern := filepath.Join(dir, fmt.Sprintf("data_%s_*.csv", now.Format("20060102")))
	matches, err := filepath.Glob(pattern)
	if err != nil || len(matches) == 0 {
		return "", false
	}

	var (
		newest     string
		newestTime time.Time
	)
	for _, path := range matches {
		info, err := os.Stat(path)
		if err != nil {
			continue
		}
		if newest == "" || info.ModTime().After(newestTime) {
			newest = path
			newestTime = info.ModTime()
		}
	}
	return newest, newest != ""
}
