package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"github.com/hlhdaiaaii/trophy-token/internal/chain"
	"github.com/hlhdaiaaii/trophy-token/internal/crowdsale"
)

// ExportFormat represents the export file format
type ExportFormat string

const (
	FormatCSV  ExportFormat = "csv"
	FormatJSON ExportFormat = "json"
)

// PurchaserRecord is the flattened export row for one purchaser.
type PurchaserRecord struct {
	Address      string    `json:"address"`
	Contribution string    `json:"contribution"`
	TokensOwed   string    `json:"tokens_owed"`
	Status       string    `json:"status"`
	PurchasedAt  time.Time `json:"purchased_at"`
}

// ExportOptions configures the export behavior
type ExportOptions struct {
	Format       ExportFormat
	StartTime    time.Time
	EndTime      time.Time
	StatusFilter string // unclaimed, claimed or refunded
	OutputDir    string
}

// SaleExporter writes purchaser lists and sale reports to disk.
type SaleExporter struct {
	logger *zap.Logger
}

// NewSaleExporter creates a new sale exporter
func NewSaleExporter(logger *zap.Logger) *SaleExporter {
	return &SaleExporter{
		logger: logger,
	}
}

// SnapshotPurchasers flattens the controller's purchaser records in
// insertion order, denormalizing the token entitlement at price.
func SnapshotPurchasers(ctrl *crowdsale.Controller, price *uint256.Int) []PurchaserRecord {
	addrs := ctrl.AllPurchasers()
	records := make([]PurchaserRecord, 0, len(addrs))
	for _, addr := range addrs {
		rec, ok := ctrl.PurchaserOf(addr)
		if !ok {
			continue
		}
		records = append(records, PurchaserRecord{
			Address:      string(addr),
			Contribution: chain.FormatUnits(rec.Contribution),
			TokensOwed:   chain.FormatUnits(chain.TokensForNative(rec.Contribution, price)),
			Status:       terminalString(rec.Terminal),
			PurchasedAt:  rec.PurchasedAt,
		})
	}
	return records
}

func terminalString(t crowdsale.TerminalState) string {
	switch t {
	case crowdsale.Claimed:
		return "claimed"
	case crowdsale.Refunded:
		return "refunded"
	default:
		return "unclaimed"
	}
}

// ExportPurchasers exports purchaser records based on the provided options
func (se *SaleExporter) ExportPurchasers(records []PurchaserRecord, options ExportOptions) (string, error) {
	filtered := se.filterRecords(records, options)

	if len(filtered) == 0 {
		return "", fmt.Errorf("no purchasers match the export criteria")
	}

	sort.Slice(filtered, func(i, j int) bool {
		return filtered[i].PurchasedAt.Before(filtered[j].PurchasedAt)
	})

	filename := se.generateFilename(options)
	outputPath := filepath.Join(options.OutputDir, filename)

	if err := os.MkdirAll(options.OutputDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}

	var err error
	switch options.Format {
	case FormatCSV:
		err = se.exportToCSV(filtered, outputPath)
	case FormatJSON:
		err = se.exportToJSON(filtered, outputPath)
	default:
		err = fmt.Errorf("unsupported format: %s", options.Format)
	}

	if err != nil {
		return "", err
	}

	se.logger.Info("Purchasers exported",
		zap.String("file", outputPath),
		zap.Int("count", len(filtered)),
		zap.String("format", string(options.Format)))

	return outputPath, nil
}

// filterRecords applies filters to the record list
func (se *SaleExporter) filterRecords(records []PurchaserRecord, options ExportOptions) []PurchaserRecord {
	var filtered []PurchaserRecord

	for _, rec := range records {
		if !options.StartTime.IsZero() && rec.PurchasedAt.Before(options.StartTime) {
			continue
		}
		if !options.EndTime.IsZero() && rec.PurchasedAt.After(options.EndTime) {
			continue
		}
		if options.StatusFilter != "" && rec.Status != options.StatusFilter {
			continue
		}
		filtered = append(filtered, rec)
	}

	return filtered
}

// generateFilename creates a filename based on export options
func (se *SaleExporter) generateFilename(options ExportOptions) string {
	timestamp := time.Now().Format("20060102_150405")

	var prefix string
	if options.StatusFilter != "" {
		prefix = fmt.Sprintf("purchasers_%s", options.StatusFilter)
	} else {
		prefix = "purchasers_all"
	}

	return fmt.Sprintf("%s_%s.%s", prefix, timestamp, options.Format)
}

func purchaserCSVHeaders() []string {
	return []string{"address", "contribution", "tokens_owed", "status", "purchased_at"}
}

// exportToCSV exports records to CSV format
func (se *SaleExporter) exportToCSV(records []PurchaserRecord, outputPath string) error {
	file, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("failed to create CSV file: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	if err := writer.Write(purchaserCSVHeaders()); err != nil {
		return fmt.Errorf("failed to write CSV headers: %w", err)
	}

	for _, rec := range records {
		row := []string{
			rec.Address,
			rec.Contribution,
			rec.TokensOwed,
			rec.Status,
			rec.PurchasedAt.UTC().Format(time.RFC3339),
		}
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write record: %w", err)
		}
	}

	return nil
}

// exportToJSON exports records to JSON format
func (se *SaleExporter) exportToJSON(records []PurchaserRecord, outputPath string) error {
	file, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("failed to create JSON file: %w", err)
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")

	exportData := struct {
		ExportTime     time.Time         `json:"export_time"`
		PurchaserCount int               `json:"purchaser_count"`
		Purchasers     []PurchaserRecord `json:"purchasers"`
		Summary        ExportSummary     `json:"summary"`
	}{
		ExportTime:     time.Now(),
		PurchaserCount: len(records),
		Purchasers:     records,
		Summary:        se.calculateSummary(records),
	}

	if err := encoder.Encode(exportData); err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}

	return nil
}

// calculateSummary calculates summary statistics for the export
func (se *SaleExporter) calculateSummary(records []PurchaserRecord) ExportSummary {
	summary := ExportSummary{
		TotalPurchasers: len(records),
	}

	if len(records) == 0 {
		return summary
	}

	summary.StartDate = records[0].PurchasedAt
	summary.EndDate = records[len(records)-1].PurchasedAt

	total := new(uint256.Int)
	for _, rec := range records {
		switch rec.Status {
		case "claimed":
			summary.ClaimedCount++
		case "refunded":
			summary.RefundedCount++
		default:
			summary.UnclaimedCount++
		}
		if v, err := chain.ParseUnits(rec.Contribution); err == nil {
			total.Add(total, v)
		}
	}
	summary.TotalContribution = chain.FormatUnits(total)

	return summary
}

// ExportSummary contains summary statistics for exported purchasers
type ExportSummary struct {
	TotalPurchasers   int       `json:"total_purchasers"`
	ClaimedCount      int       `json:"claimed_count"`
	RefundedCount     int       `json:"refunded_count"`
	UnclaimedCount    int       `json:"unclaimed_count"`
	TotalContribution string    `json:"total_contribution"`
	StartDate         time.Time `json:"start_date"`
	EndDate           time.Time `json:"end_date"`
}

// SaleReport is the settlement-time summary of the whole sale.
type SaleReport struct {
	GeneratedAt      time.Time         `json:"generated_at"`
	Status           string            `json:"status"`
	CurrentCap       string            `json:"current_cap"`
	HardCap          string            `json:"hard_cap"`
	PurchaserCount   int               `json:"purchaser_count"`
	Summary          ExportSummary     `json:"summary"`
	HourlyBreakdown  []HourlyStats     `json:"hourly_breakdown"`
	Purchasers       []PurchaserRecord `json:"purchasers"`
}

// HourlyStats represents purchase statistics for one hour of the sale.
type HourlyStats struct {
	Hour           int    `json:"hour"`
	PurchaserCount int    `json:"purchaser_count"`
	Contribution   string `json:"contribution"`
}

// ExportSaleReport writes the full sale report as indented JSON.
func (se *SaleExporter) ExportSaleReport(ctrl *crowdsale.Controller, price *uint256.Int, outputDir string) (string, error) {
	records := SnapshotPurchasers(ctrl, price)

	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}

	filename := fmt.Sprintf("sale_report_%s.json", time.Now().Format("20060102_150405"))
	outputPath := filepath.Join(outputDir, filename)

	report := SaleReport{
		GeneratedAt:     time.Now(),
		Status:          ctrl.Status().String(),
		CurrentCap:      chain.FormatUnits(ctrl.CurrentCap()),
		HardCap:         chain.FormatUnits(ctrl.HardCap()),
		PurchaserCount:  len(records),
		Summary:         se.calculateSummary(records),
		HourlyBreakdown: se.calculateHourlyBreakdown(records),
		Purchasers:      records,
	}

	file, err := os.Create(outputPath)
	if err != nil {
		return "", fmt.Errorf("failed to create report file: %w", err)
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")

	if err := encoder.Encode(report); err != nil {
		return "", fmt.Errorf("failed to encode report: %w", err)
	}

	se.logger.Info("Sale report exported",
		zap.String("file", outputPath),
		zap.Int("purchasers", len(records)))

	return outputPath, nil
}

// calculateHourlyBreakdown groups purchases by hour of day.
func (se *SaleExporter) calculateHourlyBreakdown(records []PurchaserRecord) []HourlyStats {
	type bucket struct {
		count int
		total *uint256.Int
	}
	hourlyMap := make(map[int]*bucket)

	for _, rec := range records {
		hour := rec.PurchasedAt.Hour()

		b, exists := hourlyMap[hour]
		if !exists {
			b = &bucket{total: new(uint256.Int)}
			hourlyMap[hour] = b
		}

		b.count++
		if v, err := chain.ParseUnits(rec.Contribution); err == nil {
			b.total.Add(b.total, v)
		}
	}

	var breakdown []HourlyStats
	for hour := 0; hour < 24; hour++ {
		if b, exists := hourlyMap[hour]; exists {
			breakdown = append(breakdown, HourlyStats{
				Hour:           hour,
				PurchaserCount: b.count,
				Contribution:   chain.FormatUnits(b.total),
			})
		}
	}

	return breakdown
}
