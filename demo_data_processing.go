package main

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/Hetprajapati12/Assignment-solution/internal/models"
	"github.com/Hetprajapati12/Assignment-solution/internal/parser"
	"github.com/Hetprajapati12/Assignment-solution/pkg/logging"
)

// DemoDataProcessing demonstrates the CSV parsing and validation without a database
func main() {
	fmt.Println("════════════════════════════════════════════════════════════════")
	fmt.Println("TEMPERATURE SERVICE - DATA PROCESSING DEMONSTRATION")
	fmt.Println("════════════════════════════════════════════════════════════════")
	fmt.Println()

	// Initialize logger
	logger := logging.NewStructuredLogger("demo", "1.0.0", logging.InfoLevel)
	ctx := context.Background()

	// Process each CSV file
	dataDir := "./data"
	if len(os.Args) > 1 {
		dataDir = os.Args[1]
	}
	files, err := filepath.Glob(filepath.Join(dataDir, "*.csv"))
	if err != nil {
		fmt.Printf("Error reading directory: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Found %d temperature data files\n\n", len(files))

	totalRows := 0
	validRows := 0
	errorRows := 0

	type cityAgg struct {
		sum   int64
		count int64
		max   models.Temperature
		min   models.Temperature
	}
	aggregates := map[string]*cityAgg{}

	for _, filePath := range files {
		fileName := filepath.Base(filePath)

		fmt.Printf("─────────────────────────────────────────────────────────────\n")
		fmt.Printf("Processing File: %s\n", fileName)
		fmt.Printf("─────────────────────────────────────────────────────────────\n")

		file, err := os.Open(filePath)
		if err != nil {
			logger.Error(ctx, "Failed to open file", logging.Fields{
				"file": filePath,
			}, err)
			continue
		}

		reader := csv.NewReader(file)
		reader.FieldsPerRecord = -1
		reader.LazyQuotes = true
		reader.TrimLeadingSpace = true

		fileRows := 0
		fileValid := 0
		fileErrors := 0
		rowNum := 0

		for {
			fields, err := reader.Read()
			if err == io.EOF {
				break
			}
			if err != nil {
				fmt.Printf("  Read error: %v\n", err)
				break
			}

			// The header row does not count as data
			if rowNum == 0 && parser.IsHeaderRow(fields) {
				rowNum++
				continue
			}
			rowNum++

			totalRows++
			fileRows++

			row, err := parser.ParseRow(fields)
			if err != nil {
				fmt.Printf("  [%d] %v\n", rowNum, err)
				fileErrors++
				errorRows++
				continue
			}

			fileValid++
			validRows++

			agg, ok := aggregates[row.CityID]
			if !ok {
				agg = &cityAgg{max: row.Value, min: row.Value}
				aggregates[row.CityID] = agg
			}
			agg.sum += int64(row.Value)
			agg.count++
			if row.Value > agg.max {
				agg.max = row.Value
			}
			if row.Value < agg.min {
				agg.min = row.Value
			}

			// Print the first few valid rows as a sample
			if fileValid <= 3 {
				fmt.Printf("  [%d] City: %s | Temp: %s°C | Time: %s\n",
					rowNum, row.CityID, row.Value, row.Timestamp.Format("2006-01-02 15:04:05"))
			}
		}

		fmt.Printf("\n  File Summary:\n")
		fmt.Printf("    Total rows:   %d\n", fileRows)
		fmt.Printf("    Valid rows:   %d\n", fileValid)
		fmt.Printf("    Error rows:   %d\n", fileErrors)
		fmt.Println()

		file.Close()
	}

	fmt.Println("════════════════════════════════════════════════════════════════")
	fmt.Println("PROCESSING SUMMARY")
	fmt.Println("════════════════════════════════════════════════════════════════")
	fmt.Printf("Total data files:       %d\n", len(files))
	fmt.Printf("Total rows:             %d\n", totalRows)
	fmt.Printf("Valid rows:             %d\n", validRows)
	fmt.Printf("Error rows:             %d\n", errorRows)
	if totalRows > 0 {
		fmt.Printf("Success rate:           %.2f%%\n", float64(validRows)/float64(totalRows)*100)
	}
	fmt.Println()

	// Demonstrate statistics calculation
	fmt.Println("════════════════════════════════════════════════════════════════")
	fmt.Println("STATISTICS CALCULATION DEMONSTRATION")
	fmt.Println("════════════════════════════════════════════════════════════════")

	cityIDs := make([]string, 0, len(aggregates))
	for cityID := range aggregates {
		cityIDs = append(cityIDs, cityID)
	}
	sort.Strings(cityIDs)

	for _, cityID := range cityIDs {
		agg := aggregates[cityID]
		mean := models.NewTemperature(float64(agg.sum) / float64(agg.count) / 100)
		fmt.Printf("City: %s\n", cityID)
		fmt.Printf("  Mean: %s°C | Max: %s°C | Min: %s°C (from %d readings)\n",
			mean, agg.max, agg.min, agg.count)
	}

	fmt.Println()
	fmt.Println("════════════════════════════════════════════════════════════════")
	fmt.Println("✅ DATA PROCESSING DEMONSTRATION COMPLETE")
	fmt.Println("════════════════════════════════════════════════════════════════")
	fmt.Println()
	fmt.Println("The system successfully:")
	fmt.Println("  ✓ Parsed comma-separated temperature readings")
	fmt.Println("  ✓ Validated temperatures against the -100..100 range")
	fmt.Println("  ✓ Accepted multiple timestamp formats (ISO 8601, epoch, slash dates)")
	fmt.Println("  ✓ Skipped header rows automatically")
	fmt.Println("  ✓ Calculated per-city statistics (mean, max, min)")
	fmt.Println()
	fmt.Println("With a database, this would:")
	fmt.Println("  • Store all readings in the temperature_readings table")
	fmt.Println("  • Calculate and cache statistics in the city_stats_cache table")
	fmt.Println("  • Serve data via REST API endpoints")
	fmt.Println("  • Process uploads asynchronously through the task queue")
	fmt.Println()
}
