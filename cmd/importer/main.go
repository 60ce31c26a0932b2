package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/cama-import/internal/config"
	"github.com/cama-import/internal/db"
	"github.com/cama-import/internal/importer"
	"github.com/cama-import/internal/linker"
	"github.com/cama-import/internal/source"
)

func main() {
	if err := config.LoadEnv(); err != nil {
		log.Printf("Warning: failed to load .env: %v", err)
	}

	rootCmd := &cobra.Command{
		Use:   "importer",
		Short: "CAMA parcel record-linkage importer",
		Long:  `Reconciles cleaned-sheet, raw-export, and geo-parcel CAMA sources into deduplicated, geometry-bearing parcel records`,
	}

	rootCmd.AddCommand(createImportCmd())
	rootCmd.AddCommand(createPingCmd())
	rootCmd.AddCommand(createReportCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func createImportCmd() *cobra.Command {
	var (
		cleanedPath string
		rawPath     string
		geoPath     string
		dryRun      bool
		limit       int
		noParallel  bool
		batchSize   int
		workers     int
		verbose     bool
	)

	cmd := &cobra.Command{
		Use:   "import [municipality]",
		Short: "Run a municipality import",
		Long:  `Load the three sources, link records across them, and upsert one row per parcel keyed by (parcel_id, municipality)`,
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			municipality := args[0]

			// Source reads happen before any writes; an unreadable
			// source aborts the whole run with a non-zero exit.
			geoSet, err := source.ReadGeoParcels(geoPath)
			if err != nil {
				log.Fatalf("Failed to read geo parcels: %v", err)
			}
			fmt.Printf("Loaded %d geo parcels (%d degenerate dropped, %d malformed)\n",
				len(geoSet.Records), geoSet.Degenerate, geoSet.Malformed)

			var cleanedSet *source.CleanedSet
			if cleanedPath != "" {
				cleanedSet, err = source.ReadCleanedSheet(cleanedPath)
				if err != nil {
					log.Fatalf("Failed to read cleaned sheet: %v", err)
				}
				fmt.Printf("Loaded %d cleaned-sheet rows (%d skipped, %d malformed)\n",
					len(cleanedSet.Records), cleanedSet.Skipped, cleanedSet.Malformed)
			}

			var rawSet *source.RawSet
			if rawPath != "" {
				rawSet, err = source.ReadRawExport(rawPath)
				if err != nil {
					log.Fatalf("Failed to read raw export: %v", err)
				}
				fmt.Printf("Loaded %d raw-export rows (%d malformed)\n",
					len(rawSet.Records), rawSet.Malformed)
			}

			parcels, linkStats := linker.New(municipality, verbose).Link(cleanedSet, rawSet, geoSet)

			var conn *db.Connection
			if !dryRun {
				conn, err = db.NewConnection()
				if err != nil {
					log.Fatalf("Failed to connect to database: %v", err)
				}
				defer conn.Close()

				if err := db.EnsureSchema(conn.DB); err != nil {
					log.Fatalf("Failed to ensure schema: %v", err)
				}
			}

			coordinator := importer.New(sqlDB(conn), verbose)
			report, err := coordinator.ImportMunicipality(context.Background(), municipality, parcels, importer.Options{
				DryRun:    dryRun,
				BatchSize: batchSize,
				Limit:     limit,
				Parallel:  !noParallel,
				Workers:   workers,
			})
			if err != nil {
				log.Fatalf("Import failed: %v", err)
			}

			report.Duplicates = linkStats.Duplicates
			report.DegenerateGeometry += geoSet.Degenerate
			report.MalformedRecords = geoSet.Malformed
			if cleanedSet != nil {
				report.MalformedRecords += cleanedSet.Malformed
			}
			if rawSet != nil {
				report.MalformedRecords += rawSet.Malformed
			}

			report.Print(os.Stdout)

			// Partial write failure is a reported, valid terminal
			// outcome, not a non-zero exit.
		},
	}

	cmd.Flags().StringVar(&cleanedPath, "cleaned", "", "Path to the cleaned spreadsheet CSV")
	cmd.Flags().StringVar(&rawPath, "raw", "", "Path to the raw government export")
	cmd.Flags().StringVar(&geoPath, "geo", "", "Path to the parcel shapefile (.shp)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Compute and report without writing")
	cmd.Flags().IntVar(&limit, "limit", 0, "Import at most N parcels (0 = all)")
	cmd.Flags().BoolVar(&noParallel, "no-parallel", false, "Disable parallel field mapping")
	cmd.Flags().IntVar(&batchSize, "batch-size", 500, "Rows per write transaction")
	cmd.Flags().IntVar(&workers, "workers", 0, "Mapping workers (0 = NumCPU)")
	cmd.Flags().BoolVar(&verbose, "verbose", false, "Verbose progress output")
	_ = cmd.MarkFlagRequired("geo")

	return cmd
}

func createPingCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ping",
		Short: "Test database connectivity",
		Run: func(cmd *cobra.Command, args []string) {
			conn, err := db.NewConnection()
			if err != nil {
				log.Fatalf("Failed to connect to database: %v", err)
			}
			defer conn.Close()

			fmt.Println("Database connection successful!")

			var count int
			err = conn.DB.QueryRow("SELECT COUNT(*) FROM parcels").Scan(&count)
			if err != nil {
				log.Printf("Error counting parcels: %v", err)
			} else {
				fmt.Printf("Parcels stored: %d\n", count)
			}
		},
	}
}

func createReportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "report [municipality]",
		Short: "Show stored match-confidence breakdown for a municipality",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			municipality := args[0]

			conn, err := db.NewConnection()
			if err != nil {
				log.Fatalf("Failed to connect to database: %v", err)
			}
			defer conn.Close()

			rows, err := conn.DB.Query(`
				SELECT match_confidence, COUNT(*),
				       COUNT(*) - COUNT(owner_name),
				       COUNT(*) - COUNT(address)
				FROM parcels
				WHERE municipality = $1
				GROUP BY match_confidence
				ORDER BY COUNT(*) DESC
			`, municipality)
			if err != nil {
				log.Fatalf("Query failed: %v", err)
			}
			defer rows.Close()

			fmt.Printf("=== Stored Parcels: %s ===\n", municipality)
			fmt.Println("Confidence          | Count  | No Owner | No Address")
			fmt.Println("--------------------|--------|----------|-----------")

			total := 0
			for rows.Next() {
				var confidence string
				var count, noOwner, noAddress int
				if err := rows.Scan(&confidence, &count, &noOwner, &noAddress); err != nil {
					log.Fatalf("Scan failed: %v", err)
				}
				fmt.Printf("%-19s | %6d | %8d | %10d\n", confidence, count, noOwner, noAddress)
				total += count
			}
			if err := rows.Err(); err != nil && !errors.Is(err, context.Canceled) {
				log.Fatalf("Query failed: %v", err)
			}
			fmt.Printf("\nTotal: %d\n", total)
		},
	}
}

func sqlDB(conn *db.Connection) *sql.DB {
	if conn == nil {
		return nil
	}
	return conn.DB
}
