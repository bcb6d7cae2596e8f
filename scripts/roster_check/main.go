// Command roster_check decodes a roster the way roster approval does and
// reports which rows would award points. With -match it also looks the usns
// up in the configured database.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/noah-isme/activity-points-api/internal/repository"
	"github.com/noah-isme/activity-points-api/pkg/config"
	"github.com/noah-isme/activity-points-api/pkg/database"
	"github.com/noah-isme/activity-points-api/pkg/roster"
)

type row struct {
	USN       string
	Points    int
	Override  bool
	Duplicate bool
	Known     *bool
}

func main() {
	var (
		link          string
		file          string
		defaultPoints int
		scanRows      int
		timeout       time.Duration
		match         bool
	)

	flag.StringVar(&link, "link", "", "Roster link (Google Sheets share link or direct download)")
	flag.StringVar(&file, "file", "", "Local roster file (xlsx or csv)")
	flag.IntVar(&defaultPoints, "points", 0, "Activity default points used when a row has no override")
	flag.IntVar(&scanRows, "scan-rows", roster.DefaultHeaderScanRows, "Rows scanned for the header")
	flag.DurationVar(&timeout, "timeout", 15*time.Second, "Download timeout")
	flag.BoolVar(&match, "match", false, "Match usns against the students table")
	flag.Parse()

	if (link == "") == (file == "") {
		log.Fatal("exactly one of -link or -file is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout+10*time.Second)
	defer cancel()

	doc, err := load(ctx, link, file, scanRows, timeout)
	if err != nil {
		log.Fatalf("failed to decode roster: %v", err)
	}

	rows := expand(doc, defaultPoints)
	if match {
		if err := markKnown(ctx, rows); err != nil {
			log.Fatalf("failed to match students: %v", err)
		}
	}

	awarded := printReport(doc, rows)
	fmt.Printf("Rows: %d, Skipped: %d, Would award: %d\n", len(rows), doc.Skipped, awarded)
	if awarded == 0 {
		os.Exit(1)
	}
}

func load(ctx context.Context, link, file string, scanRows int, timeout time.Duration) (*roster.Roster, error) {
	if file != "" {
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, err
		}
		return roster.Decode(data, scanRows)
	}
	fetcher := roster.NewFetcher(nil, roster.Options{Timeout: timeout, HeaderScanRows: scanRows}, nil)
	return fetcher.Parse(ctx, link)
}

// expand resolves per-row points. Later rows repeating a usn are flagged and
// never award.
func expand(doc *roster.Roster, defaultPoints int) []row {
	seen := make(map[string]struct{}, len(doc.Records))
	rows := make([]row, 0, len(doc.Records))
	for _, rec := range doc.Records {
		r := row{USN: rec.USN, Points: defaultPoints}
		if rec.Points != nil {
			r.Points = *rec.Points
			r.Override = true
		}
		if _, dup := seen[rec.USN]; dup {
			r.Duplicate = true
		}
		seen[rec.USN] = struct{}{}
		rows = append(rows, r)
	}
	return rows
}

func markKnown(ctx context.Context, rows []row) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close() //nolint:errcheck

	usns := make([]string, 0, len(rows))
	for _, r := range rows {
		usns = append(usns, r.USN)
	}
	students, err := repository.NewStudentRepository(db).FindByUSNs(ctx, usns)
	if err != nil {
		return err
	}
	if len(students) == 0 {
		return errors.New("no roster usn matches a student")
	}
	known := make(map[string]bool, len(students))
	for _, s := range students {
		known[s.USN] = true
	}
	for i := range rows {
		k := known[rows[i].USN]
		rows[i].Known = &k
	}
	return nil
}

func printReport(doc *roster.Roster, rows []row) int {
	fmt.Println("Roster Check Report")
	fmt.Println("===================")
	fmt.Printf("Format: %s | Header row: %d | USN column: %q", doc.Format, doc.HeaderRow, doc.USNColumn)
	if doc.PointsColumn != "" {
		fmt.Printf(" | Points column: %q", doc.PointsColumn)
	}
	fmt.Println()

	awarded := 0
	for _, r := range rows {
		status := "OK"
		switch {
		case r.Duplicate:
			status = "DUPLICATE"
		case r.Known != nil && !*r.Known:
			status = "UNMATCHED"
		case r.Points <= 0:
			status = "NO POINTS"
		default:
			awarded++
		}
		source := "default"
		if r.Override {
			source = "override"
		}
		fmt.Printf("[%s] %s  %d (%s)\n", status, r.USN, r.Points, source)
	}
	return awarded
}
