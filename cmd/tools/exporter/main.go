package main

import (
	"context"
	"encoding/csv"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/joho/godotenv"
)

// exporter dumps orders to CSV for the finance spreadsheet.
func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on environment variables")
	}

	var (
		status = flag.String("status", "", "only export orders in this status (e.g. PAID)")
		since  = flag.String("since", "", "only export orders created on or after this date (YYYY-MM-DD)")
		out    = flag.String("out", "", "output file (defaults to stdout)")
	)
	flag.Parse()

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		log.Fatal("DATABASE_URL is not set")
	}

	ctx := context.Background()
	conn, err := pgx.Connect(ctx, dbURL)
	if err != nil {
		log.Fatalf("Failed to connect: %v", err)
	}
	defer conn.Close(ctx)

	query := `
		SELECT id, account_id, account_email, status, currency,
		       original_total, combo_discount, gift_discount, final_total,
		       override_applied, created_at
		FROM orders
		WHERE ($1 = '' OR status = $1)
		  AND ($2::timestamptz IS NULL OR created_at >= $2::timestamptz)
		ORDER BY created_at`

	var sinceArg any
	if *since != "" {
		t, err := time.Parse("2006-01-02", *since)
		if err != nil {
			log.Fatalf("Invalid -since date: %v", err)
		}
		sinceArg = t
	}

	rows, err := conn.Query(ctx, query, *status, sinceArg)
	if err != nil {
		log.Fatalf("Query failed: %v", err)
	}
	defer rows.Close()

	dest := os.Stdout
	if *out != "" {
		f, err := os.Create(*out)
		if err != nil {
			log.Fatalf("Failed to create %s: %v", *out, err)
		}
		defer f.Close()
		dest = f
	}

	w := csv.NewWriter(dest)
	header := []string{
		"id", "account_id", "account_email", "status", "currency",
		"original_total", "combo_discount", "gift_discount", "final_total",
		"override_applied", "created_at",
	}
	if err := w.Write(header); err != nil {
		log.Fatalf("Write failed: %v", err)
	}

	count := 0
	for rows.Next() {
		var id, accountID, accountEmail, st, currency string
		var original, comboDisc, giftDisc, finalTotal int64
		var override bool
		var createdAt time.Time
		if err := rows.Scan(&id, &accountID, &accountEmail, &st, &currency,
			&original, &comboDisc, &giftDisc, &finalTotal, &override, &createdAt); err != nil {
			log.Fatalf("Scan failed: %v", err)
		}
		record := []string{
			id, accountID, accountEmail, st, currency,
			strconv.FormatInt(original, 10),
			strconv.FormatInt(comboDisc, 10),
			strconv.FormatInt(giftDisc, 10),
			strconv.FormatInt(finalTotal, 10),
			strconv.FormatBool(override),
			createdAt.Format(time.RFC3339),
		}
		if err := w.Write(record); err != nil {
			log.Fatalf("Write failed: %v", err)
		}
		count++
	}
	if err := rows.Err(); err != nil {
		log.Fatalf("Read failed: %v", err)
	}

	w.Flush()
	if err := w.Error(); err != nil {
		log.Fatalf("Flush failed: %v", err)
	}
	fmt.Fprintf(os.Stderr, "Exported %d orders\n", count)
}
