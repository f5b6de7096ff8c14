//go:build integration

package feed

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"
)

// Requires LIVEFEED_TEST_DATABASE_URL pointing at a scratch database.
func TestPostgresLedger_Integration(t *testing.T) {
	dsn := os.Getenv("LIVEFEED_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("LIVEFEED_TEST_DATABASE_URL not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := OpenPostgres(ctx, dsn)
	if err != nil {
		t.Fatalf("OpenPostgres: %v", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(1)

	schema := fmt.Sprintf("livefeed_test_%d", time.Now().UnixNano())
	for _, stmt := range []string{
		`CREATE SCHEMA ` + schema,
		`SET search_path TO ` + schema,
		`CREATE TABLE blocks (hash text PRIMARY KEY, number bigint NOT NULL, timestamp bigint NOT NULL, transaction_count int NOT NULL)`,
		`CREATE TABLE transactions (hash text PRIMARY KEY, block_hash text NOT NULL, block_number bigint NOT NULL,
			transaction_index int NOT NULL, from_address text NOT NULL, to_address text, value numeric NOT NULL)`,
		`CREATE TABLE addresses (address text PRIMARY KEY, balance text NOT NULL)`,
		`INSERT INTO blocks VALUES ('0xb1', 1, 100, 1), ('0xb2a', 2, 200, 0), ('0xb2b', 2, 201, 0), ('0xb3', 3, 300, 0)`,
		`INSERT INTO transactions VALUES
			('0xt1', '0xb1', 1, 0, '0xAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA', NULL, 123456789012345678901234567890)`,
		`INSERT INTO addresses VALUES ('0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa', '42')`,
	} {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			t.Fatalf("%s: %v", stmt, err)
		}
	}
	defer db.ExecContext(context.Background(), `DROP SCHEMA `+schema+` CASCADE`) //nolint:errcheck

	l := NewPostgresLedger(db)
	head, err := l.Head(ctx)
	if err != nil || head != 3 {
		t.Fatalf("Head: got %d, %v; want 3", head, err)
	}

	blocks, err := l.BlocksAfter(ctx, 0, 2)
	if err != nil {
		t.Fatalf("BlocksAfter: %v", err)
	}
	if len(blocks) != 3 {
		t.Fatalf("blocks: got %d, want 3 (two numbers, one shared)", len(blocks))
	}
	b1 := blocks[0]
	if len(b1.Transactions) != 1 || b1.Transactions[0].Value.String() != "123456789012345678901234567890" {
		t.Errorf("transactions: got %+v", b1.Transactions)
	}
	if b1.Transactions[0].To != "" {
		t.Errorf("contract creation To: got %q", b1.Transactions[0].To)
	}
	if len(b1.Addresses) != 1 || b1.Addresses[0].Balance.Int64() != 42 {
		t.Errorf("addresses: got %+v", b1.Addresses)
	}
}
