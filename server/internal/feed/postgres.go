package feed

import (
	"context"
	"database/sql"
	"fmt"
	"math/big"
	"strings"

	"github.com/lib/pq"

	"github.com/phoenix-explorer/livefeed/pkg/types"
)

// PostgresLedger reads the block, transaction and address tables written by
// the indexer.
type PostgresLedger struct {
	db *sql.DB
}

// OpenPostgres opens and pings a connection pool for dsn.
func OpenPostgres(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("feed: open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("feed: ping postgres: %w", err)
	}
	return db, nil
}

// NewPostgresLedger wraps an open pool.
func NewPostgresLedger(db *sql.DB) *PostgresLedger {
	return &PostgresLedger{db: db}
}

const (
	headQuery = `SELECT COALESCE(MAX(number), 0)::text FROM blocks`

	blocksQuery = `
SELECT number::text, hash, timestamp::text, transaction_count
FROM blocks
WHERE number IN (
	SELECT DISTINCT number FROM blocks WHERE number > $1 ORDER BY number LIMIT $2
)
ORDER BY number, hash`

	transactionsQuery = `
SELECT hash, block_hash, block_number::text, from_address, COALESCE(to_address, ''), value::text
FROM transactions
WHERE block_hash = ANY($1)
ORDER BY block_number, transaction_index`

	balancesQuery = `
SELECT lower(address), balance::text
FROM addresses
WHERE lower(address) = ANY($1)`
)

// Head returns the highest indexed block number, or 0 for an empty table.
func (l *PostgresLedger) Head(ctx context.Context) (uint64, error) {
	var s string
	if err := l.db.QueryRowContext(ctx, headQuery).Scan(&s); err != nil {
		return 0, fmt.Errorf("query head: %w", err)
	}
	n, err := parseNumeric(s)
	if err != nil {
		return 0, fmt.Errorf("parse head: %w", err)
	}
	if !n.IsUint64() {
		return 0, fmt.Errorf("head %s out of range", s)
	}
	return n.Uint64(), nil
}

// BlocksAfter implements Ledger. Address updates carry the balance stored at
// query time and the hash of the last transaction in the block that touched
// the account.
func (l *PostgresLedger) BlocksAfter(ctx context.Context, after uint64, limit int) ([]LedgerBlock, error) {
	blocks, err := l.blocks(ctx, after, limit)
	if err != nil || len(blocks) == 0 {
		return nil, err
	}

	hashes := make([]string, len(blocks))
	index := make(map[string]int, len(blocks))
	for i, b := range blocks {
		hashes[i] = b.Block.Hash
		index[b.Block.Hash] = i
	}

	txs, err := l.transactions(ctx, hashes)
	if err != nil {
		return nil, err
	}
	var touched []string
	seen := make(map[string]struct{})
	for _, tx := range txs {
		i, ok := index[tx.BlockHash]
		if !ok {
			continue
		}
		blocks[i].Transactions = append(blocks[i].Transactions, tx)
		for _, a := range []string{tx.From, tx.To} {
			a = strings.ToLower(a)
			if a == "" {
				continue
			}
			if _, dup := seen[a]; !dup {
				seen[a] = struct{}{}
				touched = append(touched, a)
			}
		}
	}
	if len(touched) == 0 {
		return blocks, nil
	}

	balances, err := l.balances(ctx, touched)
	if err != nil {
		return nil, err
	}
	for i := range blocks {
		blocks[i].Addresses = addressUpdates(blocks[i], balances)
	}
	return blocks, nil
}

func (l *PostgresLedger) blocks(ctx context.Context, after uint64, limit int) ([]LedgerBlock, error) {
	rows, err := l.db.QueryContext(ctx, blocksQuery, after, limit)
	if err != nil {
		return nil, fmt.Errorf("query blocks: %w", err)
	}
	defer rows.Close()

	var out []LedgerBlock
	for rows.Next() {
		var (
			number, ts string
			b          types.BlockUpdate
		)
		if err := rows.Scan(&number, &b.Hash, &ts, &b.TransactionCount); err != nil {
			return nil, fmt.Errorf("scan block: %w", err)
		}
		if b.Number, err = parseNumeric(number); err != nil {
			return nil, fmt.Errorf("block %s number: %w", b.Hash, err)
		}
		if b.Timestamp, err = parseNumeric(ts); err != nil {
			return nil, fmt.Errorf("block %s timestamp: %w", b.Hash, err)
		}
		out = append(out, LedgerBlock{Block: b})
	}
	return out, rows.Err()
}

func (l *PostgresLedger) transactions(ctx context.Context, blockHashes []string) ([]types.TransactionUpdate, error) {
	rows, err := l.db.QueryContext(ctx, transactionsQuery, pq.Array(blockHashes))
	if err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}
	defer rows.Close()

	var out []types.TransactionUpdate
	for rows.Next() {
		var (
			number, value string
			tx            types.TransactionUpdate
		)
		if err := rows.Scan(&tx.Hash, &tx.BlockHash, &number, &tx.From, &tx.To, &value); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		if tx.BlockNumber, err = parseNumeric(number); err != nil {
			return nil, fmt.Errorf("transaction %s block number: %w", tx.Hash, err)
		}
		if tx.Value, err = parseNumeric(value); err != nil {
			return nil, fmt.Errorf("transaction %s value: %w", tx.Hash, err)
		}
		out = append(out, tx)
	}
	return out, rows.Err()
}

func (l *PostgresLedger) balances(ctx context.Context, addrs []string) (map[string]*big.Int, error) {
	rows, err := l.db.QueryContext(ctx, balancesQuery, pq.Array(addrs))
	if err != nil {
		return nil, fmt.Errorf("query balances: %w", err)
	}
	defer rows.Close()

	out := make(map[string]*big.Int, len(addrs))
	for rows.Next() {
		var addr, bal string
		if err := rows.Scan(&addr, &bal); err != nil {
			return nil, fmt.Errorf("scan balance: %w", err)
		}
		n, err := parseNumeric(bal)
		if err != nil {
			return nil, fmt.Errorf("balance of %s: %w", addr, err)
		}
		out[addr] = n
	}
	return out, rows.Err()
}

// addressUpdates derives one update per account touched in b, in order of
// first appearance. Accounts without a stored balance or a well-formed
// address are skipped.
func addressUpdates(b LedgerBlock, balances map[string]*big.Int) []types.AddressUpdate {
	var (
		out []types.AddressUpdate
		pos = make(map[string]int)
	)
	for _, tx := range b.Transactions {
		for _, raw := range []string{tx.From, tx.To} {
			addr, err := types.NormalizeAddress(raw)
			if err != nil {
				continue
			}
			bal, ok := balances[addr]
			if !ok {
				continue
			}
			if i, ok := pos[addr]; ok {
				out[i].TransactionHash = tx.Hash
				continue
			}
			pos[addr] = len(out)
			out = append(out, types.AddressUpdate{
				Address:         addr,
				Balance:         bal,
				TransactionHash: tx.Hash,
				BlockNumber:     b.Block.Number,
			})
		}
	}
	return out
}

// parseNumeric reads the text form of a NUMERIC or BIGINT column.
func parseNumeric(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '.'); i >= 0 {
		if strings.Trim(s[i+1:], "0") != "" {
			return nil, fmt.Errorf("%q is not an integer", s)
		}
		s = s[:i]
	}
	n, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("%q is not an integer", s)
	}
	return n, nil
}
