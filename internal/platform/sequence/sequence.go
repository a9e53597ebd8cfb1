// Package sequence allocates human-readable document numbers such as APT0001
// and INV0048.
//
// Numbers are derived from the highest number already stored, under a
// transaction-scoped advisory lock keyed by prefix, so allocation is gap-free
// for committed rows and serialized across concurrent writers. A unique
// constraint on the number column backs this up.
package sequence

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinic/clinic/internal/platform/db"
)

const (
	PrefixAppointment = "APT"
	PrefixInvoice     = "INV"
	PrefixPatient     = "P"

	width = 4
)

// Format renders n with prefix, zero-padded to four digits. Larger values
// keep all their digits.
func Format(prefix string, n int) string {
	return fmt.Sprintf("%s%0*d", prefix, width, n)
}

// Parse extracts the numeric suffix of a number produced by Format.
func Parse(prefix, number string) (int, error) {
	if !strings.HasPrefix(number, prefix) {
		return 0, fmt.Errorf("number %q does not start with %q", number, prefix)
	}
	n, err := strconv.Atoi(number[len(prefix):])
	if err != nil || n < 0 {
		return 0, fmt.Errorf("number %q has no numeric suffix", number)
	}
	return n, nil
}

// NextAfter returns the number following last. An empty last yields the first
// number in the series.
func NextAfter(prefix, last string) (string, error) {
	if last == "" {
		return Format(prefix, 1), nil
	}
	n, err := Parse(prefix, last)
	if err != nil {
		return "", err
	}
	return Format(prefix, n+1), nil
}

// Generator hands out the next number of a series. Callers must invoke it
// inside the transaction that inserts the row carrying the number.
type Generator interface {
	Next(ctx context.Context) (string, error)
}

// Allocator is the Postgres Generator for one table column.
type Allocator struct {
	pool   *pgxpool.Pool
	table  string
	column string
	prefix string
}

func NewAllocator(pool *pgxpool.Pool, table, column, prefix string) *Allocator {
	return &Allocator{pool: pool, table: table, column: column, prefix: prefix}
}

func (a *Allocator) Prefix() string { return a.prefix }

func (a *Allocator) Next(ctx context.Context) (string, error) {
	q := db.QuerierFrom(ctx, a.pool)

	if _, err := q.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, a.table+"."+a.prefix); err != nil {
		return "", fmt.Errorf("lock %s sequence: %w", a.prefix, err)
	}

	// Longer strings sort after shorter ones so APT10000 follows APT9999.
	var last string
	err := q.QueryRow(ctx, fmt.Sprintf(
		`SELECT %[1]s FROM %[2]s WHERE %[1]s LIKE $1 ORDER BY length(%[1]s) DESC, %[1]s DESC LIMIT 1`,
		a.column, a.table), a.prefix+"%").Scan(&last)
	if err != nil && !db.IsNoRows(err) {
		return "", fmt.Errorf("read last %s number: %w", a.prefix, err)
	}
	return NextAfter(a.prefix, last)
}
