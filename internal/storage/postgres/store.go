package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"approvalScope/internal/storage"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS scan_owners (
	scan_id     TEXT        NOT NULL,
	owner       TEXT        NOT NULL,
	scanned_at  TIMESTAMPTZ NOT NULL,
	exposures   INTEGER     NOT NULL,
	failures    INTEGER     NOT NULL,
	error_kind  TEXT,
	error       TEXT,
	PRIMARY KEY (scan_id, owner)
);
CREATE TABLE IF NOT EXISTS approval_exposures (
	scan_id          TEXT    NOT NULL,
	owner            TEXT    NOT NULL,
	block_number     BIGINT  NOT NULL,
	log_index        INTEGER NOT NULL,
	tx_hash          TEXT    NOT NULL,
	token_contract   TEXT    NOT NULL,
	spender          TEXT    NOT NULL,
	token_name       TEXT    NOT NULL,
	token_symbol     TEXT    NOT NULL,
	approval_amount  NUMERIC NOT NULL,
	balance          NUMERIC NOT NULL,
	token_price_usd  NUMERIC,
	exposure         NUMERIC NOT NULL,
	exposure_usd     NUMERIC,
	PRIMARY KEY (scan_id, owner, block_number, log_index)
);
CREATE TABLE IF NOT EXISTS approval_failures (
	scan_id         TEXT    NOT NULL,
	owner           TEXT    NOT NULL,
	block_number    BIGINT  NOT NULL,
	log_index       INTEGER NOT NULL,
	tx_hash         TEXT,
	token_contract  TEXT,
	kind            TEXT    NOT NULL,
	error           TEXT    NOT NULL,
	PRIMARY KEY (scan_id, owner, block_number, log_index)
);`

// Store persists scan reports to Postgres.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// EnsureSchema creates the report tables when missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// PutReport upserts every owner, exposure and failure of a report in one batch.
func (s *Store) PutReport(ctx context.Context, report storage.Report) error {
	if len(report.Result) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, owner := range report.Result.Owners() {
		result := report.Result[owner]
		var errKind, errText *string
		if result.Error != nil {
			errKind = &result.Error.Kind
			errText = &result.Error.Error
		}
		batch.Queue(`
			INSERT INTO scan_owners (scan_id, owner, scanned_at, exposures, failures, error_kind, error)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (scan_id, owner)
			DO UPDATE SET
				scanned_at = EXCLUDED.scanned_at,
				exposures = EXCLUDED.exposures,
				failures = EXCLUDED.failures,
				error_kind = EXCLUDED.error_kind,
				error = EXCLUDED.error
		`,
			report.ScanID,
			owner,
			report.ScannedAt,
			len(result.Exposures),
			len(result.Failures),
			errKind,
			errText,
		)

		for _, rec := range result.Exposures {
			batch.Queue(`
				INSERT INTO approval_exposures (
					scan_id, owner, block_number, log_index, tx_hash, token_contract, spender,
					token_name, token_symbol, approval_amount, balance, token_price_usd, exposure, exposure_usd
				) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
				ON CONFLICT (scan_id, owner, block_number, log_index)
				DO UPDATE SET
					balance = EXCLUDED.balance,
					token_price_usd = EXCLUDED.token_price_usd,
					exposure = EXCLUDED.exposure,
					exposure_usd = EXCLUDED.exposure_usd
			`,
				report.ScanID,
				owner,
				int64(rec.BlockNumber),
				int64(rec.LogIndex),
				rec.TxHash,
				rec.TokenContract,
				rec.Spender,
				rec.TokenName,
				rec.TokenSymbol,
				rec.ApprovalAmount.String(),
				rec.Balance.String(),
				nullableDecimal(rec.TokenPriceUSD),
				rec.Exposure.String(),
				nullableDecimal(rec.ExposureUSD),
			)
		}

		for _, failure := range result.Failures {
			batch.Queue(`
				INSERT INTO approval_failures (
					scan_id, owner, block_number, log_index, tx_hash, token_contract, kind, error
				) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
				ON CONFLICT (scan_id, owner, block_number, log_index)
				DO UPDATE SET kind = EXCLUDED.kind, error = EXCLUDED.error
			`,
				report.ScanID,
				owner,
				int64(failure.BlockNumber),
				int64(failure.LogIndex),
				failure.TxHash,
				failure.TokenContract,
				failure.Kind,
				failure.Error,
			)
		}
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for i := 0; i < batch.Len(); i++ {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("store report %s: %w", report.ScanID, err)
		}
	}
	return nil
}

func nullableDecimal(value decimal.NullDecimal) *string {
	if !value.Valid {
		return nil
	}
	text := value.Decimal.String()
	return &text
}
