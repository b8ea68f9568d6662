package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/emberleaf/emberleaf/internal/services/story/domain/credit"
	"github.com/emberleaf/emberleaf/internal/services/story/storage"
)

// ListTransactions returns one page of a user's ledger, newest first. The
// page token is the sequence number to continue below.
func (s *Store) ListTransactions(ctx context.Context, userID string, pageSize int, pageToken string) (storage.TransactionPage, error) {
	if err := ctx.Err(); err != nil {
		return storage.TransactionPage{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.TransactionPage{}, fmt.Errorf("storage is not configured")
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return storage.TransactionPage{}, fmt.Errorf("user id is required")
	}
	if pageSize <= 0 {
		return storage.TransactionPage{}, fmt.Errorf("page size must be greater than zero")
	}

	beforeSeq := int64(-1)
	pageToken = strings.TrimSpace(pageToken)
	if pageToken != "" {
		parsed, err := strconv.ParseInt(pageToken, 10, 64)
		if err != nil {
			return storage.TransactionPage{}, fmt.Errorf("invalid page token")
		}
		beforeSeq = parsed
	}

	var (
		rows *sql.Rows
		err  error
	)
	if beforeSeq < 0 {
		rows, err = s.sqlDB.QueryContext(
			ctx,
			`SELECT id, user_id, seq, type, source, amount,
			        balance_before, balance_after, metadata, created_at
			 FROM transactions
			 WHERE user_id = ?
			 ORDER BY seq DESC
			 LIMIT ?`,
			userID,
			pageSize+1,
		)
	} else {
		rows, err = s.sqlDB.QueryContext(
			ctx,
			`SELECT id, user_id, seq, type, source, amount,
			        balance_before, balance_after, metadata, created_at
			 FROM transactions
			 WHERE user_id = ? AND seq < ?
			 ORDER BY seq DESC
			 LIMIT ?`,
			userID,
			beforeSeq,
			pageSize+1,
		)
	}
	if err != nil {
		return storage.TransactionPage{}, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	page := storage.TransactionPage{
		Transactions: make([]credit.Transaction, 0, pageSize),
	}
	seqs := make([]int64, 0, pageSize+1)
	for rows.Next() {
		var (
			txn       credit.Transaction
			txnType   string
			seq       int64
			metadata  string
			createdAt int64
		)
		if err := rows.Scan(
			&txn.ID,
			&txn.UserID,
			&seq,
			&txnType,
			&txn.Source,
			&txn.Amount,
			&txn.BalanceBefore,
			&txn.BalanceAfter,
			&metadata,
			&createdAt,
		); err != nil {
			return storage.TransactionPage{}, fmt.Errorf("list transactions: %w", err)
		}
		txn.Type = credit.Type(txnType)
		txn.CreatedAt = fromMillis(createdAt)
		if metadata != "" && metadata != "null" {
			if err := json.Unmarshal([]byte(metadata), &txn.Metadata); err != nil {
				return storage.TransactionPage{}, fmt.Errorf("decode transaction metadata: %w", err)
			}
		}
		page.Transactions = append(page.Transactions, txn)
		seqs = append(seqs, seq)
	}
	if err := rows.Err(); err != nil {
		return storage.TransactionPage{}, fmt.Errorf("list transactions: %w", err)
	}
	if len(page.Transactions) > pageSize {
		page.Transactions = page.Transactions[:pageSize]
		page.NextPageToken = strconv.FormatInt(seqs[pageSize-1], 10)
	}
	return page, nil
}
