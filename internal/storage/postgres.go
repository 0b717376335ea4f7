package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"zentum/internal/model"
	"zentum/internal/types"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const accountColumns = `id, email, display_name, role, forex_balance, crypto_balance,
	forex_positions, crypto_holdings, history, version, created_at, updated_at`

const requestColumns = `id, account_id, kind, amount, status, coalesce(coin, ''), coalesce(wallet, ''),
	coalesce(address, ''), coalesce(network, ''), created_at, decided_at, coalesce(decided_by, ''), coalesce(note, '')`

type Postgres struct {
	pool *pgxpool.Pool
}

func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (model.Account, error) {
	var acc model.Account
	var role string
	var positions, holdings, history []byte
	err := row.Scan(&acc.ID, &acc.Email, &acc.DisplayName, &role, &acc.ForexBalance, &acc.CryptoBalance,
		&positions, &holdings, &history, &acc.Version, &acc.CreatedAt, &acc.UpdatedAt)
	if err != nil {
		return model.Account{}, err
	}
	acc.Role = types.Role(role)
	if err := json.Unmarshal(positions, &acc.ForexPositions); err != nil {
		return model.Account{}, fmt.Errorf("decode forex_positions: %w", err)
	}
	if err := json.Unmarshal(holdings, &acc.CryptoHoldings); err != nil {
		return model.Account{}, fmt.Errorf("decode crypto_holdings: %w", err)
	}
	if err := json.Unmarshal(history, &acc.History); err != nil {
		return model.Account{}, fmt.Errorf("decode history: %w", err)
	}
	return acc, nil
}

func insertAccount(ctx context.Context, tx pgx.Tx, acc model.Account) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO accounts (id, email, display_name, role, forex_balance, crypto_balance)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, acc.ID, normalizeEmail(acc.Email), acc.DisplayName, string(acc.Role), acc.ForexBalance, acc.CryptoBalance)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	return err
}

func (p *Postgres) CreateAccount(ctx context.Context, acc model.Account) error {
	tx, err := p.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)
	if err := insertAccount(ctx, tx, acc); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (p *Postgres) GetAccount(ctx context.Context, id string) (model.Account, error) {
	acc, err := scanAccount(p.pool.QueryRow(ctx, "SELECT "+accountColumns+" FROM accounts WHERE id = $1", id))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Account{}, ErrNotFound
	}
	return acc, err
}

func (p *Postgres) ListAccounts(ctx context.Context) ([]model.Account, error) {
	rows, err := p.pool.Query(ctx, "SELECT "+accountColumns+" FROM accounts ORDER BY created_at, id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]model.Account, 0)
	for rows.Next() {
		acc, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, acc)
	}
	return out, rows.Err()
}

// CommitAccount writes only the columns present in patch, guarded by the
// expected version. A settlement in the patch flips the request out of
// PENDING inside the same transaction.
func (p *Postgres) CommitAccount(ctx context.Context, id string, expected int64, patch model.AccountPatch) (model.Account, error) {
	sets := make([]string, 0, 6)
	args := []any{id, expected}
	add := func(column string, value any, cast string) {
		args = append(args, value)
		sets = append(sets, column+" = $"+strconv.Itoa(len(args))+cast)
	}
	if patch.ForexBalance != nil {
		add("forex_balance", *patch.ForexBalance, "")
	}
	if patch.CryptoBalance != nil {
		add("crypto_balance", *patch.CryptoBalance, "")
	}
	if patch.ForexPositions != nil {
		raw, err := json.Marshal(nonNil(*patch.ForexPositions))
		if err != nil {
			return model.Account{}, err
		}
		add("forex_positions", raw, "::jsonb")
	}
	if patch.CryptoHoldings != nil {
		raw, err := json.Marshal(nonNil(*patch.CryptoHoldings))
		if err != nil {
			return model.Account{}, err
		}
		add("crypto_holdings", raw, "::jsonb")
	}
	if patch.History != nil {
		raw, err := json.Marshal(nonNil(*patch.History))
		if err != nil {
			return model.Account{}, err
		}
		add("history", raw, "::jsonb")
	}
	sets = append(sets, "version = version + 1", "updated_at = now()")

	tx, err := p.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return model.Account{}, err
	}
	defer tx.Rollback(ctx)

	acc, err := scanAccount(tx.QueryRow(ctx,
		"UPDATE accounts SET "+strings.Join(sets, ", ")+" WHERE id = $1 AND version = $2 RETURNING "+accountColumns,
		args...))
	if errors.Is(err, pgx.ErrNoRows) {
		var exists bool
		if err := tx.QueryRow(ctx, "SELECT EXISTS(SELECT 1 FROM accounts WHERE id = $1)", id).Scan(&exists); err != nil {
			return model.Account{}, err
		}
		if !exists {
			return model.Account{}, ErrNotFound
		}
		return model.Account{}, ErrVersionConflict
	}
	if err != nil {
		return model.Account{}, err
	}
	if s := patch.Settlement; s != nil {
		if _, err := settleTx(ctx, tx, *s, id); err != nil {
			return model.Account{}, err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return model.Account{}, err
	}
	return acc, nil
}

func settleTx(ctx context.Context, tx pgx.Tx, s model.Settlement, accountID string) (model.FundingRequest, error) {
	args := []any{s.RequestID, string(s.Status), s.DecidedAt.UTC(), s.DecidedBy, s.Note}
	q := `
		UPDATE funding_requests
		SET status = $2, decided_at = $3, decided_by = $4, note = $5
		WHERE id = $1 AND status = 'PENDING'`
	if accountID != "" {
		args = append(args, accountID)
		q += " AND account_id = $6"
	}
	req, err := scanRequest(tx.QueryRow(ctx, q+" RETURNING "+requestColumns, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		var exists bool
		err := tx.QueryRow(ctx, `
			SELECT EXISTS(SELECT 1 FROM funding_requests WHERE id = $1 AND ($2 = '' OR account_id::text = $2))
		`, s.RequestID, accountID).Scan(&exists)
		if err != nil {
			return nil, err
		}
		if !exists {
			return nil, ErrNotFound
		}
		return nil, ErrRequestNotPending
	}
	return req, err
}

func scanRequest(row rowScanner) (model.FundingRequest, error) {
	var h model.RequestHeader
	var kind, status, coin, wallet, address, network string
	var decidedAt *time.Time
	err := row.Scan(&h.ID, &h.AccountID, &kind, &h.Amount, &status, &coin, &wallet, &address, &network,
		&h.CreatedAt, &decidedAt, &h.DecidedBy, &h.Note)
	if err != nil {
		return nil, err
	}
	h.Status = types.RequestStatus(status)
	h.DecidedAt = decidedAt
	switch types.RequestKind(kind) {
	case types.RequestKindDeposit:
		return model.DepositRequest{RequestHeader: h, Coin: coin}, nil
	case types.RequestKindWithdrawal:
		return model.WithdrawalRequest{
			RequestHeader: h,
			Wallet:        types.Wallet(wallet),
			Address:       address,
			Network:       types.Network(network),
		}, nil
	}
	return nil, fmt.Errorf("unknown request kind %q", kind)
}

func (p *Postgres) CreateRequest(ctx context.Context, req model.FundingRequest) error {
	h := req.Header()
	var coin, wallet, address, network *string
	switch v := req.(type) {
	case model.DepositRequest:
		coin = &v.Coin
	case model.WithdrawalRequest:
		w, n := string(v.Wallet), string(v.Network)
		wallet, address, network = &w, &v.Address, &n
	default:
		return fmt.Errorf("unsupported request %T", req)
	}
	_, err := p.pool.Exec(ctx, `
		INSERT INTO funding_requests (id, account_id, kind, amount, status, coin, wallet, address, network, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, h.ID, h.AccountID, string(req.Kind()), h.Amount, string(h.Status), coin, wallet, address, network, h.CreatedAt.UTC())
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	if isForeignKeyViolation(err) {
		return ErrNotFound
	}
	return err
}

func (p *Postgres) GetRequest(ctx context.Context, id string) (model.FundingRequest, error) {
	req, err := scanRequest(p.pool.QueryRow(ctx, "SELECT "+requestColumns+" FROM funding_requests WHERE id = $1", id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return req, err
}

func (p *Postgres) ListRequests(ctx context.Context, f RequestFilter) ([]model.FundingRequest, error) {
	where := make([]string, 0, 3)
	args := make([]any, 0, 4)
	if f.AccountID != "" {
		args = append(args, f.AccountID)
		where = append(where, "account_id = $"+strconv.Itoa(len(args)))
	}
	if f.Kind != "" {
		args = append(args, string(f.Kind))
		where = append(where, "kind = $"+strconv.Itoa(len(args)))
	}
	if f.Status != "" {
		args = append(args, string(f.Status))
		where = append(where, "status = $"+strconv.Itoa(len(args)))
	}
	q := "SELECT " + requestColumns + " FROM funding_requests"
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY created_at DESC, id DESC"
	if f.Limit > 0 {
		args = append(args, f.Limit)
		q += " LIMIT $" + strconv.Itoa(len(args))
	}
	rows, err := p.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]model.FundingRequest, 0)
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, req)
	}
	return out, rows.Err()
}

func (p *Postgres) SettleRequest(ctx context.Context, s model.Settlement) (model.FundingRequest, error) {
	tx, err := p.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)
	req, err := settleTx(ctx, tx, s, "")
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return req, nil
}

func (p *Postgres) Register(ctx context.Context, acc model.Account, passwordHash string) error {
	tx, err := p.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)
	if err := insertAccount(ctx, tx, acc); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, "INSERT INTO account_credentials (account_id, password_hash) VALUES ($1, $2)", acc.ID, passwordHash); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (p *Postgres) Credential(ctx context.Context, email string) (Credential, error) {
	var c Credential
	err := p.pool.QueryRow(ctx, `
		SELECT a.id, a.email, c.password_hash
		FROM accounts a
		JOIN account_credentials c ON c.account_id = a.id
		WHERE a.email = $1
	`, normalizeEmail(email)).Scan(&c.AccountID, &c.Email, &c.PasswordHash)
	if errors.Is(err, pgx.ErrNoRows) {
		return Credential{}, ErrNotFound
	}
	return c, err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23503"
}

func nonNil[T any](v []T) []T {
	if v == nil {
		return []T{}
	}
	return v
}
