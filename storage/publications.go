package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/LucasAro/JuscashCase/domain"
)

// publicationColumns keeps SELECT and RETURNING in the same scan order.
const publicationColumns = `id, COALESCE(status, 'new'), COALESCE(processo, ''), COALESCE(autores, ''),
COALESCE(reu, ''), COALESCE(advogados, ''),
CAST(valor_principal_bruto_liquido AS TEXT), CAST(valor_juros_moratorios AS TEXT),
CAST(valor_honorarios_advocaticios AS TEXT), data_disponibilizacao,
COALESCE(arquivo, ''), COALESCE(paragrafo, ''), created_at, updated_at`

func scanPublication(row rowScanner) (domain.Publication, error) {
	var (
		p                domain.Publication
		status           string
		published        timeValue
		created, updated timeValue
	)
	if err := row.Scan(
		&p.ID,
		&status,
		&p.CaseNumber,
		&p.Claimants,
		&p.Respondent,
		&p.Counsel,
		&p.PrincipalAmount,
		&p.InterestAmount,
		&p.AttorneyFeesAmount,
		&published,
		&p.SourceFile,
		&p.Body,
		&created,
		&updated,
	); err != nil {
		return domain.Publication{}, err
	}

	st, err := domain.ParseStatus(status)
	if err != nil {
		return domain.Publication{}, fmt.Errorf("record %d: %w", p.ID, err)
	}
	p.Status = st
	if published.Valid {
		d := domain.DateOf(published.Time)
		p.PublicationDate = &d
	}
	p.CreatedAt = created.Time.UTC()
	p.UpdatedAt = updated.Time.UTC()
	return p, nil
}

// where accumulates SQL conditions and their positional arguments.
type where struct {
	d       dialect
	clauses []string
	args    []any
}

func (w *where) arg(v any) string {
	w.args = append(w.args, v)
	return w.d.placeholder(len(w.args))
}

func (w *where) add(clause string) {
	w.clauses = append(w.clauses, clause)
}

func (w *where) status(s domain.Status) {
	values := s.StoredValues()
	ph := make([]string, len(values))
	for i, v := range values {
		ph[i] = w.arg(v)
	}
	w.add("COALESCE(status, 'new') IN (" + strings.Join(ph, ", ") + ")")
}

func (w *where) contains(term string, columns ...string) {
	pattern := "%" + escapeLike(term) + "%"
	parts := make([]string, len(columns))
	for i, col := range columns {
		parts[i] = fmt.Sprintf(`%s %s %s ESCAPE '\'`, col, w.d.like, w.arg(pattern))
	}
	w.add("(" + strings.Join(parts, " OR ") + ")")
}

func (w *where) filter(f domain.Filter) {
	if f.Search != "" {
		w.contains(f.Search, "processo", "autores", "advogados", "reu")
	}
	if f.DateFrom != nil {
		w.add("data_disponibilizacao >= " + w.arg(w.d.dateArg(*f.DateFrom)))
	}
	if f.DateTo != nil {
		w.add("data_disponibilizacao <= " + w.arg(w.d.dateArg(*f.DateTo)))
	}
}

func (w *where) String() string {
	if len(w.clauses) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.clauses, " AND ")
}

const orderByRecency = " ORDER BY updated_at DESC, id DESC"

func (w *where) page(limit, offset int) string {
	return orderByRecency + " LIMIT " + w.arg(limit) + " OFFSET " + w.arg(offset)
}

// FetchPage returns one bucket per status, each bucket holding the total
// matching count and the page selected by the cursor offset for that status.
func (s *Store) FetchPage(ctx context.Context, f domain.Filter, c domain.Cursor) (domain.Page, error) {
	const op = "storage.FetchPage"

	f = f.Normalize()
	limit := c.Limit
	if limit <= 0 {
		limit = DefaultPageSize
	}

	buckets := make([]domain.Bucket, len(domain.Statuses))
	g, gctx := errgroup.WithContext(ctx)
	for i, st := range domain.Statuses {
		g.Go(func() error {
			b, err := s.fetchBucket(gctx, f, st, limit, c.Offset(st))
			if err != nil {
				return fmt.Errorf("%s: %s: %w", op, st, err)
			}
			buckets[i] = b
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	page := make(domain.Page, len(domain.Statuses))
	for i, st := range domain.Statuses {
		page[st] = buckets[i]
	}
	return page, nil
}

func (s *Store) fetchBucket(ctx context.Context, f domain.Filter, st domain.Status, limit, offset int) (domain.Bucket, error) {
	w := &where{d: s.dialect}
	w.status(st)
	w.filter(f)

	var total int64
	if err := s.db.queryRow(ctx, "SELECT COUNT(*) FROM documentos"+w.String(), w.args...).Scan(&total); err != nil {
		return domain.Bucket{}, err
	}

	records := []domain.Publication{}
	if int64(offset) < total {
		q := "SELECT " + publicationColumns + " FROM documentos" + w.String()
		q += w.page(limit, offset)
		var err error
		records, err = s.list(ctx, s.db, q, w.args...)
		if err != nil {
			return domain.Bucket{}, err
		}
	}
	return domain.Bucket{Total: int(total), Records: records}, nil
}

func (s *Store) list(ctx context.Context, q queryer, sql string, args ...any) ([]domain.Publication, error) {
	rows, closeRows, err := q.query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer closeRows()

	out := []domain.Publication{}
	for rows.Next() {
		p, err := scanPublication(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// FetchByID returns one publication.
func (s *Store) FetchByID(ctx context.Context, id int64) (domain.Publication, error) {
	const op = "storage.FetchByID"

	q := "SELECT " + publicationColumns + " FROM documentos WHERE id = " + s.dialect.placeholder(1)
	p, err := scanPublication(s.db.queryRow(ctx, q, id))
	if err != nil {
		if isNoRows(err) {
			return domain.Publication{}, fmt.Errorf("%s: %w", op, domain.ErrNotFound)
		}
		return domain.Publication{}, fmt.Errorf("%s: %w", op, err)
	}
	return p, nil
}

// UpdateStatus moves a publication to a new status and bumps updated_at.
// It returns the stored record and the status it had before. Setting the
// current status again is a no-op; any other change must satisfy
// domain.IsValidMove.
func (s *Store) UpdateStatus(ctx context.Context, id int64, to domain.Status) (domain.Publication, domain.Status, error) {
	const op = "storage.UpdateStatus"

	if !to.Valid() {
		return domain.Publication{}, "", fmt.Errorf("%s: %w: %q", op, domain.ErrInvalidStatus, to)
	}

	tx, err := s.db.begin(ctx)
	if err != nil {
		return domain.Publication{}, "", fmt.Errorf("%s: %w", op, err)
	}
	defer func() { _ = tx.rollback(ctx) }()

	d := s.dialect
	q := "SELECT " + publicationColumns + " FROM documentos WHERE id = " + d.placeholder(1) + d.forUpdate
	current, err := scanPublication(tx.queryRow(ctx, q, id))
	if err != nil {
		if isNoRows(err) {
			return domain.Publication{}, "", fmt.Errorf("%s: %w", op, domain.ErrNotFound)
		}
		return domain.Publication{}, "", fmt.Errorf("%s: %w", op, err)
	}

	from := current.Status
	if from == to {
		if err := tx.commit(ctx); err != nil {
			return domain.Publication{}, "", fmt.Errorf("%s: %w", op, err)
		}
		return current, from, nil
	}
	if err := domain.CheckMove(from, to); err != nil {
		return domain.Publication{}, from, fmt.Errorf("%s: %w", op, err)
	}

	q = fmt.Sprintf("UPDATE documentos SET status = %s, updated_at = %s WHERE id = %s RETURNING %s",
		d.placeholder(1), d.placeholder(2), d.placeholder(3), publicationColumns)
	updated, err := scanPublication(tx.queryRow(ctx, q, string(to), d.timeArg(time.Now()), id))
	if err != nil {
		return domain.Publication{}, from, fmt.Errorf("%s: %w", op, err)
	}
	if err := tx.commit(ctx); err != nil {
		return domain.Publication{}, from, fmt.Errorf("%s: %w", op, err)
	}
	s.log.WithFields(log.Fields{"id": id, "from": from, "to": to}).Debug("publication status updated")
	return updated, from, nil
}

// Search runs the flat lookup. Case number, date and status match exactly;
// party is a case-insensitive substring over claimants, counsel and respondent.
func (s *Store) Search(ctx context.Context, sq domain.SearchQuery) ([]domain.Publication, error) {
	const op = "storage.Search"

	w := &where{d: s.dialect}
	if v := strings.TrimSpace(sq.CaseNumber); v != "" {
		w.add("processo = " + w.arg(v))
	}
	if sq.Date != nil {
		w.add("data_disponibilizacao = " + w.arg(s.dialect.dateArg(*sq.Date)))
	}
	if sq.Status != nil {
		w.status(*sq.Status)
	}
	if v := strings.TrimSpace(sq.Party); v != "" {
		w.contains(v, "autores", "advogados", "reu")
	}

	q := "SELECT " + publicationColumns + " FROM documentos" + w.String() + w.page(MaxSearchResults, 0)
	out, err := s.list(ctx, s.db, q, w.args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return out, nil
}

// InsertPublication stores a new publication. A zero status is stored as new.
func (s *Store) InsertPublication(ctx context.Context, p domain.Publication) (domain.Publication, error) {
	const op = "storage.InsertPublication"

	if p.Status == "" {
		p.Status = domain.StatusNew
	}
	if !p.Status.Valid() {
		return domain.Publication{}, fmt.Errorf("%s: %w: %q", op, domain.ErrInvalidStatus, p.Status)
	}
	now := time.Now()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = p.CreatedAt
	}

	d := s.dialect
	var published any
	if p.PublicationDate != nil {
		published = d.dateArg(*p.PublicationDate)
	}
	args := []any{
		p.SourceFile, published, p.CaseNumber, p.Claimants, p.Counsel,
		p.PrincipalAmount, p.InterestAmount, p.AttorneyFeesAmount,
		p.Body, p.Respondent, string(p.Status), d.timeArg(p.CreatedAt), d.timeArg(p.UpdatedAt),
	}
	ph := make([]string, len(args))
	for i := range args {
		ph[i] = d.placeholder(i + 1)
	}
	for i := 5; i <= 7; i++ {
		ph[i] = "CAST(CAST(" + ph[i] + " AS TEXT) AS NUMERIC)"
	}

	q := `INSERT INTO documentos (arquivo, data_disponibilizacao, processo, autores, advogados,
valor_principal_bruto_liquido, valor_juros_moratorios, valor_honorarios_advocaticios,
paragrafo, reu, status, created_at, updated_at)
VALUES (` + strings.Join(ph, ", ") + `) RETURNING ` + publicationColumns

	out, err := scanPublication(s.db.queryRow(ctx, q, args...))
	if err != nil {
		return domain.Publication{}, fmt.Errorf("%s: %w", op, err)
	}
	return out, nil
}
