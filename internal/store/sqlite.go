package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"cgarena/internal/domain"
)

//go:embed schema.sql
var schemaFS embed.FS

// SQLite is the default self-hosted Store backend, using the pure-Go
// modernc.org/sqlite driver so the whole arena ships as one binary
// with no cgo dependency, the same "single store file under the arena
// directory" spec.md section 6 calls for.
type SQLite struct {
	db *sql.DB
}

func OpenSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1) // SQLite: single writer, matching the actor's single-owner model
	return &SQLite{db: db}, nil
}

func (s *SQLite) Close() error { return s.db.Close() }

func (s *SQLite) Migrate(ctx context.Context) error {
	schema, err := schemaFS.ReadFile("schema.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(schema))
	return err
}

func (s *SQLite) CreateBot(ctx context.Context, b domain.Bot) (domain.BotId, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO bots(name, source, language, created_at) VALUES (?, ?, ?, ?)`,
		b.Name.String(), b.Source.String(), b.Language.String(), b.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, domain.AlreadyExistsf("bot named %q already exists", b.Name)
		}
		return 0, domain.Internal(err, "creating bot")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, domain.Internal(err, "reading inserted bot id")
	}
	return domain.BotId(id), nil
}

func (s *SQLite) DeleteBot(ctx context.Context, id domain.BotId) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Internal(err, "deleting bot")
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `DELETE FROM bots WHERE id = ?`, int64(id))
	if err != nil {
		return domain.Internal(err, "deleting bot")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return domain.Internal(err, "deleting bot")
	}
	if n == 0 {
		return domain.NotFoundf("bot %d not found", id)
	}
	// Cascading delete: the Store owns cascade semantics per spec.md's
	// redesign-flags resolution (delete routes through the Store, not a
	// soft "marked deleted" bot row).
	if _, err := tx.ExecContext(ctx, `DELETE FROM builds WHERE bot_id = ?`, int64(id)); err != nil {
		return domain.Internal(err, "deleting bot builds")
	}
	return tx.Commit()
}

func (s *SQLite) RenameBot(ctx context.Context, id domain.BotId, name domain.BotName) error {
	res, err := s.db.ExecContext(ctx, `UPDATE bots SET name = ? WHERE id = ?`, name.String(), int64(id))
	if err != nil {
		if isUniqueViolation(err) {
			return domain.AlreadyExistsf("bot named %q already exists", name)
		}
		return domain.Internal(err, "renaming bot")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return domain.Internal(err, "renaming bot")
	}
	if n == 0 {
		return domain.NotFoundf("bot %d not found", id)
	}
	return nil
}

func (s *SQLite) FetchBots(ctx context.Context) ([]domain.Bot, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, source, language, created_at FROM bots ORDER BY id`)
	if err != nil {
		return nil, domain.Internal(err, "fetching bots")
	}
	defer rows.Close()

	var out []domain.Bot
	for rows.Next() {
		b, err := scanBot(rows)
		if err != nil {
			return nil, domain.Internal(err, "scanning bot")
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (s *SQLite) FetchBot(ctx context.Context, id domain.BotId) (domain.Bot, bool, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, name, source, language, created_at FROM bots WHERE id = ?`, int64(id))
	b, err := scanBot(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Bot{}, false, nil
	}
	if err != nil {
		return domain.Bot{}, false, domain.Internal(err, "fetching bot")
	}
	return b, true, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBot(row rowScanner) (domain.Bot, error) {
	var (
		id        int64
		name      string
		source    string
		language  string
		createdAt time.Time
	)
	if err := row.Scan(&id, &name, &source, &language, &createdAt); err != nil {
		return domain.Bot{}, err
	}
	botName, _ := domain.NewBotName(name)
	srcCode, _ := domain.NewSourceCode(source)
	lang, _ := domain.NewLanguage(language)
	return domain.Bot{Id: domain.BotId(id), Name: botName, Source: srcCode, Language: lang, CreatedAt: createdAt}, nil
}

func (s *SQLite) FetchBotBuilds(ctx context.Context, id domain.BotId) ([]domain.Build, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT bot_id, worker_name, status, stderr FROM builds WHERE bot_id = ?`, int64(id))
	if err != nil {
		return nil, domain.Internal(err, "fetching builds")
	}
	defer rows.Close()

	var out []domain.Build
	for rows.Next() {
		var botId int64
		var workerName, statusText, stderr string
		if err := rows.Scan(&botId, &workerName, &statusText, &stderr); err != nil {
			return nil, domain.Internal(err, "scanning build")
		}
		worker, _ := domain.NewWorkerName(workerName)
		out = append(out, domain.Build{
			BotId:      domain.BotId(botId),
			WorkerName: worker,
			Status:     buildStatusFromRow(statusText, stderr),
		})
	}
	return out, rows.Err()
}

func buildStatusFromRow(status, stderr string) domain.BuildStatus {
	switch status {
	case "pending":
		return domain.PendingStatus()
	case "running":
		return domain.PendingStatus().IntoRunning()
	case "success":
		return domain.PendingStatus().IntoRunning().IntoSuccess()
	case "failure":
		return domain.PendingStatus().IntoRunning().IntoFailure(stderr)
	default:
		return domain.PendingStatus()
	}
}

func (s *SQLite) UpsertBuild(ctx context.Context, b domain.Build) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO builds(bot_id, worker_name, status, stderr) VALUES (?, ?, ?, ?)
		ON CONFLICT(bot_id, worker_name) DO UPDATE SET status = excluded.status, stderr = excluded.stderr
	`, int64(b.BotId), b.WorkerName.String(), buildStatusName(b.Status), b.Status.Stderr())
	if err != nil {
		return domain.Internal(err, "upserting build")
	}
	return nil
}

func buildStatusName(s domain.BuildStatus) string {
	switch {
	case s.IsPending():
		return "pending"
	case s.IsRunning():
		return "running"
	case s.IsSuccess():
		return "success"
	case s.IsFailure():
		return "failure"
	default:
		return "pending"
	}
}

func (s *SQLite) CreateMatch(ctx context.Context, m domain.Match) (domain.MatchId, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, domain.Internal(err, "creating match")
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `INSERT INTO matches(seed, created_at) VALUES (?, ?)`, m.Seed, time.Now().UTC())
	if err != nil {
		return 0, domain.Internal(err, "inserting match")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, domain.Internal(err, "reading inserted match id")
	}

	for seat, p := range m.Participants {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO participants(match_id, bot_id, rank, error, seat) VALUES (?, ?, ?, ?, ?)`,
			id, int64(p.BotId), p.Rank, boolToInt(p.Error), seat); err != nil {
			return 0, domain.Internal(err, "inserting participant")
		}
	}

	for _, a := range m.Attributes {
		var botId any
		if a.BotId != nil {
			botId = int64(*a.BotId)
		}
		var turn any
		if a.Turn != nil {
			turn = int64(*a.Turn)
		}
		kind, intV, floatV, strV := attributeValueColumns(a.Value)
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO match_attributes(match_id, name, bot_id, turn, value_kind, int_value, float_value, str_value)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`, id, a.Name, botId, turn, kind, intV, floatV, strV); err != nil {
			return 0, domain.Internal(err, "inserting match attribute")
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, domain.Internal(err, "committing match")
	}
	return domain.MatchId(id), nil
}

func attributeValueColumns(v domain.MatchAttributeValue) (kind string, intV, floatV, strV any) {
	if i, ok := v.AsInteger(); ok {
		return "integer", i, nil, nil
	}
	if v.IsFloat() {
		f, _ := v.AsFloat()
		return "float", nil, f, nil
	}
	s, _ := v.AsString()
	return "string", nil, nil, s
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// FetchMatchesWithAttrs loads every match along with only the
// attributes named by `needed`, matching the Store contract's role of
// prefetching just what a filter's NeededAttributes() asks for
// (spec.md section 4.2). needed=nil loads every attribute (e.g. the
// Global leaderboard's accept_all filter).
func (s *SQLite) FetchMatchesWithAttrs(ctx context.Context, needed []domain.AttributeRef) ([]domain.Match, error) {
	matchRows, err := s.db.QueryContext(ctx, `SELECT id, seed FROM matches ORDER BY id`)
	if err != nil {
		return nil, domain.Internal(err, "fetching matches")
	}
	defer matchRows.Close()

	byId := make(map[int64]*domain.Match)
	var order []int64
	for matchRows.Next() {
		var id int64
		var seed int64
		if err := matchRows.Scan(&id, &seed); err != nil {
			return nil, domain.Internal(err, "scanning match")
		}
		m := domain.NewMatch(seed, nil, nil)
		m.Id = domain.MatchId(id)
		byId[id] = &m
		order = append(order, id)
	}
	if err := matchRows.Err(); err != nil {
		return nil, domain.Internal(err, "iterating matches")
	}

	if err := s.fillParticipants(ctx, byId); err != nil {
		return nil, err
	}
	if err := s.fillAttributes(ctx, byId, needed); err != nil {
		return nil, err
	}

	out := make([]domain.Match, 0, len(order))
	for _, id := range order {
		out = append(out, *byId[id])
	}
	return out, nil
}

func (s *SQLite) fillParticipants(ctx context.Context, byId map[int64]*domain.Match) error {
	rows, err := s.db.QueryContext(ctx, `SELECT match_id, bot_id, rank, error FROM participants ORDER BY match_id, seat`)
	if err != nil {
		return domain.Internal(err, "fetching participants")
	}
	defer rows.Close()
	for rows.Next() {
		var matchId, botId int64
		var rank int
		var errInt int
		if err := rows.Scan(&matchId, &botId, &rank, &errInt); err != nil {
			return domain.Internal(err, "scanning participant")
		}
		m, ok := byId[matchId]
		if !ok {
			continue
		}
		m.Participants = append(m.Participants, domain.Participant{
			BotId: domain.BotId(botId),
			Rank:  uint8(rank),
			Error: errInt != 0,
		})
	}
	return rows.Err()
}

func (s *SQLite) fillAttributes(ctx context.Context, byId map[int64]*domain.Match, needed []domain.AttributeRef) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT match_id, name, bot_id, turn, value_kind, int_value, float_value, str_value
		FROM match_attributes ORDER BY match_id
	`)
	if err != nil {
		return domain.Internal(err, "fetching attributes")
	}
	defer rows.Close()

	wantAll := len(needed) == 0
	for rows.Next() {
		var matchId int64
		var name string
		var botId, turn sql.NullInt64
		var kind string
		var intV sql.NullInt64
		var floatV sql.NullFloat64
		var strV sql.NullString
		if err := rows.Scan(&matchId, &name, &botId, &turn, &kind, &intV, &floatV, &strV); err != nil {
			return domain.Internal(err, "scanning attribute")
		}
		m, ok := byId[matchId]
		if !ok {
			continue
		}

		var botIdPtr *domain.BotId
		if botId.Valid {
			id := domain.BotId(botId.Int64)
			botIdPtr = &id
		}
		var turnPtr *uint16
		if turn.Valid {
			t := uint16(turn.Int64)
			turnPtr = &t
		}

		if !wantAll && !refNeeded(needed, name, botIdPtr, turnPtr) {
			continue
		}

		var value domain.MatchAttributeValue
		switch kind {
		case "integer":
			value = domain.IntegerValue(intV.Int64)
		case "float":
			value = domain.FloatValue(floatV.Float64)
		default:
			value = domain.StringValue(strV.String)
		}

		m.Attributes = append(m.Attributes, domain.MatchAttribute{
			Name:  name,
			BotId: botIdPtr,
			Turn:  turnPtr,
			Value: value,
		})
	}
	return rows.Err()
}

func refNeeded(needed []domain.AttributeRef, name string, botId *domain.BotId, turn *uint16) bool {
	for _, ref := range needed {
		if ref.Name != name {
			continue
		}
		if (ref.BotId == nil) != (botId == nil) {
			continue
		}
		if ref.BotId != nil && *ref.BotId != *botId {
			continue
		}
		if (ref.Turn == nil) != (turn == nil) {
			continue
		}
		if ref.Turn != nil && *ref.Turn != *turn {
			continue
		}
		return true
	}
	return false
}

func (s *SQLite) FetchTurnAttributes(ctx context.Context, matchIds []domain.MatchId, attributeName string) ([]domain.MatchAttribute, error) {
	if len(matchIds) == 0 {
		return nil, nil
	}
	query := `SELECT name, bot_id, turn, value_kind, int_value, float_value, str_value
		FROM match_attributes WHERE name = ? AND turn IS NOT NULL AND match_id IN (`
	args := []any{attributeName}
	for i, id := range matchIds {
		if i > 0 {
			query += ","
		}
		query += "?"
		args = append(args, int64(id))
	}
	query += ")"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, domain.Internal(err, "fetching turn attributes")
	}
	defer rows.Close()

	var out []domain.MatchAttribute
	for rows.Next() {
		var name string
		var botId, turn sql.NullInt64
		var kind string
		var intV sql.NullInt64
		var floatV sql.NullFloat64
		var strV sql.NullString
		if err := rows.Scan(&name, &botId, &turn, &kind, &intV, &floatV, &strV); err != nil {
			return nil, domain.Internal(err, "scanning turn attribute")
		}
		var botIdPtr *domain.BotId
		if botId.Valid {
			id := domain.BotId(botId.Int64)
			botIdPtr = &id
		}
		var turnPtr *uint16
		if turn.Valid {
			t := uint16(turn.Int64)
			turnPtr = &t
		}
		var value domain.MatchAttributeValue
		switch kind {
		case "integer":
			value = domain.IntegerValue(intV.Int64)
		case "float":
			value = domain.FloatValue(floatV.Float64)
		default:
			value = domain.StringValue(strV.String)
		}
		out = append(out, domain.MatchAttribute{Name: name, BotId: botIdPtr, Turn: turnPtr, Value: value})
	}
	return out, rows.Err()
}

func (s *SQLite) CreateLeaderboard(ctx context.Context, id domain.LeaderboardId, name domain.LeaderboardName, filterText string) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO leaderboards(id, name, filter) VALUES (?, ?, ?)`, int64(id), name.String(), filterText)
	if err != nil {
		return domain.Internal(err, "creating leaderboard")
	}
	return nil
}

func (s *SQLite) PatchLeaderboard(ctx context.Context, id domain.LeaderboardId, name domain.LeaderboardName, filterText string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE leaderboards SET name = ?, filter = ? WHERE id = ?`, name.String(), filterText, int64(id))
	if err != nil {
		return domain.Internal(err, "patching leaderboard")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return domain.Internal(err, "patching leaderboard")
	}
	if n == 0 {
		return domain.NotFoundf("leaderboard %d not found", id)
	}
	return nil
}

func (s *SQLite) DeleteLeaderboard(ctx context.Context, id domain.LeaderboardId) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM leaderboards WHERE id = ?`, int64(id))
	if err != nil {
		return domain.Internal(err, "deleting leaderboard")
	}
	return nil
}

func (s *SQLite) FetchLeaderboards(ctx context.Context) ([]PersistedLeaderboard, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, filter FROM leaderboards ORDER BY id`)
	if err != nil {
		return nil, domain.Internal(err, "fetching leaderboards")
	}
	defer rows.Close()

	var out []PersistedLeaderboard
	for rows.Next() {
		var id int64
		var name, filterText string
		if err := rows.Scan(&id, &name, &filterText); err != nil {
			return nil, domain.Internal(err, "scanning leaderboard")
		}
		lbName, _ := domain.NewLeaderboardName(name)
		out = append(out, PersistedLeaderboard{Id: domain.LeaderboardId(id), Name: lbName, FilterText: filterText})
	}
	return out, rows.Err()
}

func (s *SQLite) BotStats(ctx context.Context) ([]BotStats, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT b.id, COUNT(p.match_id)
		FROM bots b
		LEFT JOIN participants p ON p.bot_id = b.id
		GROUP BY b.id
	`)
	if err != nil {
		return nil, domain.Internal(err, "fetching bot stats")
	}
	defer rows.Close()

	var out []BotStats
	for rows.Next() {
		var id int64
		var count int64
		if err := rows.Scan(&id, &count); err != nil {
			return nil, domain.Internal(err, "scanning bot stats")
		}
		out = append(out, BotStats{BotId: domain.BotId(id), MatchesPlayed: uint64(count)})
	}
	return out, rows.Err()
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "unique")
}

var _ Store = (*SQLite)(nil)
