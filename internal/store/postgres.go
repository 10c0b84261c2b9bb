package store

import (
	"context"
	"embed"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"cgarena/internal/domain"
)

//go:embed schema_postgres.sql
var postgresSchemaFS embed.FS

// Postgres is the multi-host Store backend, grounded in the teacher's
// server/store/store.go (pgxpool.Pool, explicit transactions for
// multi-statement writes). It is the choice for arenas that run their
// HTTP server and workers as separate processes sharing one database,
// unlike the default single-binary SQLite store.
type Postgres struct {
	pool *pgxpool.Pool
}

func OpenPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &Postgres{pool: pool}, nil
}

func (s *Postgres) Close() { s.pool.Close() }

func (s *Postgres) Migrate(ctx context.Context) error {
	schema, err := postgresSchemaFS.ReadFile("schema_postgres.sql")
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, string(schema))
	return err
}

func (s *Postgres) CreateBot(ctx context.Context, b domain.Bot) (domain.BotId, error) {
	var id int64
	err := s.pool.QueryRow(ctx,
		`INSERT INTO bots(name, source, language, created_at) VALUES ($1, $2, $3, $4) RETURNING id`,
		b.Name.String(), b.Source.String(), b.Language.String(), b.CreatedAt).Scan(&id)
	if err != nil {
		if isPgUniqueViolation(err) {
			return 0, domain.AlreadyExistsf("bot named %q already exists", b.Name)
		}
		return 0, domain.Internal(err, "creating bot")
	}
	return domain.BotId(id), nil
}

func (s *Postgres) DeleteBot(ctx context.Context, id domain.BotId) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return domain.Internal(err, "deleting bot")
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `DELETE FROM bots WHERE id = $1`, int64(id))
	if err != nil {
		return domain.Internal(err, "deleting bot")
	}
	if tag.RowsAffected() == 0 {
		return domain.NotFoundf("bot %d not found", id)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM builds WHERE bot_id = $1`, int64(id)); err != nil {
		return domain.Internal(err, "deleting bot builds")
	}
	return tx.Commit(ctx)
}

func (s *Postgres) RenameBot(ctx context.Context, id domain.BotId, name domain.BotName) error {
	tag, err := s.pool.Exec(ctx, `UPDATE bots SET name = $1 WHERE id = $2`, name.String(), int64(id))
	if err != nil {
		if isPgUniqueViolation(err) {
			return domain.AlreadyExistsf("bot named %q already exists", name)
		}
		return domain.Internal(err, "renaming bot")
	}
	if tag.RowsAffected() == 0 {
		return domain.NotFoundf("bot %d not found", id)
	}
	return nil
}

func (s *Postgres) FetchBots(ctx context.Context) ([]domain.Bot, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, name, source, language, created_at FROM bots ORDER BY id`)
	if err != nil {
		return nil, domain.Internal(err, "fetching bots")
	}
	defer rows.Close()

	var out []domain.Bot
	for rows.Next() {
		b, err := scanPgBot(rows)
		if err != nil {
			return nil, domain.Internal(err, "scanning bot")
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (s *Postgres) FetchBot(ctx context.Context, id domain.BotId) (domain.Bot, bool, error) {
	row := s.pool.QueryRow(ctx, `SELECT id, name, source, language, created_at FROM bots WHERE id = $1`, int64(id))
	b, err := scanPgBot(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Bot{}, false, nil
	}
	if err != nil {
		return domain.Bot{}, false, domain.Internal(err, "fetching bot")
	}
	return b, true, nil
}

type pgRowScanner interface {
	Scan(dest ...any) error
}

func scanPgBot(row pgRowScanner) (domain.Bot, error) {
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

func (s *Postgres) FetchBotBuilds(ctx context.Context, id domain.BotId) ([]domain.Build, error) {
	rows, err := s.pool.Query(ctx, `SELECT bot_id, worker_name, status, stderr FROM builds WHERE bot_id = $1`, int64(id))
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

func (s *Postgres) UpsertBuild(ctx context.Context, b domain.Build) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO builds(bot_id, worker_name, status, stderr) VALUES ($1, $2, $3, $4)
		ON CONFLICT (bot_id, worker_name) DO UPDATE SET status = excluded.status, stderr = excluded.stderr
	`, int64(b.BotId), b.WorkerName.String(), buildStatusName(b.Status), b.Status.Stderr())
	if err != nil {
		return domain.Internal(err, "upserting build")
	}
	return nil
}

func (s *Postgres) CreateMatch(ctx context.Context, m domain.Match) (domain.MatchId, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return 0, domain.Internal(err, "creating match")
	}
	defer tx.Rollback(ctx)

	var id int64
	if err := tx.QueryRow(ctx, `INSERT INTO matches(seed, created_at) VALUES ($1, $2) RETURNING id`,
		m.Seed, time.Now().UTC()).Scan(&id); err != nil {
		return 0, domain.Internal(err, "inserting match")
	}

	for seat, p := range m.Participants {
		if _, err := tx.Exec(ctx,
			`INSERT INTO participants(match_id, bot_id, rank, error, seat) VALUES ($1, $2, $3, $4, $5)`,
			id, int64(p.BotId), p.Rank, p.Error, seat); err != nil {
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
		if _, err := tx.Exec(ctx, `
			INSERT INTO match_attributes(match_id, name, bot_id, turn, value_kind, int_value, float_value, str_value)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`, id, a.Name, botId, turn, kind, intV, floatV, strV); err != nil {
			return 0, domain.Internal(err, "inserting match attribute")
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, domain.Internal(err, "committing match")
	}
	return domain.MatchId(id), nil
}

// FetchMatchesWithAttrs mirrors SQLite's three-query load-then-join
// shape; Postgres gains nothing from a single wide join here since the
// attribute filter is applied in Go either way (spec.md section 4.2).
func (s *Postgres) FetchMatchesWithAttrs(ctx context.Context, needed []domain.AttributeRef) ([]domain.Match, error) {
	matchRows, err := s.pool.Query(ctx, `SELECT id, seed FROM matches ORDER BY id`)
	if err != nil {
		return nil, domain.Internal(err, "fetching matches")
	}
	defer matchRows.Close()

	byId := make(map[int64]*domain.Match)
	var order []int64
	for matchRows.Next() {
		var id, seed int64
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

func (s *Postgres) fillParticipants(ctx context.Context, byId map[int64]*domain.Match) error {
	rows, err := s.pool.Query(ctx, `SELECT match_id, bot_id, rank, error FROM participants ORDER BY match_id, seat`)
	if err != nil {
		return domain.Internal(err, "fetching participants")
	}
	defer rows.Close()
	for rows.Next() {
		var matchId, botId int64
		var rank int
		var errored bool
		if err := rows.Scan(&matchId, &botId, &rank, &errored); err != nil {
			return domain.Internal(err, "scanning participant")
		}
		m, ok := byId[matchId]
		if !ok {
			continue
		}
		m.Participants = append(m.Participants, domain.Participant{
			BotId: domain.BotId(botId),
			Rank:  uint8(rank),
			Error: errored,
		})
	}
	return rows.Err()
}

func (s *Postgres) fillAttributes(ctx context.Context, byId map[int64]*domain.Match, needed []domain.AttributeRef) error {
	rows, err := s.pool.Query(ctx, `
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
		var name, kind string
		var botId, turn, intV *int64
		var floatV *float64
		var strV *string
		if err := rows.Scan(&matchId, &name, &botId, &turn, &kind, &intV, &floatV, &strV); err != nil {
			return domain.Internal(err, "scanning attribute")
		}
		m, ok := byId[matchId]
		if !ok {
			continue
		}

		var botIdPtr *domain.BotId
		if botId != nil {
			id := domain.BotId(*botId)
			botIdPtr = &id
		}
		var turnPtr *uint16
		if turn != nil {
			t := uint16(*turn)
			turnPtr = &t
		}

		if !wantAll && !refNeeded(needed, name, botIdPtr, turnPtr) {
			continue
		}

		var value domain.MatchAttributeValue
		switch kind {
		case "integer":
			if intV != nil {
				value = domain.IntegerValue(*intV)
			}
		case "float":
			if floatV != nil {
				value = domain.FloatValue(*floatV)
			}
		default:
			if strV != nil {
				value = domain.StringValue(*strV)
			}
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

func (s *Postgres) FetchTurnAttributes(ctx context.Context, matchIds []domain.MatchId, attributeName string) ([]domain.MatchAttribute, error) {
	if len(matchIds) == 0 {
		return nil, nil
	}
	ids := make([]int64, len(matchIds))
	for i, id := range matchIds {
		ids[i] = int64(id)
	}
	rows, err := s.pool.Query(ctx, `
		SELECT name, bot_id, turn, value_kind, int_value, float_value, str_value
		FROM match_attributes WHERE name = $1 AND turn IS NOT NULL AND match_id = ANY($2)
	`, attributeName, ids)
	if err != nil {
		return nil, domain.Internal(err, "fetching turn attributes")
	}
	defer rows.Close()

	var out []domain.MatchAttribute
	for rows.Next() {
		var name, kind string
		var botId, turn, intV *int64
		var floatV *float64
		var strV *string
		if err := rows.Scan(&name, &botId, &turn, &kind, &intV, &floatV, &strV); err != nil {
			return nil, domain.Internal(err, "scanning turn attribute")
		}
		var botIdPtr *domain.BotId
		if botId != nil {
			id := domain.BotId(*botId)
			botIdPtr = &id
		}
		var turnPtr *uint16
		if turn != nil {
			t := uint16(*turn)
			turnPtr = &t
		}
		var value domain.MatchAttributeValue
		switch kind {
		case "integer":
			if intV != nil {
				value = domain.IntegerValue(*intV)
			}
		case "float":
			if floatV != nil {
				value = domain.FloatValue(*floatV)
			}
		default:
			if strV != nil {
				value = domain.StringValue(*strV)
			}
		}
		out = append(out, domain.MatchAttribute{Name: name, BotId: botIdPtr, Turn: turnPtr, Value: value})
	}
	return out, rows.Err()
}

func (s *Postgres) CreateLeaderboard(ctx context.Context, id domain.LeaderboardId, name domain.LeaderboardName, filterText string) error {
	_, err := s.pool.Exec(ctx, `INSERT INTO leaderboards(id, name, filter) VALUES ($1, $2, $3)`, int64(id), name.String(), filterText)
	if err != nil {
		return domain.Internal(err, "creating leaderboard")
	}
	return nil
}

func (s *Postgres) PatchLeaderboard(ctx context.Context, id domain.LeaderboardId, name domain.LeaderboardName, filterText string) error {
	tag, err := s.pool.Exec(ctx, `UPDATE leaderboards SET name = $1, filter = $2 WHERE id = $3`, name.String(), filterText, int64(id))
	if err != nil {
		return domain.Internal(err, "patching leaderboard")
	}
	if tag.RowsAffected() == 0 {
		return domain.NotFoundf("leaderboard %d not found", id)
	}
	return nil
}

func (s *Postgres) DeleteLeaderboard(ctx context.Context, id domain.LeaderboardId) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM leaderboards WHERE id = $1`, int64(id))
	if err != nil {
		return domain.Internal(err, "deleting leaderboard")
	}
	return nil
}

func (s *Postgres) FetchLeaderboards(ctx context.Context) ([]PersistedLeaderboard, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, name, filter FROM leaderboards ORDER BY id`)
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

func (s *Postgres) BotStats(ctx context.Context) ([]BotStats, error) {
	rows, err := s.pool.Query(ctx, `
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
		var id, count int64
		if err := rows.Scan(&id, &count); err != nil {
			return nil, domain.Internal(err, "scanning bot stats")
		}
		out = append(out, BotStats{BotId: domain.BotId(id), MatchesPlayed: uint64(count)})
	}
	return out, rows.Err()
}

func isPgUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

var _ Store = (*Postgres)(nil)
