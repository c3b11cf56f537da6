package cli

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"nurseconnect-quiz-service/internal/app"
	"nurseconnect-quiz-service/internal/config"
	"nurseconnect-quiz-service/internal/infra/memory"
	mongoarchive "nurseconnect-quiz-service/internal/infra/mongo"
	"nurseconnect-quiz-service/internal/infra/postgres"
	redisstore "nurseconnect-quiz-service/internal/infra/redis"
)

// backends are the storage adapters picked from configuration. A backend that is not
// configured falls back to its in-memory version.
type backends struct {
	matches   app.MatchStore
	tickets   app.TicketStore
	questions app.QuestionSource
	stats     app.StatsRepository
	archive   app.MatchArchive

	closers []func()
}

func (b *backends) Close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		b.closers[i]()
	}
}

func openBackends(ctx context.Context, cfg config.Config) (*backends, error) {
	b := &backends{}
	ok := false
	defer func() {
		if !ok {
			b.Close()
		}
	}()

	var source app.QuestionSource = memory.NewStaticQuestionSource(sampleQuestions())
	b.stats = memory.NewStatsRepository()
	if cfg.Postgres.URL != "" {
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		b.closers = append(b.closers, pool.Close)
		source = postgres.NewQuestionLoader(pool)

		db := openBun(cfg.Postgres.URL)
		b.closers = append(b.closers, func() { _ = db.Close() })
		b.stats = postgres.NewStatsRepository(db)
		log.Printf("postgres: questions and stats enabled")
	}

	cacheTTL := config.TTLDuration(cfg.Quiz.TTL, 10*time.Minute)
	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		b.closers = append(b.closers, func() { _ = client.Close() })
		if err := client.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("ping redis: %w", err)
		}
		retention := config.TTLDuration(cfg.Redis.TTL, 24*time.Hour)
		b.matches = redisstore.NewMatchStore(client, retention)
		b.tickets = redisstore.NewTicketStore(client, retention)
		b.questions = redisstore.NewQuestionCache(client, source, cacheTTL)
		log.Printf("redis: shared match store at %s", cfg.Redis.Addr)
	} else {
		b.matches = memory.NewMatchStore()
		b.tickets = memory.NewTicketStore()
		b.questions = memory.NewQuestionCache(source, cacheTTL)
	}

	b.archive = memory.NewMatchArchive()
	if cfg.Mongo.URI != "" {
		client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.Mongo.URI))
		if err != nil {
			return nil, fmt.Errorf("connect mongo: %w", err)
		}
		b.closers = append(b.closers, func() { _ = client.Disconnect(context.Background()) })
		if err := client.Ping(ctx, nil); err != nil {
			return nil, fmt.Errorf("ping mongo: %w", err)
		}
		archive := mongoarchive.NewMatchArchive(client, cfg.Mongo.Database)
		if err := archive.EnsureIndexes(ctx); err != nil {
			return nil, err
		}
		b.archive = archive
		log.Printf("mongo: match archive in %s", cfg.Mongo.Database)
	}

	ok = true
	return b, nil
}

func openBun(url string) *bun.DB {
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(url)))
	return bun.NewDB(sqldb, pgdialect.New())
}
