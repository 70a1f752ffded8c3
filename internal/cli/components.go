package cli

import (
	"context"
	"time"

	"challenge-service/internal/app"
	"challenge-service/internal/config"
	"challenge-service/internal/infra/memory"
	pginfra "challenge-service/internal/infra/postgres"
	redisinfra "challenge-service/internal/infra/redis"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// components is the wired set of collaborators shared by the start and sweep commands.
type components struct {
	service *app.ChallengeService
	store   app.ChallengeStore
	hub     *memory.Hub
	// relay is set when events travel through Redis pub/sub.
	relay   *redisinfra.Broadcaster
	closers []func()
}

func (r *components) Close() {
	for i := len(r.closers) - 1; i >= 0; i-- {
		r.closers[i]()
	}
}

// buildRuntime picks Postgres and Redis backed components when configured and
// in-memory ones otherwise.
func buildRuntime(ctx context.Context, cfg config.Config, logger *zap.Logger) (*components, error) {
	rt := &components{hub: memory.NewHub()}

	var (
		bank   app.QuestionBank
		users  app.UserDirectory
		scorer app.Scorer
		badges app.BadgeChecker
	)
	if cfg.Postgres.URL != "" {
		db := openBun(cfg.Postgres.URL)
		rt.closers = append(rt.closers, func() { _ = db.Close() })
		if err := migrateDB(ctx, db, logger); err != nil {
			rt.Close()
			return nil, err
		}
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			rt.Close()
			return nil, err
		}
		rt.closers = append(rt.closers, pool.Close)

		ledger := pginfra.NewLedger(db)
		rt.store = pginfra.NewChallengeStore(db)
		bank = pginfra.NewQuestionBank(pool)
		users = pginfra.NewUserDirectory(pool)
		scorer, badges = ledger, ledger
	} else {
		logger.Warn("postgres not configured, using in-memory storage and sample questions")
		ledger := memory.NewLedger()
		rt.store = memory.NewChallengeStore()
		bank = memory.NewStaticQuestionBank(sampleQuestions())
		users = memory.NewUserDirectory(sampleUsers()...)
		scorer, badges = ledger, ledger
	}

	cacheTTL := config.TTLDuration(cfg.Questions.CacheTTL, 10*time.Minute)
	var broadcaster app.Broadcaster = rt.hub
	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		rt.closers = append(rt.closers, func() { _ = client.Close() })
		if err := client.Ping(ctx).Err(); err != nil {
			rt.Close()
			return nil, err
		}
		bank = redisinfra.NewAnswerCache(client, bank, cacheTTL)
		rt.relay = redisinfra.NewBroadcaster(client, logger)
		broadcaster = rt.relay
	} else {
		bank = memory.NewCachedQuestionBank(bank, cacheTTL)
	}

	rt.service = app.NewChallengeService(app.Deps{
		Store:       rt.store,
		Questions:   bank,
		Users:       users,
		Broadcaster: broadcaster,
		Scorer:      scorer,
		Badges:      badges,
	}, app.Options{
		Types:  cfg.Types(),
		Points: cfg.Scoring,
		Logger: logger,
	})
	return rt, nil
}

func sweepPolicy(cfg config.Config) app.SweepPolicy {
	return app.SweepPolicy{
		InviteTTL:      config.TTLDuration(cfg.Expiry.InviteTTL, 24*time.Hour),
		MatchmakingTTL: config.TTLDuration(cfg.Expiry.MatchmakingTTL, 10*time.Minute),
		StuckAfter:     config.TTLDuration(cfg.Expiry.StuckAfter, 2*time.Hour),
	}
}

// sampleQuestions seeds the in-memory bank for local runs.
func sampleQuestions() []memory.Question {
	return []memory.Question{
		{ID: "g1", Topic: "grammar", Section: "tenses", CorrectChoice: "b", Active: true},
		{ID: "g2", Topic: "grammar", Section: "tenses", CorrectChoice: "a", Active: true},
		{ID: "g3", Topic: "grammar", Section: "articles", CorrectChoice: "c", Active: true},
		{ID: "g4", Topic: "grammar", Section: "prepositions", CorrectChoice: "d", Active: true},
		{ID: "v1", Topic: "vocabulary", Section: "travel", CorrectChoice: "a", Active: true},
		{ID: "v2", Topic: "vocabulary", Section: "travel", CorrectChoice: "c", Active: true},
		{ID: "v3", Topic: "vocabulary", Section: "work", CorrectChoice: "b", Active: true},
		{ID: "v4", Topic: "vocabulary", Section: "work", CorrectChoice: "b", Active: true},
		{ID: "p1", Topic: "pronunciation", Section: "vowels", CorrectChoice: "a", Active: true},
		{ID: "p2", Topic: "pronunciation", Section: "stress", CorrectChoice: "d", Active: true},
		{ID: "x1", Topic: "grammar", Section: "tenses", CorrectChoice: "a", Active: false},
	}
}

func sampleUsers() []string {
	return []string{"alice", "bob", "carol", "dave"}
}
