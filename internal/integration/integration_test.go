package integration

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"challenge-service/internal/app"
	"challenge-service/internal/domain"
	"challenge-service/internal/infra/memory"
	pginfra "challenge-service/internal/infra/postgres"
	pgmigrations "challenge-service/internal/infra/postgres/migrations"
	infraredis "challenge-service/internal/infra/redis"
	"github.com/jackc/pgx/v4/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/migrate"
)

var answerKey = map[string]string{"q1": "a", "q2": "b", "q3": "c", "q4": "d", "q5": "a"}

type stack struct {
	service *app.ChallengeService
	store   *pginfra.ChallengeStore
	ledger  *pginfra.Ledger
	hub     *memory.Hub
}

func newStack(t *testing.T, ctx context.Context) *stack {
	t.Helper()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	t.Cleanup(pgCleanup)
	redisURL, redisCleanup := startRedis(t, ctx)
	t.Cleanup(redisCleanup)

	db := migrateAndSeed(t, ctx, pgURL)
	t.Cleanup(func() { _ = db.Close() })

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	t.Cleanup(pool.Close)

	redisClient, err := redisClientFromURL(redisURL)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}
	t.Cleanup(func() { _ = redisClient.Close() })

	hub := memory.NewHub()
	broadcaster := infraredis.NewBroadcaster(redisClient, nil)
	relayCtx, cancel := context.WithCancel(ctx)
	t.Cleanup(cancel)
	ready := make(chan struct{})
	go func() { _ = broadcaster.Relay(relayCtx, hub, func() { close(ready) }) }()
	select {
	case <-ready:
	case <-time.After(10 * time.Second):
		t.Fatalf("relay did not subscribe")
	}

	store := pginfra.NewChallengeStore(db)
	ledger := pginfra.NewLedger(db)
	service := app.NewChallengeService(app.Deps{
		Store:       store,
		Questions:   infraredis.NewAnswerCache(redisClient, pginfra.NewQuestionBank(pool), 5*time.Minute),
		Users:       pginfra.NewUserDirectory(pool),
		Broadcaster: broadcaster,
		Scorer:      ledger,
		Badges:      ledger,
	}, app.Options{
		Types:  map[string]domain.ChallengeConfig{"quick": {NumQuestions: 4, Topics: []string{"grammar"}}},
		Points: domain.PointsPolicy{Participation: 10, WinBonus: 20},
	})
	return &stack{service: service, store: store, ledger: ledger, hub: hub}
}

func TestChallengeEndToEnd(t *testing.T) {
	ctx := context.Background()
	s := newStack(t, ctx)

	created, err := s.service.Create(ctx, app.CreateRequest{ChallengerID: "alice", OpponentID: "bob", Type: "quick"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	ch := created.View.Challenge
	if len(ch.QuestionIDs) != 4 {
		t.Fatalf("expected 4 grammar questions, got %v", ch.QuestionIDs)
	}
	events, unsubscribe := s.hub.Subscribe(domain.ChallengeGroup(ch.ID))
	defer unsubscribe()

	if _, err := s.service.Accept(ctx, ch.ID, "bob"); err != nil {
		t.Fatalf("accept: %v", err)
	}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		started int
	)
	for _, user := range []string{"alice", "bob", "alice", "bob"} {
		wg.Add(1)
		go func(user string) {
			defer wg.Done()
			res, err := s.service.Ready(ctx, ch.ID, user)
			if err != nil {
				t.Errorf("ready %s: %v", user, err)
				return
			}
			if res.Started {
				mu.Lock()
				started++
				mu.Unlock()
			}
		}(user)
	}
	wg.Wait()
	if started != 1 {
		t.Fatalf("expected exactly one start, got %d", started)
	}

	for _, user := range []string{"alice", "bob"} {
		wg.Add(1)
		go func(user string) {
			defer wg.Done()
			for _, q := range ch.QuestionIDs {
				choice := answerKey[q]
				if user == "bob" && q == ch.QuestionIDs[0] {
					choice = "z"
				}
				if _, err := s.service.SubmitAnswer(ctx, ch.ID, user, q, choice); err != nil {
					t.Errorf("answer %s/%s: %v", user, q, err)
				}
			}
		}(user)
	}
	wg.Wait()

	if _, err := s.service.SubmitAnswer(ctx, ch.ID, "alice", ch.QuestionIDs[0], "a"); err == nil {
		t.Fatalf("expected answer after completion to fail")
	}

	view, err := s.service.Get(ctx, ch.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if view.Challenge.Status != domain.StatusCompleted || view.Challenge.WinnerID != "alice" {
		t.Fatalf("expected alice to win, got %+v", view.Challenge)
	}
	for _, a := range view.Attempts {
		if a.Answered != 4 || a.EndTime == nil {
			t.Fatalf("unexpected attempt %+v", a)
		}
	}

	aliceTotal, err := s.ledger.Total(ctx, "alice")
	if err != nil {
		t.Fatalf("total: %v", err)
	}
	bobTotal, err := s.ledger.Total(ctx, "bob")
	if err != nil {
		t.Fatalf("total: %v", err)
	}
	if aliceTotal != 30 || bobTotal != 10 {
		t.Fatalf("expected 30/10 points, got %d/%d", aliceTotal, bobTotal)
	}

	deadline := time.After(5 * time.Second)
	for {
		select {
		case env := <-events:
			if env.Type == domain.EventChallengeEnd {
				return
			}
		case <-deadline:
			t.Fatalf("challenge.end was not relayed")
		}
	}
}

func TestMatchmakingAndExpiry(t *testing.T) {
	ctx := context.Background()
	s := newStack(t, ctx)

	res, err := s.service.Create(ctx, app.CreateRequest{ChallengerID: "alice", Type: "quick"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if res.Searching || res.View.Challenge.OpponentID == "" || res.View.Challenge.OpponentID == "alice" {
		t.Fatalf("expected an active opponent, got %+v", res.View.Challenge)
	}
	if res.View.Challenge.OpponentID == "zed" {
		t.Fatalf("inactive user matched")
	}

	invite, err := s.service.Create(ctx, app.CreateRequest{ChallengerID: "alice", OpponentID: "bob", Type: "quick"})
	if err != nil {
		t.Fatalf("create invite: %v", err)
	}
	sweeper := app.NewExpirySweeper(s.service, s.store, app.SweepPolicy{InviteTTL: time.Hour}, nil)
	report, err := sweeper.Sweep(ctx, time.Now().Add(2*time.Hour))
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if report.Expired != 1 {
		t.Fatalf("expected 1 expired, got %d", report.Expired)
	}
	ch, err := s.store.Get(ctx, invite.View.Challenge.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if ch.Status != domain.StatusExpired {
		t.Fatalf("expected expired, got %s", ch.Status)
	}
}

func startPostgres(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "postgres:15-alpine",
		Env:          map[string]string{"POSTGRES_USER": "challenge", "POSTGRES_PASSWORD": "challengepass", "POSTGRES_DB": "challengedb"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start postgres: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		t.Fatalf("port: %v", err)
	}
	dsn := fmt.Sprintf("postgres://challenge:challengepass@%s:%s/challengedb?sslmode=disable", host, port.Port())
	return dsn, func() {
		_ = container.Terminate(ctx)
	}
}

func startRedis(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(30 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start redis: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("redis host: %v", err)
	}
	port, err := container.MappedPort(ctx, "6379/tcp")
	if err != nil {
		t.Fatalf("redis port: %v", err)
	}
	url := fmt.Sprintf("redis://%s:%s", host, port.Port())
	return url, func() {
		_ = container.Terminate(ctx)
	}
}

func migrateAndSeed(t *testing.T, ctx context.Context, dsn string) *bun.DB {
	t.Helper()
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	db := bun.NewDB(sqldb, pgdialect.New())

	migrator := migrate.NewMigrator(db, pgmigrations.Migrations)
	if err := migrator.Init(ctx); err != nil {
		t.Fatalf("migrator init: %v", err)
	}
	if _, err := migrator.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	for id, choice := range answerKey {
		topic := "grammar"
		if id == "q5" {
			topic = "vocabulary"
		}
		if _, err := db.ExecContext(ctx, `INSERT INTO questions (id, topic, correct_choice) VALUES (?, ?, ?)`, id, topic, choice); err != nil {
			t.Fatalf("insert question: %v", err)
		}
	}
	for _, u := range []struct {
		id     string
		active bool
	}{{"alice", true}, {"bob", true}, {"carol", true}, {"zed", false}} {
		if _, err := db.ExecContext(ctx, `INSERT INTO users (id, active) VALUES (?, ?)`, u.id, u.active); err != nil {
			t.Fatalf("insert user: %v", err)
		}
	}
	return db
}

func redisClientFromURL(url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return goredis.NewClient(&goredis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	}), nil
}

func requireDocker(t *testing.T) {
	t.Helper()
	if _, err := tc.NewDockerProvider(); err != nil {
		t.Skipf("docker not available: %v", err)
	}
}
