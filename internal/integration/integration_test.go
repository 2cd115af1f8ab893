package integration

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/migrate"

	"quiz-session-service/internal/app"
	"quiz-session-service/internal/domain"
	pginfra "quiz-session-service/internal/infra/postgres"
	pgmigrations "quiz-session-service/internal/infra/postgres/migrations"
	redisinfra "quiz-session-service/internal/infra/redis"
)

func TestScopedSessionEndToEnd(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()
	redisURL, redisCleanup := startRedis(t, ctx)
	defer redisCleanup()

	seedContent(t, ctx, pgURL, sampleQuiz())

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	defer pool.Close()

	redisClient, err := redisClientFromURL(redisURL)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}

	quizRepo := redisinfra.NewQuizRepository(redisClient, pginfra.NewQuizLoader(pool), 5*time.Minute)
	registry := app.NewRegistry(5*time.Minute, redisinfra.NewPinStore(redisClient, 5*time.Minute))
	service := app.NewSessionService(app.Options{
		Registry: registry,
		Quizzes:  quizRepo,
		Groups:   pginfra.NewGroupDirectory(pool),
		Results:  pginfra.NewResultStore(pool),
		Reports:  redisinfra.NewReportPublisher(redisClient, ""),
	})

	created, err := service.CreateSession(ctx, "quiz-1", domain.ModeSelfPaced, "group-1")
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	if !redisExists(t, ctx, redisClient, "session:pin:"+created.PIN) {
		t.Fatalf("expected pin reservation in redis")
	}

	if _, err := service.JoinPersistent(ctx, created.PIN, "student-1", "Sam"); err != nil {
		t.Fatalf("join: %v", err)
	}
	if _, err := service.JoinPersistent(ctx, created.PIN, "outsider", "Eve"); err != domain.ErrScopeMismatch {
		t.Fatalf("expected scope mismatch, got %v", err)
	}

	if err := service.Start(ctx, created.PIN, created.HostToken, 0); err != nil {
		t.Fatalf("start: %v", err)
	}

	if _, err := service.SubmitAnswer(ctx, created.PIN, "student-1", domain.AnswerSubmission{
		QuestionIndex: 0,
		OptionIndex:   1,
	}); err != nil {
		t.Fatalf("submit: %v", err)
	}
	status, err := service.PlayerStatus(ctx, created.PIN, "student-1")
	if err != nil {
		t.Fatalf("player status: %v", err)
	}
	if status.Score != 100 {
		t.Fatalf("expected score 100, got %d", status.Score)
	}

	if _, err := service.FinishAttempt(ctx, created.PIN, "student-1"); err != nil {
		t.Fatalf("finish attempt: %v", err)
	}
	if err := service.EndEarly(ctx, created.PIN, created.HostToken); err != nil {
		t.Fatalf("end session: %v", err)
	}

	// Handoff is asynchronous; poll for the persisted result row.
	deadline := time.Now().Add(10 * time.Second)
	for {
		var raw []byte
		err := pool.QueryRow(ctx, `SELECT data FROM session_results WHERE quiz_id=$1`, "quiz-1").Scan(&raw)
		if err == nil {
			var result domain.SessionResult
			if err := json.Unmarshal(raw, &result); err != nil {
				t.Fatalf("unmarshal result: %v", err)
			}
			if result.ScopeName != "Group One" || len(result.Players) != 1 || result.Players[0].Score != 100 {
				t.Fatalf("unexpected persisted result: %+v", result)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("result row never appeared: %v", err)
		}
		time.Sleep(100 * time.Millisecond)
	}
}

func startPostgres(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "postgres:15-alpine",
		Env:          map[string]string{"POSTGRES_USER": "quiz", "POSTGRES_PASSWORD": "quizpass", "POSTGRES_DB": "quizdb"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor:   wait.ForListeningPort("5432/tcp").WithStartupTimeout(60 * time.Second),
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
	dsn := fmt.Sprintf("postgres://quiz:quizpass@%s:%s/quizdb?sslmode=disable", host, port.Port())
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

func seedContent(t *testing.T, ctx context.Context, dsn string, quiz domain.Quiz) {
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	db := bun.NewDB(sqldb, pgdialect.New())
	defer db.Close()

	migrator := migrate.NewMigrator(db, pgmigrations.Migrations)
	if err := migrator.Init(ctx); err != nil {
		t.Fatalf("migrator init: %v", err)
	}
	if _, err := migrator.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	data, err := json.Marshal(quiz)
	if err != nil {
		t.Fatalf("marshal quiz: %v", err)
	}
	if _, err := db.ExecContext(ctx, `INSERT INTO quizzes (id, data) VALUES (?, ?::jsonb) ON CONFLICT (id) DO UPDATE SET data=EXCLUDED.data`, quiz.ID, string(data)); err != nil {
		t.Fatalf("insert quiz: %v", err)
	}
	if _, err := db.ExecContext(ctx, `INSERT INTO groups (id, name) VALUES (?, ?) ON CONFLICT (id) DO NOTHING`, "group-1", "Group One"); err != nil {
		t.Fatalf("insert group: %v", err)
	}
	if _, err := db.ExecContext(ctx, `INSERT INTO group_members (group_id, member_id) VALUES (?, ?) ON CONFLICT DO NOTHING`, "group-1", "student-1"); err != nil {
		t.Fatalf("insert membership: %v", err)
	}
}

func sampleQuiz() domain.Quiz {
	return domain.Quiz{
		ID:    "quiz-1",
		Title: "Arithmetic",
		Questions: []domain.Question{
			{
				Text:         "What is 2 + 2?",
				Type:         domain.TypeMultipleChoice,
				Options:      []string{"3", "4", "5"},
				CorrectIndex: 1,
			},
		},
	}
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

func redisExists(t *testing.T, ctx context.Context, client *goredis.Client, key string) bool {
	t.Helper()
	n, err := client.Exists(ctx, key).Result()
	if err != nil {
		t.Fatalf("redis exists: %v", err)
	}
	return n == 1
}

func requireDocker(t *testing.T) {
	t.Helper()
	if _, err := tc.NewDockerProvider(); err != nil {
		t.Skipf("docker not available: %v", err)
	}
}
