package test

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"math/rand"
	"os"
	"os/exec"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"memberflow/test/actors"
	"memberflow/test/chaos"
	"memberflow/test/infra"
	"memberflow/test/oracles"
)

var (
	flDuration    = flag.Duration("duration", 60*time.Second, "how long to run stress")
	flConcurrency = flag.Int("concurrency", 8, "number of concurrent actors per member")
	flSeed        = flag.Int64("seed", time.Now().UnixNano(), "random seed")
	flDSN         = flag.String("dsn", "", "existing Postgres DSN to reuse (avoids Docker)")
)

func TestRegistryConcurrency(t *testing.T) {
	flag.Parse()
	seed := *flSeed

	var (
		pgC        *infra.PGContainer
		dsn        string
		err        error
		usedShared bool
	)
	ctx, cancel := context.WithTimeout(context.Background(), *flDuration+60*time.Second)
	defer cancel()

	switch {
	case *flDSN != "":
		dsn = *flDSN
		usedShared = true
		pgC = &infra.PGContainer{}
	case os.Getenv("MEMBERFLOW_STRESS_PG_DSN") != "":
		dsn = os.Getenv("MEMBERFLOW_STRESS_PG_DSN")
		usedShared = true
		pgC = &infra.PGContainer{}
	default:
		if dockerAvailable(ctx) {
			pgC, dsn, err = infra.StartPostgres16(ctx, "")
			if err != nil {
				t.Fatalf("start postgres: %v", err)
			}
		} else {
			dsn, err = infra.InitLocalDatabase(ctx)
			if err != nil {
				t.Fatalf("init local database: %v", err)
			}
			pgC = &infra.PGContainer{}
		}
	}
	defer pgC.Terminate(context.Background())

	pool, teardown, err := infra.ApplyMigrations(ctx, dsn, usedShared)
	if err != nil {
		t.Fatalf("apply migrations: %v", err)
	}
	defer pool.Close()
	defer func() {
		if err := teardown(context.Background()); err != nil {
			t.Logf("teardown warning: %v", err)
		}
	}()

	seedData := mustSeed(t, ctx, pool)

	g, ctx2 := errgroup.WithContext(ctx)
	stop := make(chan struct{})

	// submitters battling over the same member's single pending slot
	for i := 0; i < *flConcurrency; i++ {
		g.Go(func() error {
			return actors.Submitter(ctx2, pool, seedData.memberID, seedData.memberEmail, stop)
		})
	}
	// reviewers draining the queue
	for i := 0; i < 2; i++ {
		g.Go(func() error { return actors.Reviewer(ctx2, pool, stop) })
	}
	// admin edits racing approvals on the same member
	g.Go(func() error { return actors.ProfileEditor(ctx2, pool, seedData.memberID, stop) })
	// steady trickle of fresh registrations
	g.Go(func() error { return actors.Registrar(ctx2, pool, stop) })
	// chaos: drop random sessions
	go chaos.KillRandomSession(ctx2, pool, 2*time.Second, stop)

	deadline := time.Now().Add(*flDuration)
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	var failed bool
loop:
	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			break loop
		case <-ticker.C:
			name, row, err := oracles.Run(ctx2, pool)
			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					break loop
				}
				t.Fatalf("oracle error: %v", err)
			}
			if name != "" {
				failed = true
				dumpRecent(t, ctx2, pool)
				t.Fatalf("Oracle %s failed. First row: %s (seed=%d)", name, row, seed)
			}
		}
	}

	close(stop)
	if err := g.Wait(); err != nil && !failed {
		if !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			t.Fatalf("actors errored: %v", err)
		}
	}
}

func dockerAvailable(ctx context.Context) bool {
	if _, err := exec.LookPath("docker"); err != nil {
		return false
	}
	c := exec.CommandContext(ctx, "docker", "info")
	c.Stdout = io.Discard
	c.Stderr = io.Discard
	return c.Run() == nil
}

type seedIDs struct {
	memberID    string
	memberEmail string
}

func mustSeed(t *testing.T, ctx context.Context, pool *pgxpool.Pool) seedIDs {
	t.Helper()
	s := seedIDs{
		memberID:    uuid.NewString(),
		memberEmail: fmt.Sprintf("seed-%d@example.com", rand.Int63()),
	}

	if _, err := pool.Exec(ctx, `INSERT INTO members (id, name, email, phone_number, age, place, registration_date)
                                 VALUES ($1,'Seed Member',$2,$3,20,'Pune',CURRENT_DATE)`,
		s.memberID, s.memberEmail, fmt.Sprintf("8%09d", rand.Int63n(1_000_000_000))); err != nil {
		t.Fatalf("seed member: %v", err)
	}
	if _, err := pool.Exec(ctx, `INSERT INTO login_identities (id, user_name, password_hash, roles, must_change_password, member_id)
                                 VALUES ($1,$2,'x',ARRAY['member'],TRUE,$3)`,
		uuid.NewString(), s.memberEmail, s.memberID); err != nil {
		t.Fatalf("seed login: %v", err)
	}
	return s
}

func dumpRecent(t *testing.T, ctx context.Context, pool *pgxpool.Pool) {
	t.Helper()
	type dump struct {
		name string
		sql  string
	}
	dumps := []dump{
		{"change_requests", `SELECT id, member_id, type, status, reviewed_by, submitted_at FROM change_requests ORDER BY submitted_at DESC LIMIT 50`},
		{"members", `SELECT id, email, age, place, version FROM members ORDER BY updated_at DESC LIMIT 50`},
		{"login_identities", `SELECT id, user_name, member_id FROM login_identities ORDER BY updated_at DESC LIMIT 50`},
	}
	for _, d := range dumps {
		rows, err := pool.Query(ctx, d.sql)
		if err != nil {
			t.Logf("dump %s error: %v", d.name, err)
			continue
		}
		cols := rows.FieldDescriptions()
		t.Logf("-- %s --", d.name)
		for rows.Next() {
			vals, _ := rows.Values()
			buf := make([]any, 0, len(vals))
			for i := range vals {
				buf = append(buf, fmt.Sprintf("%s=%v", string(cols[i].Name), vals[i]))
			}
			t.Logf("%s", buf)
		}
		rows.Close()
	}
}
