package integration

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/clinic/clinic/internal/platform/db"
)

const (
	postgresImage = "postgres:16-alpine"
	containerUser = "clinic"
	containerDB   = "clinictest"
)

// startPostgresContainer runs a disposable Postgres through the docker CLI on
// a port picked by Docker. The container is removed by cleanup or, failing
// that, when it stops.
func startPostgresContainer(ctx context.Context) (string, func(), error) {
	out, err := docker(ctx, "run", "-d", "--rm", "-P",
		"-e", "POSTGRES_USER="+containerUser,
		"-e", "POSTGRES_PASSWORD="+containerUser,
		"-e", "POSTGRES_DB="+containerDB,
		postgresImage)
	if err != nil {
		return "", nil, err
	}
	id := out
	cleanup := func() { _, _ = docker(context.Background(), "rm", "-f", id) }

	port, err := publishedPort(ctx, id)
	if err != nil {
		cleanup()
		return "", nil, err
	}
	connStr := fmt.Sprintf("postgres://%s:%s@localhost:%s/%s?sslmode=disable",
		containerUser, containerUser, port, containerDB)
	if err := waitForPostgres(ctx, connStr, 30*time.Second); err != nil {
		cleanup()
		return "", nil, err
	}
	return connStr, cleanup, nil
}

func docker(ctx context.Context, args ...string) (string, error) {
	out, err := exec.CommandContext(ctx, "docker", args...).CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("docker %s: %w: %s", args[0], err, strings.TrimSpace(string(out)))
	}
	return strings.TrimSpace(string(out)), nil
}

// publishedPort reads the host side of 5432/tcp. docker port prints one
// "addr:port" line per address family.
func publishedPort(ctx context.Context, id string) (string, error) {
	out, err := docker(ctx, "port", id, "5432/tcp")
	if err != nil {
		return "", err
	}
	first, _, _ := strings.Cut(out, "\n")
	i := strings.LastIndex(first, ":")
	if i < 0 || i == len(first)-1 {
		return "", fmt.Errorf("unexpected docker port output %q", out)
	}
	return first[i+1:], nil
}

func waitForPostgres(ctx context.Context, connStr string, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	for {
		pool, err := db.NewPool(ctx, connStr, 1, 0)
		if err == nil {
			pool.Close()
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("postgres not ready after %v: %w", timeout, err)
		case <-time.After(500 * time.Millisecond):
		}
	}
}
