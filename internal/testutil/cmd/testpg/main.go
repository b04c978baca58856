// testpg starts an embedded Postgres on a free port, sets TEST_DATABASE_URL,
// runs the given command (typically `go test ...`), then stops Postgres.
// The evolution integration tests need a real Postgres; this avoids Docker.
//
// Usage: go run ./internal/testutil/cmd/testpg -- go test -tags=integration -count=1 ./...
package main

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"os/signal"
	"syscall"

	"github.com/crmv2/crmv2/internal/testutil"
)

func main() {
	os.Exit(run())
}

func run() int {
	args := os.Args[1:]
	if len(args) > 0 && args[0] == "--" {
		args = args[1:]
	}
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "usage: testpg [--] <command> [args...]")
		return 1
	}

	pgLogFile, err := os.CreateTemp("", "crmv2-test-pg-log-*.log")
	if err != nil {
		fmt.Fprintf(os.Stderr, "testpg: create log file: %v\n", err)
		return 1
	}
	defer os.Remove(pgLogFile.Name())
	defer pgLogFile.Close()

	var pgLogger io.Writer = pgLogFile
	if os.Getenv("TESTPG_VERBOSE") != "" {
		pgLogger = io.MultiWriter(pgLogFile, os.Stderr)
	}

	fmt.Fprintf(os.Stderr, "testpg: starting embedded postgres (logs: %s)\n", pgLogFile.Name())
	pg, err := testutil.StartEmbeddedPostgres(pgLogger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "testpg: %v\n", err)
		return 1
	}

	cleanup := func() {
		fmt.Fprintln(os.Stderr, "testpg: stopping managed postgres")
		_ = pg.Stop()
	}
	defer cleanup()

	// Trap signals so postgres is stopped on Ctrl+C / SIGTERM instead of
	// being orphaned. A second signal force-exits immediately.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	url := pg.URL
	fmt.Fprintf(os.Stderr, "testpg: TEST_DATABASE_URL=%s\n", url)

	cmd := exec.Command(args[0], args[1:]...) //nolint:gosec
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Env = append(os.Environ(), "TEST_DATABASE_URL="+url)

	// Run the child in its own process group so we can forward signals cleanly.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if err := cmd.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "testpg: %v\n", err)
		return 1
	}

	// Wait for either the child to finish or a signal to arrive.
	waitCh := make(chan error, 1)
	go func() { waitCh <- cmd.Wait() }()

	select {
	case err := <-waitCh:
		if err != nil {
			if exitErr, ok := err.(*exec.ExitError); ok {
				return exitErr.ExitCode()
			}
			fmt.Fprintf(os.Stderr, "testpg: %v\n", err)
			return 1
		}
		return 0

	case sig := <-sigCh:
		fmt.Fprintf(os.Stderr, "\ntestpg: received %s, shutting down\n", sig)
		// Forward the signal to the child process group.
		if cmd.Process != nil {
			_ = syscall.Kill(-cmd.Process.Pid, sig.(syscall.Signal))
		}
		// Allow a second signal to force-exit immediately.
		go func() {
			<-sigCh
			fmt.Fprintln(os.Stderr, "testpg: forced exit")
			cleanup()
			os.Exit(1)
		}()
		// Wait for the child to exit after receiving the forwarded signal.
		<-waitCh
		// cleanup() runs via defer; return signal exit code.
		return 128 + int(sig.(syscall.Signal))
	}
}
