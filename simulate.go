package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"silencer/audio"
	"silencer/log"
	"silencer/monitor"
	"silencer/playback"
	"silencer/shutdown"
)

var simWaitTimeout time.Duration

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Drive the controller from stdin against a synthetic microphone",
	Long: `simulate runs the real controller with a synthetic microphone and a
silent output, reading one command per line from stdin:

  TOGGLE | START | START_DELAY | STOP
  LEVEL <dBFS>        set the synthetic microphone level
  THRESHOLD <dBFS>    change the trigger level
  WAIT <phase>        block until idle, pending, monitoring or responding
  WAIT_TRIGGERS <n>   block until n triggers have been counted
  SLEEP <ms>
  DENY | ALLOW        hide or show the microphone
  FAIL | RECOVER      make capture start fail or succeed
  STATUS              print a status line
  QUIT`,
	Args: cobra.NoArgs,
	RunE: runSimulate,
}

func init() {
	simulateCmd.Flags().DurationVar(&simWaitTimeout, "wait-timeout", 10*time.Second, "how long WAIT commands block before failing")
}

var errSimulatedFailure = errors.New("simulated device failure")

func runSimulate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	if err := log.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not init logging: %v\n", err)
	}
	defer log.Close()
	log.SessionStart("fake", cfg.Monitor.ThresholdDB, cfg.Masking.Asset)

	fake := audio.NewFakeContext()
	a, err := newApp(cfg, fake, nil, &playback.Discard{}, nil)
	if err != nil {
		return err
	}
	defer func() {
		a.Close()
		log.SessionEnd(a.ctrl.Status().Triggers)
	}()

	ctx, stop := shutdown.Context(context.Background())
	defer stop()

	return simulate(ctx, a, fake, os.Stdin, os.Stdout, simWaitTimeout)
}

func simulate(ctx context.Context, a *app, fake *audio.FakeContext, in io.Reader, out io.Writer, waitTimeout time.Duration) error {
	var (
		outMu  sync.Mutex
		starts sync.WaitGroup
	)
	say := func(format string, args ...any) {
		outMu.Lock()
		defer outMu.Unlock()
		fmt.Fprintf(out, format+"\n", args...)
	}

	// Start blocks through the countdown, so it runs off the command loop
	// and scripts synchronise with WAIT.
	begin := func(toggle, withDelay bool) {
		starts.Add(1)
		go func() {
			defer starts.Done()
			var err error
			if toggle {
				err = a.ctrl.Toggle(ctx, withDelay)
			} else {
				err = a.ctrl.Start(ctx, withDelay)
			}
			if err != nil {
				reportStartError(err)
				say("error: %v", err)
			}
		}()
	}
	defer func() {
		a.ctrl.Stop()
		starts.Wait()
	}()

	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return nil
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		cmd, arg, _ := strings.Cut(line, " ")
		arg = strings.TrimSpace(arg)

		switch strings.ToUpper(cmd) {
		case "TOGGLE":
			begin(true, false)
		case "START":
			begin(false, false)
		case "START_DELAY":
			begin(false, true)
		case "STOP":
			a.ctrl.Stop()
		case "LEVEL":
			db, err := strconv.ParseFloat(arg, 64)
			if err != nil {
				return fmt.Errorf("LEVEL %q: %w", arg, err)
			}
			fake.SetLevel(db)
		case "THRESHOLD":
			db, err := strconv.ParseFloat(arg, 64)
			if err != nil {
				return fmt.Errorf("THRESHOLD %q: %w", arg, err)
			}
			a.ctrl.SetThreshold(db)
		case "WAIT":
			want, err := monitor.ParsePhase(arg)
			if err != nil {
				return err
			}
			if err := waitFor(ctx, a.ctrl, waitTimeout, func(st monitor.Status) bool { return st.Phase == want }); err != nil {
				return fmt.Errorf("WAIT %s: %w", want, err)
			}
		case "WAIT_TRIGGERS":
			n, err := strconv.Atoi(arg)
			if err != nil {
				return fmt.Errorf("WAIT_TRIGGERS %q: %w", arg, err)
			}
			if err := waitFor(ctx, a.ctrl, waitTimeout, func(st monitor.Status) bool { return st.Triggers >= n }); err != nil {
				return fmt.Errorf("WAIT_TRIGGERS %d: %w", n, err)
			}
		case "SLEEP":
			ms, err := strconv.Atoi(arg)
			if err != nil {
				return fmt.Errorf("SLEEP %q: %w", arg, err)
			}
			time.Sleep(time.Duration(ms) * time.Millisecond)
		case "DENY":
			fake.Deny(true)
		case "ALLOW":
			fake.Deny(false)
		case "FAIL":
			fake.FailStart(errSimulatedFailure)
		case "RECOVER":
			fake.FailStart(nil)
		case "STATUS":
			say("%s", simStatusLine(a))
		case "QUIT":
			return nil
		default:
			say("unknown command: %s", line)
		}
	}
	return scanner.Err()
}

var errWaitTimeout = errors.New("timed out")

func waitFor(ctx context.Context, ctrl *monitor.Controller, timeout time.Duration, done func(monitor.Status) bool) error {
	deadline := time.Now().Add(timeout)
	for !done(ctrl.Status()) {
		if time.Now().After(deadline) {
			return fmt.Errorf("%w after %s (phase %s)", errWaitTimeout, timeout, ctrl.Status().Phase)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(5 * time.Millisecond):
		}
	}
	return nil
}

func simStatusLine(a *app) string {
	st := a.ctrl.Status()
	routing := "playback"
	if a.routing.ForCapture() {
		routing = "capture"
	}
	return fmt.Sprintf("phase=%s remaining=%d level=%.1f threshold=%.1f triggers=%d routing=%s",
		st.Phase, st.SecondsRemaining, st.Level, st.Threshold, st.Triggers, routing)
}
