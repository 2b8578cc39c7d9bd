package main

import (
	"context"
	"errors"
	"os"
	osSignal "os/signal"
	"syscall"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"
)

type fakeStopper struct {
	shutdownErr error
	shutdowns   int
	closes      int
}

func (f *fakeStopper) Shutdown(context.Context) error {
	f.shutdowns++
	return f.shutdownErr
}

func (f *fakeStopper) Close() error {
	f.closes++
	return nil
}

func sendSIGTERM(t *testing.T) {
	t.Helper()
	t.Cleanup(func() {
		signalNotify = osSignal.Notify
	})

	signalNotify = func(ch chan<- os.Signal, sig ...os.Signal) {
		go func() {
			ch <- syscall.SIGTERM
		}()
	}
}

func TestShutdownSignals(t *testing.T) {
	sendSIGTERM(t)

	app := &fakeStopper{}
	shutdown(app, time.Millisecond, zaptest.NewLogger(t))

	if app.shutdowns != 1 {
		t.Fatalf("expected graceful shutdown, got %d calls", app.shutdowns)
	}
	if app.closes != 0 {
		t.Fatalf("did not expect forced close")
	}
}

func TestShutdownForcesCloseOnError(t *testing.T) {
	sendSIGTERM(t)

	app := &fakeStopper{shutdownErr: errors.New("deadline exceeded")}
	shutdown(app, time.Millisecond, zaptest.NewLogger(t))

	if app.closes != 1 {
		t.Fatalf("expected forced close after failed shutdown")
	}
}
