package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/joseph-ayodele/rxverify/constants"
	"github.com/joseph-ayodele/rxverify/internal/entity"
	"github.com/joseph-ayodele/rxverify/internal/server"
)

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("REGISTRY_BACKEND", "memory")
	t.Setenv("KAFKA_BROKERS", "")
	t.Setenv("LOG_LEVEL", "error")
	t.Setenv("RXVERIFY_CONFIG", "")

	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestIssueCommand(t *testing.T) {
	out, err := runCLI(t, "issue",
		"--doctor", "Dr. Sarah Johnson",
		"--patient", "Michael Brown",
		"--date", "2024-05-01",
		"--medication", "Amoxicillin 500mg",
		"--dosage", "1 capsule three times daily",
	)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	var res entity.RegistrationResult
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if len(res.Fingerprint) != 64 {
		t.Errorf("fingerprint = %q, want 64 hex chars", res.Fingerprint)
	}
	if res.Prescription.DoctorName != "Dr. Sarah Johnson" {
		t.Errorf("doctor = %q", res.Prescription.DoctorName)
	}
}

func TestIssueRequiresDoctor(t *testing.T) {
	if _, err := runCLI(t, "issue", "--patient", "Michael Brown"); err == nil {
		t.Fatal("expected missing --doctor to fail")
	}
}

func TestUnknownFormat(t *testing.T) {
	if _, err := runCLI(t, "--format", "xml", "ocr-info"); err == nil {
		t.Fatal("expected unknown format to fail")
	}
}

func TestTokenCommand(t *testing.T) {
	t.Setenv("AUTH_JWT_SECRET", "test-secret")
	t.Setenv("AUTH_ISSUER", "rxverify-test")

	out, err := runCLI(t, "token", "--subject", "pharmacy-7", "--role", constants.RoleIssuer)
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	auth := server.AuthConfig{Secret: []byte("test-secret"), Issuer: "rxverify-test"}
	claims, err := auth.ParseToken(strings.TrimSpace(out))
	if err != nil {
		t.Fatalf("parse token: %v", err)
	}
	if claims.Subject != "pharmacy-7" {
		t.Errorf("subject = %q", claims.Subject)
	}
	if len(claims.Roles) != 1 || claims.Roles[0] != constants.RoleIssuer {
		t.Errorf("roles = %v", claims.Roles)
	}
}

func TestTokenRejectsUnknownRole(t *testing.T) {
	t.Setenv("AUTH_JWT_SECRET", "test-secret")
	if _, err := runCLI(t, "token", "--subject", "x", "--role", "admin"); err == nil {
		t.Fatal("expected unknown role to fail")
	}
}

func TestWriteOutputYAML(t *testing.T) {
	var buf bytes.Buffer
	v := entity.VerificationVerdict{
		Status:    constants.StatusFake,
		Message:   "Prescription not found in registry",
		Anomalies: []string{},
	}
	if err := writeOutput(&buf, formatYAML, v); err != nil {
		t.Fatalf("writeOutput: %v", err)
	}
	got := buf.String()
	for _, want := range []string{"is_authentic: false", "status: Fake", "confidence_score: 0"} {
		if !strings.Contains(got, want) {
			t.Errorf("yaml output missing %q:\n%s", want, got)
		}
	}
}

func TestWatchLoopClosedErrorChannel(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	errs := make(chan error)
	close(errs)
	paths := make(chan string)
	go func() {
		time.Sleep(20 * time.Millisecond)
		paths <- "/scans/rx-1.png"
		paths <- "/scans/rx-2.png"
		close(paths)
	}()

	var got []string
	err := watchLoop(context.Background(), logger, paths, errs, func(p string) error {
		got = append(got, p)
		return nil
	})
	if err != nil {
		t.Fatalf("watchLoop: %v", err)
	}
	if len(got) != 2 || got[0] != "/scans/rx-1.png" || got[1] != "/scans/rx-2.png" {
		t.Errorf("handled = %v", got)
	}
}

func TestWatchLoopStops(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	failed := errors.New("queue closed")

	paths := make(chan string, 1)
	paths <- "/scans/rx-1.png"
	err := watchLoop(context.Background(), logger, paths, nil, func(string) error { return failed })
	if !errors.Is(err, failed) {
		t.Errorf("handler error = %v, want %v", err, failed)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := watchLoop(ctx, logger, make(chan string), make(chan error), func(string) error { return nil }); err != nil {
		t.Errorf("cancelled watch = %v, want nil", err)
	}
}
