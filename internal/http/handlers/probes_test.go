package handlers

import (
	"context"
	"errors"
	"testing"
)

// mockDBPinger implements DBPinger for testing.
type mockDBPinger struct {
	err error
}

func (m *mockDBPinger) PingContext(ctx context.Context) error {
	return m.err
}

// mockStorePinger implements StorePinger for testing.
type mockStorePinger struct {
	err error
}

func (m *mockStorePinger) PingStores(ctx context.Context) error {
	return m.err
}

// ========================================
// Livez Tests
// ========================================

func TestLivez(t *testing.T) {
	output, err := Livez(context.Background(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if output == nil {
		t.Fatal("expected output, got nil")
	}
	if output.Body.Status != "ok" {
		t.Errorf("Status = %q, want %q", output.Body.Status, "ok")
	}
}

// ========================================
// Readyz Tests
// ========================================

func TestReadyzHandler_Readyz_Success(t *testing.T) {
	handler := NewReadyzHandler(&mockDBPinger{}, &mockStorePinger{})

	output, err := handler.Readyz(context.Background(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if output.Body.Status != "ok" {
		t.Errorf("Status = %q, want %q", output.Body.Status, "ok")
	}
}

func TestReadyzHandler_Readyz_DBError(t *testing.T) {
	handler := NewReadyzHandler(&mockDBPinger{err: errors.New("connection failed")}, &mockStorePinger{})

	_, err := handler.Readyz(context.Background(), nil)
	if err == nil {
		t.Fatal("expected error, got nil")
	}
}

func TestReadyzHandler_Readyz_StoreError(t *testing.T) {
	handler := NewReadyzHandler(&mockDBPinger{}, &mockStorePinger{err: errors.New("redis down")})

	_, err := handler.Readyz(context.Background(), nil)
	if err == nil {
		t.Fatal("expected error, got nil")
	}
}

func TestReadyzHandler_Readyz_NilDependencies(t *testing.T) {
	handler := NewReadyzHandler(nil, nil)

	output, err := handler.Readyz(context.Background(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if output.Body.Status != "ok" {
		t.Errorf("Status = %q, want %q", output.Body.Status, "ok")
	}
}
