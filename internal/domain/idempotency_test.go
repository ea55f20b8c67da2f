package domain

import (
	"errors"
	"testing"
	"time"
)

func TestNewIdempotencyRecord(t *testing.T) {
	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

	rec, err := NewIdempotencyRecord(" user-1:key-1 ", " hash ", time.Time{}, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Key != "user-1:key-1" || rec.RequestHash != "hash" {
		t.Fatalf("key and hash must be trimmed, got %+v", rec)
	}
	if rec.Status != IdempotencyStatusProcessing || rec.Finished() {
		t.Fatalf("new record must be processing, got %s", rec.Status)
	}
	if !rec.TTLAt.Equal(now.Add(DefaultIdempotencyTTL)) {
		t.Fatalf("zero ttl must default to %s, got %s", DefaultIdempotencyTTL, rec.TTLAt)
	}

	if _, err := NewIdempotencyRecord(" ", "hash", now, now); !errors.Is(err, ErrIdempotencyKeyRequired) {
		t.Fatalf("expected ErrIdempotencyKeyRequired, got %v", err)
	}
	if _, err := NewIdempotencyRecord("key", "", now, now); !errors.Is(err, ErrIdempotencyRequestHashRequired) {
		t.Fatalf("expected ErrIdempotencyRequestHashRequired, got %v", err)
	}
}

func TestIdempotencyRecord_CompleteAndExpire(t *testing.T) {
	now := time.Now().UTC()
	rec, _ := NewIdempotencyRecord("k", "h", now.Add(time.Minute), now)

	body := []byte(`{"orderId":"o-1"}`)
	rec.Complete(IdempotencyStatusDone, body, 201, now.Add(time.Second))
	body[0] = 'X'

	if !rec.Finished() || rec.HTTPStatus != 201 || string(rec.ResponseBody) != `{"orderId":"o-1"}` {
		t.Fatalf("unexpected completed record %+v", rec)
	}
	if rec.Expired(now) {
		t.Fatal("record within ttl must not be expired")
	}
	if !rec.Expired(now.Add(time.Minute)) {
		t.Fatal("record at ttl boundary must be expired")
	}
}

func TestIdempotencyRecord_ConflictWith(t *testing.T) {
	rec := IdempotencyRecord{RequestHash: "abc"}
	if err := rec.ConflictWith("abc"); !errors.Is(err, ErrIdempotencyKeyExists) {
		t.Fatalf("same hash: expected ErrIdempotencyKeyExists, got %v", err)
	}
	if err := rec.ConflictWith("other"); !errors.Is(err, ErrIdempotencyHashMismatch) {
		t.Fatalf("other hash: expected ErrIdempotencyHashMismatch, got %v", err)
	}
}

func TestIdempotencyStatusValid(t *testing.T) {
	for _, s := range []IdempotencyStatus{IdempotencyStatusProcessing, IdempotencyStatusDone, IdempotencyStatusFailed} {
		if !s.Valid() {
			t.Fatalf("%s must be valid", s)
		}
	}
	if IdempotencyStatus("replayed").Valid() {
		t.Fatal("unknown status must be invalid")
	}
}

func TestScopedIdempotencyKey(t *testing.T) {
	if got := ScopedIdempotencyKey(" u1 ", " k1 "); got != "u1:k1" {
		t.Fatalf("unexpected scoped key %q", got)
	}
	if ScopedIdempotencyKey("u1", "k") == ScopedIdempotencyKey("u2", "k") {
		t.Fatal("keys of different actors must not collide")
	}
}
