package history

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

const addr = "0xAbCdEf0000000000000000000000000000000001"

func newTestLog(kv KV) *Log {
	l := NewLog(kv, zerolog.Nop())
	tick := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time {
		tick = tick.Add(time.Second)
		return tick
	}
	return l
}

func TestAddPrependsNewestFirst(t *testing.T) {
	kv := NewMemoryKV()
	l := newTestLog(kv)
	ctx := context.Background()

	for _, hash := range []string{"0x1", "0x2", "0x3"} {
		if _, err := l.Add(ctx, addr, Record{Hash: hash, Type: TypePurchase, Amount: "10"}); err != nil {
			t.Fatalf("add %s: %v", hash, err)
		}
	}
	// duplicates are kept
	if _, err := l.Add(ctx, addr, Record{Hash: "0x2", Type: TypeClaim, Amount: "1"}); err != nil {
		t.Fatalf("add duplicate: %v", err)
	}

	records, err := l.List(ctx, addr, Filter{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	want := []string{"0x2", "0x3", "0x2", "0x1"}
	if len(records) != len(want) {
		t.Fatalf("expected %d records, got %d", len(want), len(records))
	}
	for i, h := range want {
		if records[i].Hash != h {
			t.Fatalf("record %d: expected %s, got %s", i, h, records[i].Hash)
		}
	}
	if records[0].Status != StatusPending || records[0].Timestamp == 0 {
		t.Fatalf("defaults not applied: %#v", records[0])
	}

	if _, ok, _ := kv.Get(ctx, "fld_transactions_"+strings.ToLower(addr)); !ok {
		t.Fatal("log must be stored under the lower-cased address key")
	}

	again, _ := l.List(ctx, strings.ToLower(addr), Filter{})
	if again[0].Hash != "0x2" || again[3].Hash != "0x1" {
		t.Fatal("reads must never reorder records")
	}
}

func TestListFilter(t *testing.T) {
	l := newTestLog(NewMemoryKV())
	ctx := context.Background()
	_, _ = l.Add(ctx, addr, Record{Hash: "0xa", Type: TypePurchase, Status: StatusSuccess})
	_, _ = l.Add(ctx, addr, Record{Hash: "0xb", Type: TypeClaim, Status: StatusFailed})
	_, _ = l.Add(ctx, addr, Record{Hash: "0xc", Type: TypeClaim, Status: StatusSuccess})

	claims, _ := l.List(ctx, addr, Filter{Type: TypeClaim})
	if len(claims) != 2 || claims[0].Hash != "0xc" {
		t.Fatalf("unexpected claims %#v", claims)
	}
	ok, _ := l.List(ctx, addr, Filter{Type: TypeClaim, Status: StatusSuccess})
	if len(ok) != 1 || ok[0].Hash != "0xc" {
		t.Fatalf("unexpected filtered records %#v", ok)
	}
}

func TestUpdateStatusOnlyMovesForward(t *testing.T) {
	l := newTestLog(NewMemoryKV())
	ctx := context.Background()
	if _, err := l.Add(ctx, addr, Record{Hash: "0xAA", Type: TypeClaim}); err != nil {
		t.Fatal(err)
	}

	block := uint64(77)
	rec, err := l.UpdateStatus(ctx, addr, "0xaa", StatusUpdate{Status: StatusSuccess, BlockNumber: &block})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if rec.Status != StatusSuccess || rec.BlockNumber == nil || *rec.BlockNumber != 77 {
		t.Fatalf("unexpected record %#v", rec)
	}

	if _, err := l.UpdateStatus(ctx, addr, "0xaa", StatusUpdate{Status: StatusPending}); !errors.Is(err, ErrStatusRegression) {
		t.Fatalf("expected ErrStatusRegression, got %v", err)
	}
	if _, err := l.UpdateStatus(ctx, addr, "0xaa", StatusUpdate{Status: StatusFailed}); !errors.Is(err, ErrStatusRegression) {
		t.Fatalf("settled records must not flip, got %v", err)
	}
	if _, err := l.UpdateStatus(ctx, addr, "0xaa", StatusUpdate{Status: StatusSuccess}); err != nil {
		t.Fatalf("repeating the same status is allowed, got %v", err)
	}
	if _, err := l.UpdateStatus(ctx, addr, "0xbb", StatusUpdate{Status: StatusSuccess}); !errors.Is(err, ErrRecordNotFound) {
		t.Fatalf("expected ErrRecordNotFound, got %v", err)
	}
}

func TestAddValidates(t *testing.T) {
	l := newTestLog(NewMemoryKV())
	if _, err := l.Add(context.Background(), addr, Record{Type: TypeClaim}); err == nil {
		t.Fatal("missing hash should fail")
	}
	if _, err := l.Add(context.Background(), addr, Record{Hash: "0x1", Type: "swap"}); err == nil {
		t.Fatal("unknown type should fail")
	}
}

func TestAddAndUpdateNormaliseCase(t *testing.T) {
	l := newTestLog(NewMemoryKV())
	ctx := context.Background()

	rec, err := l.Add(ctx, addr, Record{Hash: "0xaa", Type: "Purchase", Status: " PENDING "})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if rec.Type != TypePurchase || rec.Status != StatusPending {
		t.Fatalf("stored values should be normalised, got %q %q", rec.Type, rec.Status)
	}
	records, _ := l.List(ctx, addr, Filter{Type: TypePurchase, Status: StatusPending})
	if len(records) != 1 {
		t.Fatalf("filter should match the normalised record, got %#v", records)
	}

	updated, err := l.UpdateStatus(ctx, addr, "0xAA", StatusUpdate{Status: "SUCCESS"})
	if err != nil {
		t.Fatalf("upper-case status should settle the record: %v", err)
	}
	if updated.Status != StatusSuccess {
		t.Fatalf("expected success, got %q", updated.Status)
	}
}

func TestClear(t *testing.T) {
	l := newTestLog(NewMemoryKV())
	ctx := context.Background()
	_, _ = l.Add(ctx, addr, Record{Hash: "0x1", Type: TypeTransfer})
	if err := l.Clear(ctx, addr); err != nil {
		t.Fatal(err)
	}
	records, _ := l.List(ctx, addr, Filter{})
	if len(records) != 0 {
		t.Fatalf("expected empty log, got %#v", records)
	}
}

func TestFileKVRoundTrip(t *testing.T) {
	kv, err := NewFileKV(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	l := newTestLog(kv)
	ctx := context.Background()
	_, _ = l.Add(ctx, addr, Record{Hash: "0x1", Type: TypeApprove})
	_, _ = l.Add(ctx, addr, Record{Hash: "0x2", Type: TypeApprove})

	reopened := newTestLog(kv)
	records, err := reopened.List(ctx, addr, Filter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 2 || records[0].Hash != "0x2" {
		t.Fatalf("unexpected persisted records %#v", records)
	}

	if _, _, err := kv.Get(ctx, "../escape"); err == nil {
		t.Fatal("path separators must be rejected")
	}
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteCSV(&buf, nil); err != nil {
		t.Fatal(err)
	}
	if buf.String() != "Hash,Type,Amount,Date,Status,From,To,Block\n" {
		t.Fatalf("empty export should be header only, got %q", buf.String())
	}

	buf.Reset()
	block := uint64(12)
	err := WriteCSV(&buf, []Record{{
		Hash:        "0x1",
		Type:        TypeClaim,
		Amount:      "100",
		Timestamp:   time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC).UnixMilli(),
		Status:      StatusSuccess,
		From:        "0xfrom",
		To:          "0xto",
		BlockNumber: &block,
	}})
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 || lines[1] != "0x1,claim,100,2026-01-02T03:04:05Z,success,0xfrom,0xto,12" {
		t.Fatalf("unexpected csv %q", buf.String())
	}
}
