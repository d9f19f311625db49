package registry

import (
	"testing"

	"github.com/google/uuid"
)

func TestInsertAndLookup(t *testing.T) {
	tbl := New()
	app := App{Origin: "https://a.localhost", Hostname: "a.localhost", UpstreamHost: "127.0.0.1", UpstreamPort: 4000, Connection: PeerConnection(uuid.New())}
	if err := tbl.Insert(app); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	got, ok := tbl.Lookup("a.localhost")
	if !ok {
		t.Fatal("expected lookup hit")
	}
	if got.UpstreamPort != 4000 {
		t.Fatalf("unexpected upstream port: %d", got.UpstreamPort)
	}
}

func TestInsertConflictLeavesFirstAuthoritative(t *testing.T) {
	tbl := New()
	first := App{Origin: "https://a.localhost", Hostname: "a.localhost", UpstreamHost: "127.0.0.1", UpstreamPort: 1111, Connection: PeerConnection(uuid.New())}
	second := App{Origin: "https://a.localhost", Hostname: "a.localhost", UpstreamHost: "127.0.0.1", UpstreamPort: 2222, Connection: PeerConnection(uuid.New())}

	if err := tbl.Insert(first); err != nil {
		t.Fatalf("first insert: %v", err)
	}
	err := tbl.Insert(second)
	if err == nil {
		t.Fatal("expected conflict error on second insert")
	}
	if _, ok := err.(*ErrConflict); !ok {
		t.Fatalf("expected *ErrConflict, got %T", err)
	}

	got, _ := tbl.Lookup("a.localhost")
	if got.UpstreamPort != 1111 {
		t.Fatalf("first registration must remain authoritative, got port %d", got.UpstreamPort)
	}
}

func TestRemove(t *testing.T) {
	tbl := New()
	tbl.Insert(App{Hostname: "a.localhost", Connection: PeerConnection(uuid.New())})
	if !tbl.Remove("a.localhost") {
		t.Fatal("expected removal to report true")
	}
	if tbl.Remove("a.localhost") {
		t.Fatal("expected idempotent removal to report false")
	}
}

func TestRemoveByConnectionSkipsOwner(t *testing.T) {
	tbl := New()
	connID := uuid.New()
	tbl.Insert(App{Hostname: "peer.localhost", Connection: PeerConnection(connID)})
	tbl.Insert(App{Hostname: "owner.localhost", Connection: OwnerConnection()})

	removed := tbl.RemoveByConnection(connID)
	if len(removed) != 1 || removed[0] != "peer.localhost" {
		t.Fatalf("unexpected removed set: %v", removed)
	}
	if _, ok := tbl.Lookup("owner.localhost"); !ok {
		t.Fatal("owner registration must survive RemoveByConnection")
	}
}

func TestSnapshotIsolated(t *testing.T) {
	tbl := New()
	tbl.Insert(App{Hostname: "a.localhost", Connection: PeerConnection(uuid.New())})
	snap := tbl.Snapshot()
	tbl.Insert(App{Hostname: "b.localhost", Connection: PeerConnection(uuid.New())})
	if len(snap) != 1 {
		t.Fatalf("snapshot should not observe later inserts, got %d entries", len(snap))
	}
}
