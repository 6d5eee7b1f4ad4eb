package validation

import (
	"context"
	"errors"
	"testing"

	"github.com/halcyonlabs/agenttrust/internal/identity"
	"github.com/halcyonlabs/agenttrust/internal/testutil"
)

func TestPostgresStore_AppendAndGet(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()

	ctx := context.Background()
	agent, err := identity.NewPostgresStore(db).Register(ctx,
		"0xaaaa000000000000000000000000000000000001", "server.example.com", "")
	if err != nil {
		t.Fatalf("register agent: %v", err)
	}

	store := NewPostgresStore(db)
	v, err := store.Append(ctx, &Validation{
		AgentID:       agent.ID,
		ValidatorAddr: "0xcccc000000000000000000000000000000000001",
		RequestHash:   "0xreq1",
		ResultCode:    ResultPass,
		EvidenceURI:   "https://evidence.example.com/1",
		Tag:           "latency",
	})
	if err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if v.ID != 0 {
		t.Errorf("first validation ID = %d, want 0", v.ID)
	}

	got, err := store.Get(ctx, v.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.ResultCode != ResultPass || got.Tag != "latency" {
		t.Errorf("got %+v", got)
	}

	_, err = store.Get(ctx, 999)
	if !errors.Is(err, ErrValidationNotFound) {
		t.Errorf("expected ErrValidationNotFound, got %v", err)
	}
}

func TestPostgresStore_ListByAgentAndCount(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()

	ctx := context.Background()
	idStore := identity.NewPostgresStore(db)
	first, err := idStore.Register(ctx, "0xaaaa000000000000000000000000000000000001", "one.example.com", "")
	if err != nil {
		t.Fatalf("register agent: %v", err)
	}
	second, err := idStore.Register(ctx, "0xaaaa000000000000000000000000000000000002", "two.example.com", "")
	if err != nil {
		t.Fatalf("register agent: %v", err)
	}

	store := NewPostgresStore(db)
	codes := []ResultCode{ResultPass, ResultFail, ResultDisputed}
	for i, code := range codes {
		if _, err := store.Append(ctx, &Validation{
			AgentID:       first.ID,
			ValidatorAddr: "0xcccc000000000000000000000000000000000001",
			RequestHash:   "0xreq",
			ResultCode:    code,
		}); err != nil {
			t.Fatalf("Append %d failed: %v", i, err)
		}
	}
	if _, err := store.Append(ctx, &Validation{
		AgentID:       second.ID,
		ValidatorAddr: "0xcccc000000000000000000000000000000000001",
		RequestHash:   "0xother",
		ResultCode:    ResultPass,
	}); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	list, err := store.ListByAgent(ctx, first.ID)
	if err != nil {
		t.Fatalf("ListByAgent failed: %v", err)
	}
	if len(list) != 3 {
		t.Fatalf("ListByAgent returned %d entries, want 3", len(list))
	}
	for i, code := range codes {
		if list[i].ResultCode != code {
			t.Errorf("entry %d code = %d, want %d", i, list[i].ResultCode, code)
		}
	}

	count, err := store.Count(ctx)
	if err != nil || count != 4 {
		t.Errorf("Count = %d, %v; want 4, nil", count, err)
	}
}
