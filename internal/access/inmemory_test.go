package access

import (
	"context"
	"errors"
	"testing"
)

func TestInMemoryKeyDuplicateNpub(t *testing.T) {
	store := NewInMemory()
	ctx := context.Background()

	if err := store.Keys(ctx).Create(ctx, &Key{Npub: testNpub, Status: true}); err != nil {
		t.Fatalf("create: %v", err)
	}
	err := store.Keys(ctx).Create(ctx, &Key{Npub: testNpub, Status: true})
	if !errors.Is(err, ErrAlreadyExists) {
		t.Fatalf("duplicate npub: got %v, want ErrAlreadyExists", err)
	}
}

func TestInMemoryKeyRejectsBadNpub(t *testing.T) {
	store := NewInMemory()
	ctx := context.Background()

	err := store.Keys(ctx).Create(ctx, &Key{Npub: "not-an-npub"})
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("got %v, want ErrInvalidInput", err)
	}
}

func TestInMemoryToggleFlipsStatus(t *testing.T) {
	store := NewInMemory()
	ctx := context.Background()

	key := &Key{Npub: testNpub, Status: true}
	if err := store.Keys(ctx).Create(ctx, key); err != nil {
		t.Fatalf("create: %v", err)
	}

	toggled, err := store.Keys(ctx).Toggle(ctx, key.ID)
	if err != nil {
		t.Fatalf("toggle: %v", err)
	}
	if toggled.Status {
		t.Fatal("first toggle must disable")
	}
	toggled, err = store.Keys(ctx).Toggle(ctx, key.ID)
	if err != nil {
		t.Fatalf("toggle: %v", err)
	}
	if !toggled.Status {
		t.Fatal("second toggle must re-enable")
	}
}

func TestInMemoryPolicyDeleteNullsReferences(t *testing.T) {
	store := NewInMemory()
	ctx := context.Background()

	policy := &Policy{Name: "p"}
	if err := store.Policies(ctx).Create(ctx, policy); err != nil {
		t.Fatalf("create policy: %v", err)
	}
	group := &Group{Name: "g", PolicyID: policy.ID}
	if err := store.Groups(ctx).Create(ctx, group); err != nil {
		t.Fatalf("create group: %v", err)
	}
	key := &Key{Npub: testNpub, Status: true, PolicyID: policy.ID, GroupID: group.ID}
	if err := store.Keys(ctx).Create(ctx, key); err != nil {
		t.Fatalf("create key: %v", err)
	}

	if err := store.Policies(ctx).Delete(ctx, policy.ID); err != nil {
		t.Fatalf("delete policy: %v", err)
	}

	gotKey, err := store.Keys(ctx).Find(ctx, key.ID)
	if err != nil {
		t.Fatalf("find key: %v", err)
	}
	if gotKey.PolicyID != "" {
		t.Fatalf("key policy reference = %q, want cleared", gotKey.PolicyID)
	}
	gotGroup, err := store.Groups(ctx).Find(ctx, group.ID)
	if err != nil {
		t.Fatalf("find group: %v", err)
	}
	if gotGroup.PolicyID != "" {
		t.Fatalf("group policy reference = %q, want cleared", gotGroup.PolicyID)
	}
}

func TestInMemoryGroupDeleteNullsKeyReferences(t *testing.T) {
	store := NewInMemory()
	ctx := context.Background()

	group := &Group{Name: "g"}
	if err := store.Groups(ctx).Create(ctx, group); err != nil {
		t.Fatalf("create group: %v", err)
	}
	key := &Key{Npub: testNpub, Status: true, GroupID: group.ID}
	if err := store.Keys(ctx).Create(ctx, key); err != nil {
		t.Fatalf("create key: %v", err)
	}

	if err := store.Groups(ctx).Delete(ctx, group.ID); err != nil {
		t.Fatalf("delete group: %v", err)
	}

	got, err := store.Keys(ctx).Find(ctx, key.ID)
	if err != nil {
		t.Fatalf("find key: %v", err)
	}
	if got.GroupID != "" {
		t.Fatalf("key group reference = %q, want cleared", got.GroupID)
	}
}

func TestInMemoryMembers(t *testing.T) {
	store := NewInMemory()
	ctx := context.Background()

	group := &Group{Name: "g"}
	if err := store.Groups(ctx).Create(ctx, group); err != nil {
		t.Fatalf("create group: %v", err)
	}
	member := &Key{Npub: testNpub, Status: true, GroupID: group.ID}
	if err := store.Keys(ctx).Create(ctx, member); err != nil {
		t.Fatalf("create key: %v", err)
	}
	other := &Key{Npub: "npub1bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb", Status: true}
	if err := store.Keys(ctx).Create(ctx, other); err != nil {
		t.Fatalf("create key: %v", err)
	}

	members, err := store.Groups(ctx).Members(ctx, group.ID)
	if err != nil {
		t.Fatalf("members: %v", err)
	}
	if len(members) != 1 || members[0].ID != member.ID {
		t.Fatalf("members = %+v", members)
	}

	if _, err := store.Groups(ctx).Members(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("members of unknown group: got %v, want ErrNotFound", err)
	}
}
