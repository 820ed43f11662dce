package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/scrippt-tech/scrippt-server/internal/domain"
	"github.com/scrippt-tech/scrippt-server/internal/repository"
)

type profileFixture struct {
	repo    *repository.MemoryAccountRepository
	svc     *ProfileService
	account domain.Account
	now     time.Time
}

func newProfileFixture(t *testing.T) *profileFixture {
	t.Helper()
	f := &profileFixture{
		repo: repository.NewMemoryAccountRepository(),
		now:  time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	f.account = domain.Account{
		ID:        "acc-1",
		Name:      "Jane",
		Email:     "jane@x.com",
		Profile:   domain.NewProfile(f.now),
		CreatedAt: f.now,
		UpdatedAt: f.now,
	}
	if err := f.repo.Create(context.Background(), f.account); err != nil {
		t.Fatalf("create account: %v", err)
	}
	f.svc = NewProfileService(zap.NewNop(), f.repo, 5)
	f.svc.now = func() time.Time { return f.now }
	return f
}

func patchOp(t *testing.T, op, target string, value domain.ProfileValue) domain.PatchOperation {
	t.Helper()
	raw, err := json.Marshal(value)
	if err != nil {
		t.Fatalf("marshal value: %v", err)
	}
	return domain.PatchOperation{Op: op, Target: target, Value: raw}
}

func addSkill(t *testing.T, name string) domain.PatchOperation {
	return patchOp(t, "add", "skills", domain.ItemValue(domain.Skill{Skill: name}))
}

func asPatchError(t *testing.T, err error) *PatchError {
	t.Helper()
	var patchErr *PatchError
	if !errors.As(err, &patchErr) {
		t.Fatalf("expected *PatchError, got %v", err)
	}
	return patchErr
}

func TestProfileService_AddAssignsServerFieldID(t *testing.T) {
	f := newProfileFixture(t)
	ctx := context.Background()

	clientSupplied := patchOp(t, "add", "experience", domain.ItemValue(domain.Experience{
		FieldID: "client-chosen",
		Name:    "Backend engineer",
		Type:    domain.ExperienceWork,
		At:      "Acme",
	}))
	account, err := f.svc.Apply(ctx, f.account.ID, []domain.PatchOperation{clientSupplied, addSkill(t, "go")})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if len(account.Profile.Experience) != 1 || len(account.Profile.Skills) != 1 {
		t.Fatalf("unexpected profile: %+v", account.Profile)
	}
	exp := account.Profile.Experience[0]
	if exp.FieldID == "" || exp.FieldID == "client-chosen" {
		t.Fatalf("expected server-assigned field id, got %q", exp.FieldID)
	}
	if exp.FieldID == account.Profile.Skills[0].FieldID {
		t.Fatalf("expected distinct field ids")
	}
	if exp.Name != "Backend engineer" || exp.Type != domain.ExperienceWork {
		t.Fatalf("unexpected experience: %+v", exp)
	}
}

func TestProfileService_LimitPerCollection(t *testing.T) {
	f := newProfileFixture(t)
	ctx := context.Background()

	var ops []domain.PatchOperation
	for i := 0; i < 5; i++ {
		ops = append(ops, addSkill(t, fmt.Sprintf("skill-%d", i)))
	}
	if _, err := f.svc.Apply(ctx, f.account.ID, ops); err != nil {
		t.Fatalf("apply five adds: %v", err)
	}

	_, err := f.svc.Apply(ctx, f.account.ID, []domain.PatchOperation{addSkill(t, "sixth")})
	patchErr := asPatchError(t, err)
	if !errors.Is(err, ErrLimitExceeded) || patchErr.Index != 0 || patchErr.Code() != "limit_exceeded" {
		t.Fatalf("expected limit_exceeded at index 0, got %+v", patchErr)
	}

	account, _ := f.repo.GetByID(ctx, f.account.ID)
	if len(account.Profile.Skills) != 5 {
		t.Fatalf("expected 5 skills, got %d", len(account.Profile.Skills))
	}

	edu := patchOp(t, "add", "education", domain.ItemValue(domain.Education{School: "MIT"}))
	if _, err := f.svc.Apply(ctx, f.account.ID, []domain.PatchOperation{edu}); err != nil {
		t.Fatalf("expected other collections unaffected, got %v", err)
	}
}

func TestProfileService_RemoveThenAddNeverReusesFieldID(t *testing.T) {
	f := newProfileFixture(t)
	ctx := context.Background()
	seen := make(map[string]bool)

	for round := 0; round < 3; round++ {
		account, err := f.svc.Apply(ctx, f.account.ID, []domain.PatchOperation{addSkill(t, "go")})
		if err != nil {
			t.Fatalf("add: %v", err)
		}
		id := account.Profile.Skills[0].FieldID
		if seen[id] {
			t.Fatalf("field id %q reused", id)
		}
		seen[id] = true

		remove := patchOp(t, "remove", "skills", domain.FieldIDValue(id))
		if _, err := f.svc.Apply(ctx, f.account.ID, []domain.PatchOperation{remove}); err != nil {
			t.Fatalf("remove: %v", err)
		}
	}
}

func TestProfileService_PartialSuccess(t *testing.T) {
	f := newProfileFixture(t)
	ctx := context.Background()

	ops := []domain.PatchOperation{
		addSkill(t, "go"),
		addSkill(t, "sql"),
		patchOp(t, "update", "skills", domain.ItemValue(domain.Skill{FieldID: "missing", Skill: "rust"})),
		addSkill(t, "never-applied"),
	}
	_, err := f.svc.Apply(ctx, f.account.ID, ops)
	patchErr := asPatchError(t, err)
	if patchErr.Index != 2 || patchErr.Applied() != 2 || !errors.Is(err, ErrFieldNotFound) {
		t.Fatalf("expected field_not_found at index 2, got %+v", patchErr)
	}
	if patchErr.Code() != "field_not_found" {
		t.Fatalf("unexpected code %q", patchErr.Code())
	}

	account, _ := f.repo.GetByID(ctx, f.account.ID)
	if len(account.Profile.Skills) != 2 {
		t.Fatalf("expected the first two operations to stay applied, got %+v", account.Profile.Skills)
	}
}

func TestProfileService_UpdateReplacesAndKeepsFieldID(t *testing.T) {
	f := newProfileFixture(t)
	ctx := context.Background()

	account, err := f.svc.Apply(ctx, f.account.ID, []domain.PatchOperation{
		patchOp(t, "add", "education", domain.ItemValue(domain.Education{School: "MIT", Degree: "BSc"})),
	})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	id := account.Profile.Education[0].FieldID

	f.now = f.now.Add(time.Hour)
	update := patchOp(t, "update", "education", domain.ItemValue(domain.Education{
		FieldID:      id,
		School:       "Stanford",
		FieldOfStudy: "CS",
		Current:      true,
	}))
	account, err = f.svc.Apply(ctx, f.account.ID, []domain.PatchOperation{update})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	got := account.Profile.Education[0]
	want := domain.Education{FieldID: id, School: "Stanford", FieldOfStudy: "CS", Current: true}
	if got != want {
		t.Fatalf("expected wholesale replacement %+v, got %+v", want, got)
	}
	if !account.Profile.UpdatedAt.Equal(f.now) {
		t.Fatalf("expected date_updated bumped to %v, got %v", f.now, account.Profile.UpdatedAt)
	}
}

func TestProfileService_RemoveByItemOrFieldID(t *testing.T) {
	f := newProfileFixture(t)
	ctx := context.Background()

	account, err := f.svc.Apply(ctx, f.account.ID, []domain.PatchOperation{addSkill(t, "go"), addSkill(t, "sql")})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	first := account.Profile.Skills[0]
	second := account.Profile.Skills[1]

	account, err = f.svc.Apply(ctx, f.account.ID, []domain.PatchOperation{
		patchOp(t, "remove", "skills", domain.ItemValue(first)),
		patchOp(t, "remove", "skills", domain.FieldIDValue(second.FieldID)),
	})
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	if len(account.Profile.Skills) != 0 {
		t.Fatalf("expected empty skills, got %+v", account.Profile.Skills)
	}

	_, err = f.svc.Apply(ctx, f.account.ID, []domain.PatchOperation{
		patchOp(t, "remove", "skills", domain.FieldIDValue(first.FieldID)),
	})
	if !errors.Is(err, ErrFieldNotFound) {
		t.Fatalf("expected ErrFieldNotFound on second remove, got %v", err)
	}
}

func TestProfileService_RejectsInvalidInput(t *testing.T) {
	f := newProfileFixture(t)
	ctx := context.Background()
	skill := domain.ItemValue(domain.Skill{Skill: "go"})

	cases := []struct {
		name string
		op   domain.PatchOperation
		want error
		code string
	}{
		{"unknown op", patchOp(t, "move", "skills", skill), ErrInvalidOperation, "invalid_operation"},
		{"unknown target", patchOp(t, "add", "hobbies", skill), ErrInvalidTarget, "invalid_target"},
		{"tag does not match target", patchOp(t, "add", "education", skill), ErrMalformedValue, "malformed_value"},
		{"add with field id only", patchOp(t, "add", "skills", domain.FieldIDValue("x")), ErrMalformedValue, "malformed_value"},
		{"unknown value type", domain.PatchOperation{Op: "add", Target: "skills", Value: json.RawMessage(`{"type":"hobby","value":{}}`)}, ErrMalformedValue, "malformed_value"},
		{"missing value", domain.PatchOperation{Op: "remove", Target: "skills"}, ErrMalformedValue, "malformed_value"},
		{"bad experience type", domain.PatchOperation{Op: "add", Target: "experience", Value: json.RawMessage(`{"type":"experience","value":{"name":"x","type":"hobby"}}`)}, ErrMalformedValue, "malformed_value"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.Apply(ctx, f.account.ID, []domain.PatchOperation{tc.op})
			patchErr := asPatchError(t, err)
			if !errors.Is(err, tc.want) || patchErr.Code() != tc.code {
				t.Fatalf("expected %v (%s), got %v (%s)", tc.want, tc.code, err, patchErr.Code())
			}
		})
	}
}

func TestProfileService_UnknownAccount(t *testing.T) {
	f := newProfileFixture(t)
	_, err := f.svc.Apply(context.Background(), "nope", []domain.PatchOperation{addSkill(t, "go")})
	if !errors.Is(err, domain.ErrAccountNotFound) {
		t.Fatalf("expected ErrAccountNotFound, got %v", err)
	}
}

func TestProfileService_ReplaceProfileBypassesLimit(t *testing.T) {
	f := newProfileFixture(t)
	ctx := context.Background()

	imported := domain.Profile{
		Education: []domain.Education{{FieldID: "keep-me?", School: "MIT"}},
	}
	for i := 0; i < 7; i++ {
		imported.Skills = append(imported.Skills, domain.Skill{FieldID: "dup", Skill: fmt.Sprintf("skill-%d", i)})
	}

	account, err := f.svc.ReplaceProfile(ctx, f.account.ID, imported)
	if err != nil {
		t.Fatalf("replace profile: %v", err)
	}
	if len(account.Profile.Skills) != 7 {
		t.Fatalf("expected import to bypass the limit, got %d skills", len(account.Profile.Skills))
	}
	ids := map[string]bool{account.Profile.Education[0].FieldID: true}
	if account.Profile.Education[0].FieldID == "keep-me?" {
		t.Fatalf("expected fresh field id on education")
	}
	for _, s := range account.Profile.Skills {
		if s.FieldID == "dup" || ids[s.FieldID] {
			t.Fatalf("expected fresh unique field ids, got %q", s.FieldID)
		}
		ids[s.FieldID] = true
	}
	if account.Profile.Experience == nil {
		t.Fatalf("expected empty experience slice to be preserved as empty")
	}

	_, err = f.svc.Apply(ctx, f.account.ID, []domain.PatchOperation{addSkill(t, "eighth")})
	if !errors.Is(err, ErrLimitExceeded) {
		t.Fatalf("expected patch add to respect the limit after import, got %v", err)
	}
}

func TestProfileService_StopsOnCanceledContext(t *testing.T) {
	f := newProfileFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.svc.Apply(ctx, f.account.ID, []domain.PatchOperation{addSkill(t, "go")})
	patchErr := asPatchError(t, err)
	if !errors.Is(err, context.Canceled) || patchErr.Applied() != 0 {
		t.Fatalf("expected cancellation before the first operation, got %+v", patchErr)
	}
}
