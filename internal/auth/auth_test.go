package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"course-quiz-engine/internal/domain"
)

func TestIssueAndVerify(t *testing.T) {
	tokens := NewTokens("secret", "course-quiz-engine")

	raw, err := tokens.Issue(Identity{UserID: "s1", Role: domain.RoleStudent}, time.Hour)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	id, err := tokens.Verify(raw)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if id.UserID != "s1" || !id.IsStudent() {
		t.Fatalf("unexpected identity %+v", id)
	}
}

func TestVerifyRejectsForeignAndExpiredTokens(t *testing.T) {
	tokens := NewTokens("secret", "course-quiz-engine")
	other := NewTokens("other-secret", "course-quiz-engine")

	raw, _ := other.Issue(Identity{UserID: "s1", Role: domain.RoleStudent}, time.Hour)
	if _, err := tokens.Verify(raw); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected invalid token for foreign secret, got %v", err)
	}

	expired, _ := tokens.Issue(Identity{UserID: "s1", Role: domain.RoleTeacher}, -time.Minute)
	if _, err := tokens.Verify(expired); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected invalid token when expired, got %v", err)
	}
}

func TestContextIdentity(t *testing.T) {
	if _, err := FromContext(context.Background()); !errors.Is(err, ErrNoIdentity) {
		t.Fatalf("expected ErrNoIdentity, got %v", err)
	}
	ctx := WithIdentity(context.Background(), Identity{UserID: "t1", Role: domain.RoleTeacher})
	id, err := FromContext(ctx)
	if err != nil || !id.IsTeacher() {
		t.Fatalf("unexpected identity %+v err=%v", id, err)
	}
}
