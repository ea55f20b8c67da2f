package memory_test

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/vegshop/internal/domain"
	"github.com/vladislavdragonenkov/vegshop/internal/storage/memory"
)

func TestProductRepository_CRUD(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewProductRepository()

	p := domain.Product{ID: "p1", Name: "Tomato", Price: decimal.NewFromInt(40), Images: []domain.ProductImage{{URL: "u"}}}
	if err := repo.Create(ctx, p); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	p.Name = "Cherry tomato"
	if err := repo.Update(ctx, p); err != nil {
		t.Fatalf("update failed: %v", err)
	}
	got, err := repo.Get(ctx, "p1")
	if err != nil || got.Name != "Cherry tomato" {
		t.Fatalf("unexpected product %+v err=%v", got, err)
	}

	if err := repo.Delete(ctx, "p1"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if _, err := repo.Get(ctx, "p1"); !errors.Is(err, domain.ErrProductNotFound) {
		t.Fatalf("expected ErrProductNotFound, got %v", err)
	}
	if err := repo.Update(ctx, p); !errors.Is(err, domain.ErrProductNotFound) {
		t.Fatalf("expected ErrProductNotFound on update, got %v", err)
	}
}

func TestUserRepository_UniqueEmail(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewUserRepository()

	if err := repo.Create(ctx, domain.User{ID: "u1", Email: "Anna@Example.com"}); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if err := repo.Create(ctx, domain.User{ID: "u2", Email: "anna@example.com "}); !errors.Is(err, domain.ErrUserExists) {
		t.Fatalf("expected ErrUserExists, got %v", err)
	}

	got, err := repo.GetByEmail(ctx, "ANNA@example.com")
	if err != nil || got.ID != "u1" {
		t.Fatalf("unexpected user %+v err=%v", got, err)
	}
	if _, err := repo.Get(ctx, "u2"); !errors.Is(err, domain.ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}
