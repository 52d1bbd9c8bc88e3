package cart

import (
	"errors"
	"testing"

	"github.com/gaaka/commerce/internal/domain"
)

func TestStore_AddMergesSameVariant(t *testing.T) {
	store := NewStore()

	id, err := store.Add(domain.CartLine{ID: "vase-1", Name: "Vase", Quantity: 1, UnitPrice: 4500, Variant: "blue"})
	if err != nil {
		t.Fatalf("Add error: %v", err)
	}
	if _, err := store.Add(domain.CartLine{ID: "vase-1", Name: "Vase", Quantity: 2, UnitPrice: 4500, Variant: "blue"}); err != nil {
		t.Fatalf("Add error: %v", err)
	}
	// Same product, different variant stays a separate line.
	if _, err := store.Add(domain.CartLine{ID: "vase-1", Name: "Vase", Quantity: 1, UnitPrice: 4500, Variant: "red"}); err != nil {
		t.Fatalf("Add error: %v", err)
	}

	items := store.Items()
	if len(items) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(items))
	}
	if items[0].ID != id || items[0].Quantity != 3 {
		t.Fatalf("expected merged quantity 3, got %+v", items[0])
	}

	summary := store.Summary()
	if summary.ItemCount != 4 || summary.Total != 4*4500 {
		t.Fatalf("unexpected summary %+v", summary)
	}
}

func TestStore_AddAssignsID(t *testing.T) {
	store := NewStore()
	id, err := store.Add(domain.CartLine{Name: "Bowl", Quantity: 1, UnitPrice: 2000})
	if err != nil {
		t.Fatalf("Add error: %v", err)
	}
	if id == "" {
		t.Fatalf("expected generated id")
	}
	if items := store.Items(); items[0].ID != id {
		t.Fatalf("expected id on stored line, got %+v", items[0])
	}
}

func TestStore_AddValidation(t *testing.T) {
	store := NewStore()
	if _, err := store.Add(domain.CartLine{Name: "Bad", Quantity: 0, UnitPrice: 100}); !errors.Is(err, ErrInvalidLine) {
		t.Fatalf("expected ErrInvalidLine, got %v", err)
	}
	if _, err := store.Add(domain.CartLine{Name: "Bad", Quantity: 1, UnitPrice: -1}); !errors.Is(err, ErrInvalidLine) {
		t.Fatalf("expected ErrInvalidLine, got %v", err)
	}
}

func TestStore_UpdateQuantity(t *testing.T) {
	store := NewStore()
	id, _ := store.Add(domain.CartLine{Name: "Cup", Quantity: 2, UnitPrice: 1200})

	if err := store.UpdateQuantity(id, 5); err != nil {
		t.Fatalf("UpdateQuantity error: %v", err)
	}
	if items := store.Items(); items[0].Quantity != 5 {
		t.Fatalf("expected quantity 5, got %d", items[0].Quantity)
	}

	if err := store.UpdateQuantity(id, 0); err != nil {
		t.Fatalf("UpdateQuantity error: %v", err)
	}
	if items := store.Items(); len(items) != 0 {
		t.Fatalf("expected line removed at quantity 0, got %+v", items)
	}

	if err := store.UpdateQuantity("missing", 1); !errors.Is(err, ErrLineNotFound) {
		t.Fatalf("expected ErrLineNotFound for unknown line, got %v", err)
	}
	if err := store.UpdateQuantity(id, -1); !errors.Is(err, ErrInvalidLine) {
		t.Fatalf("expected ErrInvalidLine for negative quantity, got %v", err)
	}
}

func TestStore_RemoveAndClear(t *testing.T) {
	store := NewStore()
	id, _ := store.Add(domain.CartLine{Name: "Cup", Quantity: 1, UnitPrice: 1200})
	store.Add(domain.CartLine{Name: "Plate", Quantity: 1, UnitPrice: 1800})

	store.Remove(id)
	store.Remove("missing") // no-op
	if items := store.Items(); len(items) != 1 {
		t.Fatalf("expected 1 line after remove, got %d", len(items))
	}

	store.Clear()
	if items := store.Items(); len(items) != 0 {
		t.Fatalf("expected empty cart after clear")
	}
	if summary := store.Summary(); summary.ItemCount != 0 || summary.Total != 0 {
		t.Fatalf("expected zero summary, got %+v", summary)
	}
}
