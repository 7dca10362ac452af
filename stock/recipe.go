/*
recipe.go - Product-to-ingredient requirement resolution

PURPOSE:
  Expands a product + chosen size into concrete ingredient requirements.
  Each recipe line declares either a per-size quantity map, a flat
  quantity, or both. When the requested size has no per-size entry, the
  flat quantity is scaled by a configurable size multiplier table.

SIZE MULTIPLIERS ARE DATA, NOT CODE:
  The multiplier table is injected configuration. Unlisted sizes default
  to 1.0, so adding a new cup size never requires a code change.
*/
package stock

import "github.com/shopspring/decimal"

// =============================================================================
// PRODUCT AND RECIPE LINES
// =============================================================================

type Size string

type Product struct {
	ID    string
	Name  string
	Items []RecipeItem
}

// RecipeItem is one ingredient line of a product's recipe.
type RecipeItem struct {
	IngredientID IngredientID

	// FlatQuantity is the base requirement, scaled by the size multiplier
	// when no per-size override exists.
	FlatQuantity Quantity

	// PerSize overrides the flat quantity for specific sizes.
	PerSize map[Size]Quantity
}

// Requirement is a resolved ingredient demand, still in the recipe's unit.
// The consumption engine converts it to the ingredient's base unit.
type Requirement struct {
	IngredientID IngredientID
	Quantity     Quantity
}

// =============================================================================
// RESOLVER
// =============================================================================

// SizeMultipliers maps a size to the factor applied to flat quantities.
type SizeMultipliers map[Size]decimal.Decimal

// Resolver expands products into ingredient requirements.
type Resolver struct {
	Multipliers SizeMultipliers
}

func NewResolver(multipliers SizeMultipliers) *Resolver {
	if multipliers == nil {
		multipliers = SizeMultipliers{}
	}
	return &Resolver{Multipliers: multipliers}
}

// multiplierFor returns the configured factor for a size, defaulting to 1.0.
func (r *Resolver) multiplierFor(size Size) decimal.Decimal {
	if m, ok := r.Multipliers[size]; ok {
		return m
	}
	return decimal.NewFromInt(1)
}

// Resolve expands product+size into per-ingredient requirements.
// Fails fast with ErrRecipeIncomplete when the product declares no
// ingredients - a sellable product with an empty recipe is a data error,
// not a free sale.
func (r *Resolver) Resolve(product Product, size Size) ([]Requirement, error) {
	if len(product.Items) == 0 {
		return nil, ErrRecipeIncomplete
	}

	reqs := make([]Requirement, 0, len(product.Items))
	for _, item := range product.Items {
		if q, ok := item.PerSize[size]; ok {
			reqs = append(reqs, Requirement{IngredientID: item.IngredientID, Quantity: q})
			continue
		}
		scaled := item.FlatQuantity.Mul(r.multiplierFor(size))
		reqs = append(reqs, Requirement{IngredientID: item.IngredientID, Quantity: scaled})
	}
	return reqs, nil
}
