package retail

import (
	"encoding/json"
	"fmt"
	"math"
)

// Cart holds at most one line per product, every line with quantity >= 1.
// It is a value: operations return a new Cart and never modify the receiver,
// so old values stay valid for undo and comparison. The zero Cart is empty.
type Cart struct {
	lines map[string]CartLine
	order []string
}

func (c Cart) clone() Cart {
	out := Cart{
		lines: make(map[string]CartLine, len(c.lines)+1),
		order: make([]string, len(c.order), len(c.order)+1),
	}
	for k, v := range c.lines {
		out.lines[k] = v
	}
	copy(out.order, c.order)
	return out
}

func (c Cart) without(productID string) Cart {
	out := c.clone()
	delete(out.lines, productID)
	for i, id := range out.order {
		if id == productID {
			out.order = append(out.order[:i], out.order[i+1:]...)
			break
		}
	}
	return out
}

// AddItem merges into the existing line (+1, price snapshot unchanged) or starts a new
// line with quantity 1 at the product's current price.
func AddItem(c Cart, p Product) Cart {
	out := c.clone()
	if line, ok := out.lines[p.ID]; ok {
		line.Quantity++
		out.lines[p.ID] = line
		return out
	}
	out.lines[p.ID] = CartLine{ProductID: p.ID, Name: p.Name, Quantity: 1, UnitPrice: p.UnitPrice}
	out.order = append(out.order, p.ID)
	return out
}

// SetQuantity replaces the quantity of an existing line. Zero removes the line; a
// positive quantity for a product that has no line is a no-op.
func SetQuantity(c Cart, productID string, n int) (Cart, error) {
	if n < 0 {
		return c, fmt.Errorf("set quantity %d for %s: %w", n, productID, ErrInvalidQuantity)
	}
	if n == 0 {
		return RemoveItem(c, productID), nil
	}
	line, ok := c.lines[productID]
	if !ok {
		return c, nil
	}
	out := c.clone()
	line.Quantity = n
	out.lines[productID] = line
	if _, err := TotalChecked(out); err != nil {
		return c, fmt.Errorf("set quantity %d for %s: %w", n, productID, err)
	}
	return out, nil
}

func RemoveItem(c Cart, productID string) Cart {
	if _, ok := c.lines[productID]; !ok {
		return c
	}
	return c.without(productID)
}

// Total is recomputed from the lines on every call.
func Total(c Cart) Money {
	var sum Money
	for _, line := range c.lines {
		sum += line.Subtotal()
	}
	return sum
}

// TotalChecked is Total that fails with ErrInvalidQuantity instead of wrapping past
// the largest representable amount.
func TotalChecked(c Cart) (Money, error) {
	var sum Money
	for _, line := range c.lines {
		sub, ok := line.checkedSubtotal()
		if !ok || sub > math.MaxInt64-sum {
			return 0, fmt.Errorf("cart total overflows: %w", ErrInvalidQuantity)
		}
		sum += sub
	}
	return sum, nil
}

func (c Cart) Len() int { return len(c.lines) }

func (c Cart) IsEmpty() bool { return len(c.lines) == 0 }

func (c Cart) Line(productID string) (CartLine, bool) {
	line, ok := c.lines[productID]
	return line, ok
}

// ItemCount is the sum of quantities.
func (c Cart) ItemCount() int {
	n := 0
	for _, line := range c.lines {
		n += line.Quantity
	}
	return n
}

// Lines returns a copy of the lines in the order they were first added.
func (c Cart) Lines() []CartLine {
	out := make([]CartLine, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.lines[id])
	}
	return out
}

type cartJSON struct {
	Lines []CartLine `json:"lines"`
}

func (c Cart) MarshalJSON() ([]byte, error) {
	return json.Marshal(cartJSON{Lines: c.Lines()})
}

func (c *Cart) UnmarshalJSON(b []byte) error {
	var raw cartJSON
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	out := Cart{}
	if len(raw.Lines) > 0 {
		out.lines = make(map[string]CartLine, len(raw.Lines))
	}
	for _, line := range raw.Lines {
		if line.Quantity < 1 {
			return fmt.Errorf("cart line %s: %w", line.ProductID, ErrInvalidQuantity)
		}
		if _, dup := out.lines[line.ProductID]; dup {
			return fmt.Errorf("cart line %s: duplicate product", line.ProductID)
		}
		out.lines[line.ProductID] = line
		out.order = append(out.order, line.ProductID)
	}
	*c = out
	return nil
}
