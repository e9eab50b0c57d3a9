package mapper

import (
	"fmt"

	"github.com/accordsai/checkoutlane/services/checkout/internal/order"
	"github.com/accordsai/checkoutlane/services/checkout/internal/protocol"
)

func LineItems(o *order.Order) []protocol.LineItem {
	out := make([]protocol.LineItem, 0, len(o.Items))
	for _, it := range o.Items {
		out = append(out, LineItem(it))
	}
	return out
}

func LineItem(it *order.Item) protocol.LineItem {
	base := it.UnitPrice * int64(it.Quantity)
	discount := it.AdjustmentsTotalRecursively(order.AdjustmentOrderItemPromotion, order.AdjustmentOrderUnitPromotion)
	if discount > 0 {
		discount = -discount
	}
	return protocol.LineItem{
		ID:         fmt.Sprintf("line_item_%d", it.ID),
		Item:       protocol.Item{ID: variantID(it.Variant), Quantity: it.Quantity},
		BaseAmount: base,
		Discount:   discount,
		Subtotal:   base + discount,
		Tax:        it.AdjustmentsTotalRecursively(order.AdjustmentTax),
		Total:      it.Total,
	}
}

func variantID(v *order.Variant) string {
	switch {
	case v == nil:
		return "unknown"
	case v.Code != "":
		return v.Code
	default:
		return fmt.Sprintf("variant_%d", v.ID)
	}
}
