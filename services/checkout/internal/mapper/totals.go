package mapper

import (
	"github.com/accordsai/checkoutlane/services/checkout/internal/order"
	"github.com/accordsai/checkoutlane/services/checkout/internal/protocol"
)

// Totals lists the order totals in protocol order. Optional entries appear
// only when non-zero; discounts are negative.
func Totals(o *order.Order) []protocol.Total {
	itemsBase := int64(0)
	for _, it := range o.Items {
		itemsBase += it.UnitPrice * int64(it.Quantity)
	}
	itemsDiscount := abs(o.AdjustmentsTotalRecursively(order.AdjustmentOrderItemPromotion, order.AdjustmentOrderUnitPromotion))
	orderDiscount := abs(o.AdjustmentsTotal(order.AdjustmentOrderPromotion))
	shipping := o.AdjustmentsTotal(order.AdjustmentShipping) - abs(o.AdjustmentsTotal(order.AdjustmentOrderShippingPromotion))
	if shipping < 0 {
		shipping = 0
	}

	out := []protocol.Total{{Type: protocol.TotalItemsBaseAmount, DisplayText: "Items", Amount: itemsBase}}
	if itemsDiscount > 0 {
		out = append(out, protocol.Total{Type: protocol.TotalItemsDiscount, DisplayText: "Item Discounts", Amount: -itemsDiscount})
	}
	out = append(out, protocol.Total{Type: protocol.TotalSubtotal, DisplayText: "Subtotal", Amount: itemsBase - itemsDiscount})
	if orderDiscount > 0 {
		out = append(out, protocol.Total{Type: protocol.TotalDiscount, DisplayText: "Discount", Amount: -orderDiscount})
	}
	if shipping > 0 {
		out = append(out, protocol.Total{Type: protocol.TotalFulfillment, DisplayText: "Shipping", Amount: shipping})
	}
	if o.TaxTotal > 0 {
		out = append(out, protocol.Total{Type: protocol.TotalTax, DisplayText: "Tax", Amount: o.TaxTotal})
	}
	return append(out, protocol.Total{Type: protocol.TotalTotal, DisplayText: "Total", Amount: o.Total})
}

func abs(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
