package domain

// NetUnitPrice applies a percentage discount to a catalog price. Plain float64
// arithmetic on purpose: downstream totals must reproduce the catalog's own
// double-precision results exactly.
func NetUnitPrice(unitPrice, discountPercent float64) float64 {
	return unitPrice - unitPrice*discountPercent/100
}

// PriceLine returns the net unit price and the resulting line subtotal.
func PriceLine(unitPrice, discountPercent float64, quantity int) (net, subtotal float64) {
	net = NetUnitPrice(unitPrice, discountPercent)
	return net, net * float64(quantity)
}
