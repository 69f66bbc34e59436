// Package inventory derives stock classifications from raw quantity records.
//
// Status is never persisted; callers recompute it from the current record so
// a stale cached value can never be displayed.
package inventory

// StockStatus classifies a stock record into exactly one bucket.
type StockStatus string

const (
	StatusOutOfStock StockStatus = "out_of_stock"
	StatusLowStock   StockStatus = "low_stock"
	StatusOverstock  StockStatus = "overstocked"
	StatusInStock    StockStatus = "in_stock"
)

// DaysOfStockSentinel is returned by DaysOfStock when the sales velocity is
// zero, standing in for "effectively unlimited".
const DaysOfStockSentinel = 999

// Record holds the raw quantities for a single stocked product.
type Record struct {
	ProductID string `json:"product_id,omitempty"`
	// Current is the on-hand quantity.
	Current int `json:"current"`
	// Minimum is the configured floor below which the vendor considers the
	// item critically short. Informational only; it does not affect Status.
	Minimum int `json:"minimum"`
	// Maximum is the storage capacity. Zero means no cap is configured.
	Maximum int `json:"maximum"`
	// ReorderPoint is the quantity at or below which a restock should be
	// triggered.
	ReorderPoint int `json:"reorder_point"`
	// AverageDailySales is the recent sales velocity in units per day.
	AverageDailySales float64 `json:"average_daily_sales"`
}

// Status classifies the four quantities. Total over all non-negative inputs:
// out-of-stock wins, then low-stock, then overstocked (only when a maximum
// is configured), else in-stock.
// The minimum is accepted for signature parity with Record but does not
// participate in classification.
func Status(current, minimum, maximum, reorderPoint int) StockStatus {
	switch {
	case current == 0:
		return StatusOutOfStock
	case current <= reorderPoint:
		return StatusLowStock
	case maximum > 0 && current > maximum:
		return StatusOverstock
	default:
		return StatusInStock
	}
}

// DaysOfStock estimates how many days the current quantity lasts at the
// given velocity, flooring fractional days. A zero or negative velocity
// yields DaysOfStockSentinel rather than a division error.
func DaysOfStock(current int, averageDailySales float64) int {
	if averageDailySales <= 0 {
		return DaysOfStockSentinel
	}
	return int(float64(current) / averageDailySales)
}

// Status classifies the record.
func (r Record) Status() StockStatus {
	return Status(r.Current, r.Minimum, r.Maximum, r.ReorderPoint)
}

// DaysOfStock estimates remaining coverage for the record.
func (r Record) DaysOfStock() int {
	return DaysOfStock(r.Current, r.AverageDailySales)
}

// RestockQuantity suggests how many units to order when the record is at or
// below its reorder point. Fills to capacity when a maximum is configured,
// otherwise to twice the reorder point. Returns 0 when no restock is needed.
func (r Record) RestockQuantity() int {
	if r.Current > r.ReorderPoint {
		return 0
	}
	target := r.Maximum
	if target <= 0 {
		target = r.ReorderPoint * 2
	}
	if target <= r.Current {
		return 0
	}
	return target - r.Current
}
