package items

import "time"

type CreateItemRequest struct {
	Code          string   `json:"code"` // generated when empty
	Name          string   `json:"name" binding:"required"`
	CategoryID    int64    `json:"category_id" binding:"required"`
	BrandID       int64    `json:"brand_id" binding:"required"`
	LocationID    int64    `json:"location_id" binding:"required"`
	Specification *string  `json:"specification,omitempty"`
	PurchaseYear  *int64   `json:"purchase_year,omitempty"`
	PurchasePrice *float64 `json:"purchase_price,omitempty"`
	StockTotal    int      `json:"stock_total"`
	Condition     *string  `json:"condition,omitempty"`
}

type UpdateItemRequest struct {
	Name          *string  `json:"name,omitempty"`
	CategoryID    *int64   `json:"category_id,omitempty"`
	BrandID       *int64   `json:"brand_id,omitempty"`
	LocationID    *int64   `json:"location_id,omitempty"`
	Specification *string  `json:"specification,omitempty"`
	PurchaseYear  *int64   `json:"purchase_year,omitempty"`
	PurchasePrice *float64 `json:"purchase_price,omitempty"`
	Condition     *string  `json:"condition,omitempty"`
	Status        *string  `json:"status,omitempty"`
}

type ItemResponse struct {
	ID             int64      `json:"id"`
	Code           string     `json:"code"`
	Name           string     `json:"name"`
	CategoryID     int64      `json:"category_id"`
	BrandID        int64      `json:"brand_id"`
	LocationID     int64      `json:"location_id"`
	Specification  *string    `json:"specification,omitempty"`
	PurchaseYear   *int64     `json:"purchase_year,omitempty"`
	PurchasePrice  *float64   `json:"purchase_price,omitempty"`
	StockTotal     int        `json:"stock_total"`
	StockAvailable int        `json:"stock_available"`
	StockBorrowed  int        `json:"stock_borrowed"`
	StockDamaged   int        `json:"stock_damaged"`
	Condition      string     `json:"condition"`
	Status         string     `json:"status"`
	DeletedAt      *time.Time `json:"deleted_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

func buildItemResponse(it *Item) ItemResponse {
	resp := ItemResponse{
		ID:             it.ID,
		Code:           it.Code,
		Name:           it.Name,
		CategoryID:     it.CategoryID,
		BrandID:        it.BrandID,
		LocationID:     it.LocationID,
		StockTotal:     it.Stock.Total,
		StockAvailable: it.Stock.Available,
		StockBorrowed:  it.Stock.Borrowed,
		StockDamaged:   it.Stock.Damaged,
		Condition:      it.Condition,
		Status:         it.Status,
		CreatedAt:      it.CreatedAt,
		UpdatedAt:      it.UpdatedAt,
	}
	if it.Specification.Valid {
		v := it.Specification.String
		resp.Specification = &v
	}
	if it.PurchaseYear.Valid {
		v := it.PurchaseYear.Int64
		resp.PurchaseYear = &v
	}
	if it.PurchasePrice.Valid {
		v := it.PurchasePrice.Float64
		resp.PurchasePrice = &v
	}
	if it.DeletedAt.Valid {
		v := it.DeletedAt.Time
		resp.DeletedAt = &v
	}
	return resp
}
