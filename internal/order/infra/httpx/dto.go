package httpx

import (
	"time"

	"github.com/lymian/kirbook-pedido-rest/internal/order/app"
	"github.com/lymian/kirbook-pedido-rest/internal/order/domain"
)

type LineRequestDTO struct {
	ItemID   string `json:"item_id"`
	Quantity int    `json:"quantity"`
}

type SubmitOrderRequest struct {
	Lines []LineRequestDTO `json:"lines"`
}

type CreateOrderRequest struct {
	CustomerID string           `json:"customer_id"`
	Lines      []LineRequestDTO `json:"lines"`
}

type UpdateOrderRequest struct {
	Lines []LineRequestDTO `json:"lines"`
}

type OwnerDTO struct {
	ID         string `json:"id"`
	Username   string `json:"username,omitempty"`
	Email      string `json:"email,omitempty"`
	GivenName  string `json:"given_name,omitempty"`
	FamilyName string `json:"family_name,omitempty"`
	Role       string `json:"role,omitempty"`
	Known      bool   `json:"known"`
}

type ItemDTO struct {
	ID              string  `json:"id"`
	Title           string  `json:"title"`
	Author          string  `json:"author,omitempty"`
	Category        string  `json:"category,omitempty"`
	Price           float64 `json:"price"`
	DiscountPercent float64 `json:"discount_percent"`
	Stock           int     `json:"stock"`
	Active          bool    `json:"active"`
}

type LineDTO struct {
	ID        string   `json:"id"`
	ItemID    string   `json:"item_id"`
	Quantity  int      `json:"quantity"`
	UnitPrice float64  `json:"unit_price"`
	Subtotal  float64  `json:"subtotal"`
	Item      *ItemDTO `json:"item,omitempty"`
}

type OrderResponse struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"owner_id"`
	Status    string    `json:"status"`
	Total     float64   `json:"total"`
	CreatedAt time.Time `json:"created_at"`
	Owner     *OwnerDTO `json:"owner,omitempty"`
	Lines     []LineDTO `json:"lines"`
}

type LineErrorDTO struct {
	ItemID  string `json:"item_id"`
	Reason  string `json:"reason"`
	Message string `json:"message"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

func mapOrder(o domain.Order) OrderResponse {
	resp := OrderResponse{
		ID:        o.ID,
		OwnerID:   o.OwnerID,
		Status:    string(o.Status),
		Total:     o.Total,
		CreatedAt: o.CreatedAt,
		Lines:     make([]LineDTO, 0, len(o.Lines)),
	}
	for _, l := range o.Lines {
		resp.Lines = append(resp.Lines, mapLine(l, nil))
	}
	return resp
}

func mapDetail(d app.OrderDetail) OrderResponse {
	resp := OrderResponse{
		ID:        d.Order.ID,
		OwnerID:   d.Order.OwnerID,
		Status:    string(d.Order.Status),
		Total:     d.Order.Total,
		CreatedAt: d.Order.CreatedAt,
		Owner:     mapOwner(d.Owner),
		Lines:     make([]LineDTO, 0, len(d.Lines)),
	}
	for _, ld := range d.Lines {
		resp.Lines = append(resp.Lines, mapLine(ld.Line, ld.Item))
	}
	return resp
}

func mapOwner(o app.OwnerDetail) *OwnerDTO {
	return &OwnerDTO{
		ID:         o.ID,
		Username:   o.Username,
		Email:      o.Email,
		GivenName:  o.GivenName,
		FamilyName: o.FamilyName,
		Role:       string(o.Role),
		Known:      o.Known,
	}
}

func mapLine(l domain.OrderLine, item *app.ItemSnapshot) LineDTO {
	dto := LineDTO{
		ID:        l.ID,
		ItemID:    l.ItemID,
		Quantity:  l.Quantity,
		UnitPrice: l.UnitPrice,
		Subtotal:  l.Subtotal(),
	}
	if item != nil {
		dto.Item = &ItemDTO{
			ID:              item.ID,
			Title:           item.Title,
			Author:          item.Author,
			Category:        item.Category,
			Price:           item.UnitPrice,
			DiscountPercent: item.DiscountPercent,
			Stock:           item.Stock,
			Active:          item.Active,
		}
	}
	return dto
}

func mapLineRequests(dtos []LineRequestDTO) []app.LineRequest {
	reqs := make([]app.LineRequest, 0, len(dtos))
	for _, d := range dtos {
		reqs = append(reqs, app.LineRequest{ItemID: d.ItemID, Quantity: d.Quantity})
	}
	return reqs
}

func mapLineErrors(errs []app.LineError) []LineErrorDTO {
	out := make([]LineErrorDTO, 0, len(errs))
	for _, e := range errs {
		out = append(out, LineErrorDTO{ItemID: e.ItemID, Reason: string(e.Reason), Message: e.Message})
	}
	return out
}
