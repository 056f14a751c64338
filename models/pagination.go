package models

type PageMeta struct {
	Page        int  `json:"page"`
	PerPage     int  `json:"per_page"`
	TotalItems  int  `json:"total_items"`
	TotalPages  int  `json:"total_pages"`
	HasNext     bool `json:"has_next"`
	HasPrevious bool `json:"has_previous"`
}

type OrderPage struct {
	Items []TicketOrder `json:"items"`
	Meta  PageMeta      `json:"meta"`
}

type ClassPage struct {
	Items []TicketClass `json:"items"`
	Meta  PageMeta      `json:"meta"`
}
