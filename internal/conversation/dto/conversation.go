package dto

import "raid-mail-agent/internal/conversation/domain"

type ThreadsResponse struct {
	Threads []*domain.Workflow `json:"threads"`
	Limit   int                `json:"limit"`
	Offset  int                `json:"offset"`
	Total   int64              `json:"total"`
}

type ApplicationsResponse struct {
	Applications []*domain.Application `json:"applications"`
	Limit        int                   `json:"limit"`
	Offset       int                   `json:"offset"`
	Total        int64                 `json:"total"`
}

type SearchRequest struct {
	Query string `json:"query" binding:"required"`
	Limit int    `json:"limit"`
}

type SearchResponse struct {
	Query        string                `json:"query"`
	Applications []*domain.Application `json:"applications"`
}
