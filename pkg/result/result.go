// Package result holds the envelope every service operation returns.
package result

import "net/http"

type Result[T any] struct {
	Success    bool   `json:"success"`
	Message    string `json:"message"`
	Data       T      `json:"data,omitempty"`
	StatusCode int    `json:"status_code"`
}

func OK[T any](data T, message string) Result[T] {
	return Result[T]{Success: true, Message: message, Data: data, StatusCode: http.StatusOK}
}

func Created[T any](data T, message string) Result[T] {
	return Result[T]{Success: true, Message: message, Data: data, StatusCode: http.StatusCreated}
}

func Fail[T any](message string, status int) Result[T] {
	return Result[T]{Success: false, Message: message, StatusCode: status}
}

type Page[T any] struct {
	Data            []T  `json:"data"`
	TotalCount      int  `json:"total_count"`
	Page            int  `json:"page"`
	PageSize        int  `json:"page_size"`
	TotalPages      int  `json:"total_pages"`
	HasNextPage     bool `json:"has_next_page"`
	HasPreviousPage bool `json:"has_previous_page"`
}

func NewPage[T any](data []T, total, page, pageSize int) Page[T] {
	if data == nil {
		data = []T{}
	}
	pages := 0
	if pageSize > 0 {
		pages = (total + pageSize - 1) / pageSize
	}
	return Page[T]{
		Data:            data,
		TotalCount:      total,
		Page:            page,
		PageSize:        pageSize,
		TotalPages:      pages,
		HasNextPage:     page < pages,
		HasPreviousPage: page > 1,
	}
}
