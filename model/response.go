package model

// ErrorResponse 错误响应
type ErrorResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Error   string `json:"error,omitempty"`
}

// Theme 主题及其候选背景色
type Theme struct {
	Name   string   `json:"name"`
	Colors []string `json:"colors"`
	Random bool     `json:"random,omitempty"`
}

// ThemesResponse 主题列表
type ThemesResponse struct {
	Success bool    `json:"success"`
	Themes  []Theme `json:"themes"`
}
