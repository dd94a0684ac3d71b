package utils

import (
	"html"
	"regexp"
	"strconv"
	"strings"
	"unicode"
)

// userIDPattern Keycloak subject 与开发环境用户 ID 的允许格式
var userIDPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// SanitizeString 清理字符串, 转义 HTML 并移除控制字符
func SanitizeString(input string) string {
	sanitized := html.EscapeString(input)

	// 保留换行符和制表符
	var result strings.Builder
	for _, r := range sanitized {
		if unicode.IsControl(r) && r != '\n' && r != '\t' {
			continue
		}
		result.WriteRune(r)
	}

	return result.String()
}

// ParseApplicationID 解析路径中的申请 ID
func ParseApplicationID(raw string) (uint, error) {
	if raw == "" {
		return 0, ErrEmptyID
	}
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil || id == 0 {
		return 0, ErrInvalidIDFormat
	}
	return uint(id), nil
}

// ValidateUserID 验证用户 ID 格式
func ValidateUserID(id string) error {
	if id == "" {
		return ErrEmptyID
	}
	if len(id) > 64 {
		return ErrIDTooLong
	}
	if !userIDPattern.MatchString(id) {
		return ErrInvalidIDFormat
	}
	return nil
}

// ValidateText 验证评审意见等自由文本
func ValidateText(s string, maxLen int) error {
	if maxLen > 0 && len(s) > maxLen {
		return ErrStringTooLong
	}
	if containsDangerousChars(s) {
		return ErrDangerousChars
	}
	return nil
}

// containsDangerousChars 检查常见的 XSS 注入片段
func containsDangerousChars(s string) bool {
	dangerousPatterns := []string{
		"<script",
		"</script>",
		"javascript:",
		"onerror=",
		"onload=",
		"<iframe",
		"<img",
		"<svg",
	}

	lower := strings.ToLower(s)
	for _, pattern := range dangerousPatterns {
		if strings.Contains(lower, pattern) {
			return true
		}
	}

	return false
}

// TrimAndValidate 去除首尾空白后校验长度并清理
func TrimAndValidate(s string, maxLen int) (string, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return "", ErrEmptyString
	}
	if maxLen > 0 && len(trimmed) > maxLen {
		return "", ErrStringTooLong
	}
	return SanitizeString(trimmed), nil
}

// 错误定义
var (
	ErrDangerousChars  = &ValidationError{Code: "DANGEROUS_CHARS", Message: "text contains dangerous characters"}
	ErrEmptyID         = &ValidationError{Code: "EMPTY_ID", Message: "id cannot be empty"}
	ErrInvalidIDFormat = &ValidationError{Code: "INVALID_ID_FORMAT", Message: "id contains invalid characters"}
	ErrIDTooLong       = &ValidationError{Code: "ID_TOO_LONG", Message: "id exceeds maximum length"}
	ErrEmptyString     = &ValidationError{Code: "EMPTY_STRING", Message: "string cannot be empty"}
	ErrStringTooLong   = &ValidationError{Code: "STRING_TOO_LONG", Message: "string exceeds maximum length"}
)

// ValidationError 验证错误
type ValidationError struct {
	Code    string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}
