package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// ErrMalformedResponse 网关返回了无法使用的响应（无 choices 或内容为空）
var ErrMalformedResponse = errors.New("malformed model response")

// ErrorKind 网关失败类型
type ErrorKind string

const (
	KindRateLimited ErrorKind = "rate_limited"
	KindTransient   ErrorKind = "transient"
	KindFatal       ErrorKind = "fatal"
)

// GatewayError 网关的类型化失败
type GatewayError struct {
	Kind       ErrorKind
	Model      string
	StatusCode int
	Message    string
	RetryAfter time.Duration
	Err        error
}

func (e *GatewayError) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	if e.Model != "" {
		b.WriteString(" [")
		b.WriteString(e.Model)
		b.WriteString("]")
	}
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " status=%d", e.StatusCode)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	return b.String()
}

func (e *GatewayError) Unwrap() error {
	return e.Err
}

// Retryable 只有限流与瞬时上游错误可以重试
func (e *GatewayError) Retryable() bool {
	return e.Kind == KindRateLimited || e.Kind == KindTransient
}

// KindForStatus 按 HTTP 状态码分类
func KindForStatus(status int) ErrorKind {
	switch status {
	case http.StatusTooManyRequests:
		return KindRateLimited
	case http.StatusRequestTimeout,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return KindTransient
	default:
		return KindFatal
	}
}

var rateLimitKeywords = []string{
	"rate limit",
	"quota exceeded",
	"too many requests",
	"rate-limited",
	"request rate exceeded",
	"请求次数超过限制",
	"超过限制",
	"每分钟请求次数",
}

var transientKeywords = []string{
	"service unavailable",
	"bad gateway",
	"gateway timeout",
	"temporarily unavailable",
	"overloaded",
	"connection reset",
	"connection refused",
	"unexpected eof",
}

var statusCodePattern = regexp.MustCompile(`status code: (\d{3})`)

var rateLimitStatus = regexp.MustCompile(`\b429\b`)

// Classify 把任意错误转换为 *GatewayError。
// 已分类的错误原样返回；否则依次按上下文、状态码、错误文本关键字判定。
func Classify(model string, err error) *GatewayError {
	if err == nil {
		return nil
	}
	var gwErr *GatewayError
	if errors.As(err, &gwErr) {
		if gwErr.Model == "" {
			gwErr.Model = model
		}
		return gwErr
	}

	result := &GatewayError{Kind: KindFatal, Model: model, Message: err.Error(), Err: err}
	switch {
	case errors.Is(err, ErrMalformedResponse):
		return result
	case errors.Is(err, context.Canceled):
		return result
	case errors.Is(err, context.DeadlineExceeded):
		result.Kind = KindTransient
		return result
	}

	msg := err.Error()
	if m := statusCodePattern.FindStringSubmatch(msg); len(m) == 2 {
		if code, convErr := strconv.Atoi(m[1]); convErr == nil {
			result.StatusCode = code
			result.Kind = KindForStatus(code)
		}
	}
	if result.Kind == KindFatal && IsRateLimitMessage(msg) {
		result.Kind = KindRateLimited
	}
	if result.Kind == KindFatal && result.StatusCode == 0 && isTransientMessage(msg) {
		result.Kind = KindTransient
	}
	if result.Kind == KindRateLimited {
		result.RetryAfter = ParseRetryAfter(msg)
	}
	return result
}

// IsRateLimitMessage 判断错误文本是否为限流错误
func IsRateLimitMessage(msg string) bool {
	if rateLimitStatus.MatchString(msg) {
		return true
	}
	lower := strings.ToLower(msg)
	for _, keyword := range rateLimitKeywords {
		if strings.Contains(lower, keyword) {
			return true
		}
	}
	return false
}

func isTransientMessage(msg string) bool {
	lower := strings.ToLower(msg)
	for _, keyword := range transientKeywords {
		if strings.Contains(lower, keyword) {
			return true
		}
	}
	return false
}

var retryAfterPatterns = []struct {
	re   *regexp.Regexp
	unit time.Duration
}{
	{regexp.MustCompile(`(?i)try again in (\d+)s`), time.Second},
	{regexp.MustCompile(`(?i)retry after (\d+)s`), time.Second},
	{regexp.MustCompile(`(?i)try again in (\d+)m`), time.Minute},
	{regexp.MustCompile(`(?i)retry after (\d+)m`), time.Minute},
}

// ParseRetryAfter 从错误文本解析建议等待时间，如 "Try again in 20s"
func ParseRetryAfter(msg string) time.Duration {
	for _, p := range retryAfterPatterns {
		m := p.re.FindStringSubmatch(msg)
		if len(m) < 2 {
			continue
		}
		n, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		return time.Duration(n) * p.unit
	}
	return 0
}
