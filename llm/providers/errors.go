// Package providers 提供上游 LLM 服务的 HTTP 适配实现。
//
// 所有适配器实现统一的 llm.Provider 接口，错误统一映射为
// types.Error，由回退编排器据此决定前进还是中止。
package providers

import (
	"net/http"

	"github.com/BaSui01/studyflow/types"
)

// MapHTTPError 将 HTTP 状态映射为统一错误码
func MapHTTPError(status int, msg, provider string) *types.Error {
	code := types.ErrUpstreamError
	retryable := status >= 500

	switch status {
	case http.StatusUnauthorized:
		code = types.ErrUnauthorized
	case http.StatusForbidden:
		code = types.ErrForbidden
	case http.StatusTooManyRequests:
		code = types.ErrProviderRateLimited
		retryable = true
	case http.StatusBadRequest:
		code = types.ErrInvalidRequest
	case http.StatusRequestTimeout, http.StatusGatewayTimeout:
		code = types.ErrProviderTimeout
		retryable = true
	}

	return &types.Error{
		Code:       code,
		Message:    msg,
		HTTPStatus: status,
		Retryable:  retryable,
		Provider:   provider,
	}
}
