// Package llm 定义统一的 LLM Provider 适配接口与聊天请求/响应类型。
//
// 核心只依赖本包的 Provider 接口；具体的上游适配实现位于
// llm/providers 子包，嵌入能力位于 llm/embedding，健康与用量跟踪
// 位于 llm/health，分层回退编排位于 llm/fallback。
package llm
