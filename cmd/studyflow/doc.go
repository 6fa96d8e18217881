// =============================================================================
// StudyFlow 服务入口
// =============================================================================
// 学习助理请求编排核心的可执行入口。
//
// 职责:
//   - 加载并校验配置（YAML + 环境变量覆盖）
//   - 初始化 zap 日志、数据库、Redis、进程内缓存
//   - 构建 Provider 注册表、健康跟踪器与回退编排器
//   - 暴露 HTTP API（/v1/chat/turn、/healthz、/metrics）
//   - 调度缓存清扫与记忆过期任务，支持优雅关闭
// =============================================================================
package main
