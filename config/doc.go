// Package config 提供 StudyFlow 编排核心的配置管理功能。
//
// 支持从 YAML 文件和环境变量加载配置，优先级为
// 默认值 → 文件 → 环境变量，并在加载后执行结构化校验。
// Provider、缓存预算与记忆保留策略均在启动时从外部供给，
// 核心自身不推导任何配置值。
package config
